package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts and feedback in PostgreSQL. Turns and
// category scores are stored as JSONB columns; everything a query filters or
// sorts on is a plain column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over the given connection pool. The pool
// stays owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the transcripts and feedback tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	call_id       TEXT PRIMARY KEY,
	persona_name  TEXT NOT NULL,
	persona_role  TEXT NOT NULL,
	persona_label TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	turns         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS transcripts_started_at_idx ON transcripts (started_at DESC);

CREATE TABLE IF NOT EXISTS feedback (
	call_id         TEXT PRIMARY KEY REFERENCES transcripts(call_id) ON DELETE CASCADE,
	overall_score   DOUBLE PRECISION NOT NULL,
	category_scores JSONB NOT NULL,
	rationale       TEXT NOT NULL,
	analyzed_at     TIMESTAMPTZ NOT NULL
);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: init schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity, for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// SaveTranscript implements [Store]. ON CONFLICT DO NOTHING keeps the first
// transcript written for a call id.
func (s *PostgresStore) SaveTranscript(ctx context.Context, rec TranscriptRecord) error {
	if rec.CallID == "" {
		return fmt.Errorf("postgres: transcript without call id")
	}
	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("postgres: encode turns: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transcripts (call_id, persona_name, persona_role, persona_label, started_at, ended_at, turns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (call_id) DO NOTHING`,
		rec.CallID, rec.PersonaName, rec.PersonaRole, rec.PersonaLabel, rec.StartedAt, rec.EndedAt, turns,
	)
	if err != nil {
		return fmt.Errorf("postgres: save transcript for %s: %w", rec.CallID, err)
	}
	return nil
}

// LoadTranscript implements [Store].
func (s *PostgresStore) LoadTranscript(ctx context.Context, callID string) (TranscriptRecord, error) {
	var rec TranscriptRecord
	var turns []byte

	err := s.pool.QueryRow(ctx, `
		SELECT call_id, persona_name, persona_role, persona_label, started_at, ended_at, turns
		FROM transcripts WHERE call_id = $1`,
		callID,
	).Scan(&rec.CallID, &rec.PersonaName, &rec.PersonaRole, &rec.PersonaLabel, &rec.StartedAt, &rec.EndedAt, &turns)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("postgres: transcript for %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("postgres: load transcript for %s: %w", callID, err)
	}

	if err := json.Unmarshal(turns, &rec.Turns); err != nil {
		return rec, fmt.Errorf("postgres: decode turns for %s: %w", callID, err)
	}
	return rec, nil
}

// ListTranscripts implements [Store].
func (s *PostgresStore) ListTranscripts(ctx context.Context, limit int) ([]Summary, error) {
	// LIMIT NULL means no limit.
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.call_id, t.persona_label, t.started_at, jsonb_array_length(t.turns),
		       f.call_id IS NOT NULL
		FROM transcripts t
		LEFT JOIN feedback f ON f.call_id = t.call_id
		ORDER BY t.started_at DESC
		LIMIT $1`,
		lim,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transcripts: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var sum Summary
		err := row.Scan(&sum.CallID, &sum.PersonaLabel, &sum.StartedAt, &sum.TurnCount, &sum.HasFeedback)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transcripts: %w", err)
	}
	return summaries, nil
}

// SaveFeedback implements [Store]. The foreign key enforces that a transcript
// exists; repeated analysis overwrites the previous feedback.
func (s *PostgresStore) SaveFeedback(ctx context.Context, rec FeedbackRecord) error {
	scores, err := json.Marshal(rec.CategoryScores)
	if err != nil {
		return fmt.Errorf("postgres: encode scores: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transcripts WHERE call_id = $1)`, rec.CallID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check transcript for %s: %w", rec.CallID, err)
	}
	if !exists {
		return fmt.Errorf("postgres: feedback for %s: %w", rec.CallID, ErrNotFound)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO feedback (call_id, overall_score, category_scores, rationale, analyzed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (call_id) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			category_scores = EXCLUDED.category_scores,
			rationale = EXCLUDED.rationale,
			analyzed_at = EXCLUDED.analyzed_at`,
		rec.CallID, rec.OverallScore, scores, rec.Rationale, rec.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save feedback for %s: %w", rec.CallID, err)
	}
	return nil
}

// LoadFeedback implements [Store].
func (s *PostgresStore) LoadFeedback(ctx context.Context, callID string) (FeedbackRecord, error) {
	var rec FeedbackRecord
	var scores []byte

	err := s.pool.QueryRow(ctx, `
		SELECT call_id, overall_score, category_scores, rationale, analyzed_at
		FROM feedback WHERE call_id = $1`,
		callID,
	).Scan(&rec.CallID, &rec.OverallScore, &scores, &rec.Rationale, &rec.AnalyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("postgres: feedback for %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("postgres: load feedback for %s: %w", callID, err)
	}

	if err := json.Unmarshal(scores, &rec.CategoryScores); err != nil {
		return rec, fmt.Errorf("postgres: decode scores for %s: %w", callID, err)
	}
	return rec, nil
}
