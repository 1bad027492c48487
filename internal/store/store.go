// Package store persists call transcripts and coaching feedback.
//
// Two backends are provided: [FileStore] keeps one directory per call under a
// configurable root, and [PostgresStore] keeps rows in a transcripts and a
// feedback table. Both are first-write-wins per call id: a transcript, once
// written, is never overwritten.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pitchline-ai/pitchline/internal/call"
)

// ErrNotFound is returned when no transcript or feedback exists for a call id.
var ErrNotFound = errors.New("store: not found")

// TranscriptRecord is a finished call's transcript with its persona metadata.
type TranscriptRecord struct {
	CallID       string      `json:"call_id"`
	PersonaName  string      `json:"persona_name"`
	PersonaRole  string      `json:"persona_role"`
	PersonaLabel string      `json:"persona_label"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      time.Time   `json:"ended_at"`
	Turns        []call.Turn `json:"turns"`
}

// FeedbackRecord is a coaching analysis attached to a transcript.
type FeedbackRecord struct {
	CallID         string             `json:"call_id"`
	OverallScore   float64            `json:"overall_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Rationale      string             `json:"rationale"`
	AnalyzedAt     time.Time          `json:"analyzed_at"`
}

// Summary is a transcript listing entry.
type Summary struct {
	CallID       string    `json:"call_id"`
	PersonaLabel string    `json:"persona_label"`
	StartedAt    time.Time `json:"started_at"`
	TurnCount    int       `json:"turn_count"`
	HasFeedback  bool      `json:"has_feedback"`
}

// Store is the persistence contract shared by all backends.
type Store interface {
	// SaveTranscript persists rec. If a transcript for rec.CallID already
	// exists, the existing one is kept and no error is returned.
	SaveTranscript(ctx context.Context, rec TranscriptRecord) error

	// LoadTranscript returns the transcript for callID, or [ErrNotFound].
	LoadTranscript(ctx context.Context, callID string) (TranscriptRecord, error)

	// ListTranscripts returns up to limit summaries, most recent first.
	// A non-positive limit returns all.
	ListTranscripts(ctx context.Context, limit int) ([]Summary, error)

	// SaveFeedback attaches feedback to an existing transcript. It returns
	// [ErrNotFound] when no transcript exists for rec.CallID, and overwrites
	// any prior feedback for it.
	SaveFeedback(ctx context.Context, rec FeedbackRecord) error

	// LoadFeedback returns the feedback for callID, or [ErrNotFound].
	LoadFeedback(ctx context.Context, callID string) (FeedbackRecord, error)
}

// CallWriter adapts a [Store] to the cleanup coordinator's transcript sink.
type CallWriter struct {
	Store Store
}

var _ call.TranscriptWriter = CallWriter{}

// SaveTranscript implements call.TranscriptWriter.
func (w CallWriter) SaveTranscript(ctx context.Context, callID string, meta call.Metadata, startedAt time.Time, turns []call.Turn) error {
	return w.Store.SaveTranscript(ctx, TranscriptRecord{
		CallID:       callID,
		PersonaName:  meta.PersonaName,
		PersonaRole:  meta.PersonaRole,
		PersonaLabel: meta.PersonaLabel,
		StartedAt:    startedAt,
		EndedAt:      time.Now().UTC(),
		Turns:        turns,
	})
}
