package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	transcriptFile = "transcript.json"
	feedbackFile   = "feedback.json"
)

// FileStore persists each call as a directory under a root:
//
//	<root>/<yyyymmdd_hhmmss>_<persona-label-slug>_<call id>/transcript.json
//	                                                       /feedback.json
//
// The timestamp prefix makes a plain directory listing read chronologically,
// and the call id suffix is what lookups key on. Safe for concurrent use.
type FileStore struct {
	root string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed and returns a store over it.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// SaveTranscript implements [Store]. A second write for the same call id is a
// no-op; the first transcript wins.
func (s *FileStore) SaveTranscript(ctx context.Context, rec TranscriptRecord) error {
	if rec.CallID == "" {
		return fmt.Errorf("store: transcript without call id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir, err := s.findCallDir(rec.CallID); err == nil && dir != "" {
		return nil
	} else if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s_%s",
		rec.StartedAt.UTC().Format("20060102_150405"),
		slugify(rec.PersonaLabel),
		rec.CallID,
	)
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create call dir: %w", err)
	}
	if err := writeJSONFile(filepath.Join(dir, transcriptFile), rec); err != nil {
		return fmt.Errorf("store: write transcript for %s: %w", rec.CallID, err)
	}
	return nil
}

// LoadTranscript implements [Store].
func (s *FileStore) LoadTranscript(ctx context.Context, callID string) (TranscriptRecord, error) {
	var rec TranscriptRecord
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	dir, err := s.findCallDir(callID)
	if err != nil {
		return rec, err
	}
	if dir == "" {
		return rec, fmt.Errorf("store: transcript for %s: %w", callID, ErrNotFound)
	}
	if err := readJSONFile(filepath.Join(dir, transcriptFile), &rec); err != nil {
		return rec, fmt.Errorf("store: read transcript for %s: %w", callID, err)
	}
	return rec, nil
}

// ListTranscripts implements [Store].
func (s *FileStore) ListTranscripts(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirs, err := s.callDirs()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(dirs))
	for _, dir := range dirs {
		if limit > 0 && len(summaries) >= limit {
			break
		}
		var rec TranscriptRecord
		if err := readJSONFile(filepath.Join(s.root, dir, transcriptFile), &rec); err != nil {
			// Directories without a readable transcript are skipped, not fatal.
			continue
		}
		_, ferr := os.Stat(filepath.Join(s.root, dir, feedbackFile))
		summaries = append(summaries, Summary{
			CallID:       rec.CallID,
			PersonaLabel: rec.PersonaLabel,
			StartedAt:    rec.StartedAt,
			TurnCount:    len(rec.Turns),
			HasFeedback:  ferr == nil,
		})
	}
	return summaries, nil
}

// SaveFeedback implements [Store].
func (s *FileStore) SaveFeedback(ctx context.Context, rec FeedbackRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := s.findCallDir(rec.CallID)
	if err != nil {
		return err
	}
	if dir == "" {
		return fmt.Errorf("store: feedback for %s: %w", rec.CallID, ErrNotFound)
	}
	if err := writeJSONFile(filepath.Join(dir, feedbackFile), rec); err != nil {
		return fmt.Errorf("store: write feedback for %s: %w", rec.CallID, err)
	}
	return nil
}

// LoadFeedback implements [Store].
func (s *FileStore) LoadFeedback(ctx context.Context, callID string) (FeedbackRecord, error) {
	var rec FeedbackRecord
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	dir, err := s.findCallDir(callID)
	if err != nil {
		return rec, err
	}
	if dir == "" {
		return rec, fmt.Errorf("store: feedback for %s: %w", callID, ErrNotFound)
	}
	if err := readJSONFile(filepath.Join(dir, feedbackFile), &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, fmt.Errorf("store: feedback for %s: %w", callID, ErrNotFound)
		}
		return rec, fmt.Errorf("store: read feedback for %s: %w", callID, err)
	}
	return rec, nil
}

// callDirs returns call directory names, most recent first. The timestamp
// prefix makes lexicographic descending order chronological descending.
func (s *FileStore) callDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: read root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}

// findCallDir returns the absolute path of the most recent directory for
// callID, or "" when none exists.
func (s *FileStore) findCallDir(callID string) (string, error) {
	if callID == "" {
		return "", fmt.Errorf("store: empty call id")
	}
	dirs, err := s.callDirs()
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		if strings.HasSuffix(dir, "_"+callID) {
			return filepath.Join(s.root, dir), nil
		}
	}
	return "", nil
}

// slugify reduces a persona label to a filesystem-friendly token.
func slugify(label string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "persona"
	}
	return out
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
