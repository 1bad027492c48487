package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pitchline-ai/pitchline/internal/call"
)

func testRecord(callID string, startedAt time.Time) TranscriptRecord {
	return TranscriptRecord{
		CallID:       callID,
		PersonaName:  "Jordan",
		PersonaRole:  "procurement lead",
		PersonaLabel: "Jordan Vale",
		StartedAt:    startedAt,
		EndedAt:      startedAt.Add(3 * time.Minute),
		Turns: []call.Turn{
			{Speaker: call.SpeakerAgent, Text: "Jordan speaking.", Timestamp: startedAt},
			{Speaker: call.SpeakerCaller, Text: "Hi, this is a quick pitch.", Timestamp: startedAt.Add(time.Second)},
		},
	}
}

func TestFileStore_SaveAndLoadTranscript(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rec := testRecord("CA100", started)
	if err := fs.SaveTranscript(ctx, rec); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := fs.LoadTranscript(ctx, "CA100")
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if got.CallID != "CA100" || got.PersonaLabel != "Jordan Vale" {
		t.Errorf("loaded record = %+v", got)
	}
	if len(got.Turns) != 2 || got.Turns[1].Text != "Hi, this is a quick pitch." {
		t.Errorf("loaded turns = %+v", got.Turns)
	}
}

func TestFileStore_DirNaming(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fs, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	started := time.Date(2026, 3, 14, 9, 30, 5, 0, time.UTC)
	if err := fs.SaveTranscript(context.Background(), testRecord("CA110", started)); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got, want := entries[0].Name(), "20260314_093005_jordan-vale_CA110"; got != want {
		t.Errorf("dir name = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(root, entries[0].Name(), "transcript.json")); err != nil {
		t.Errorf("transcript.json missing: %v", err)
	}
}

func TestFileStore_FirstWriteWins(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	first := testRecord("CA120", started)
	if err := fs.SaveTranscript(ctx, first); err != nil {
		t.Fatalf("first SaveTranscript: %v", err)
	}

	second := testRecord("CA120", started.Add(time.Hour))
	second.Turns = nil
	if err := fs.SaveTranscript(ctx, second); err != nil {
		t.Fatalf("second SaveTranscript: %v", err)
	}

	got, err := fs.LoadTranscript(ctx, "CA120")
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if len(got.Turns) != 2 {
		t.Errorf("turns = %d, want the first write's 2", len(got.Turns))
	}
}

func TestFileStore_ConcurrentSameCallID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fs, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fs.SaveTranscript(context.Background(), testRecord("CA130", started)); err != nil {
				t.Errorf("SaveTranscript: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	count := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_CA130") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("directories for CA130 = %d, want 1", count)
	}
}

func TestFileStore_LoadTranscript_NotFound(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := fs.LoadTranscript(context.Background(), "CAmissing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_ListTranscripts_MostRecentFirst(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"CA201", "CA202", "CA203"} {
		if err := fs.SaveTranscript(ctx, testRecord(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveTranscript %s: %v", id, err)
		}
	}

	sums, err := fs.ListTranscripts(ctx, 0)
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("summaries = %d, want 3", len(sums))
	}
	if sums[0].CallID != "CA203" || sums[2].CallID != "CA201" {
		t.Errorf("order = %s, %s, %s; want CA203 first", sums[0].CallID, sums[1].CallID, sums[2].CallID)
	}

	limited, err := fs.ListTranscripts(ctx, 2)
	if err != nil {
		t.Fatalf("ListTranscripts limited: %v", err)
	}
	if len(limited) != 2 || limited[0].CallID != "CA203" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestFileStore_Feedback(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	if err := fs.SaveTranscript(ctx, testRecord("CA300", started)); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	// Feedback before any transcript exists is refused.
	fb := FeedbackRecord{
		CallID:       "CAorphan",
		OverallScore: 7,
		AnalyzedAt:   started.Add(time.Hour),
	}
	if err := fs.SaveFeedback(ctx, fb); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphan feedback error = %v, want ErrNotFound", err)
	}

	fb.CallID = "CA300"
	fb.CategoryScores = map[string]float64{"discovery": 6, "closing": 8}
	fb.Rationale = "Strong close, light discovery."
	if err := fs.SaveFeedback(ctx, fb); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}

	got, err := fs.LoadFeedback(ctx, "CA300")
	if err != nil {
		t.Fatalf("LoadFeedback: %v", err)
	}
	if got.OverallScore != 7 || got.CategoryScores["closing"] != 8 {
		t.Errorf("feedback = %+v", got)
	}

	sums, err := fs.ListTranscripts(ctx, 0)
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}
	if len(sums) != 1 || !sums[0].HasFeedback {
		t.Errorf("summary = %+v, want HasFeedback", sums)
	}
}

func TestFileStore_LoadFeedback_NotAnalyzed(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if err := fs.SaveTranscript(ctx, testRecord("CA310", started)); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if _, err := fs.LoadFeedback(ctx, "CA310"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Jordan Vale", "jordan-vale"},
		{"VP of Sales (EMEA)", "vp-of-sales-emea"},
		{"  ", "persona"},
		{"Ops--Lead", "ops-lead"},
	}
	for _, tc := range cases {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCallWriter_AdaptsCoordinatorSave(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	w := CallWriter{Store: fs}
	started := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)
	turns := []call.Turn{{Speaker: call.SpeakerAgent, Text: "Hello.", Timestamp: started}}
	meta := call.Metadata{PersonaName: "Jordan", PersonaRole: "buyer", PersonaLabel: "Jordan Vale"}

	if err := w.SaveTranscript(context.Background(), "CA400", meta, started, turns); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := fs.LoadTranscript(context.Background(), "CA400")
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if got.PersonaRole != "buyer" || len(got.Turns) != 1 {
		t.Errorf("record = %+v", got)
	}
	if got.EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}
}
