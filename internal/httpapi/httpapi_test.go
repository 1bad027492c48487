package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pitchline-ai/pitchline/internal/call"
	"github.com/pitchline-ai/pitchline/internal/coach"
	"github.com/pitchline-ai/pitchline/internal/engine"
	enginemock "github.com/pitchline-ai/pitchline/internal/engine/mock"
	"github.com/pitchline-ai/pitchline/internal/health"
	"github.com/pitchline-ai/pitchline/internal/relay"
	"github.com/pitchline-ai/pitchline/internal/store"
	"github.com/pitchline-ai/pitchline/internal/twiml"
)

type testOpener struct {
	provider *enginemock.Provider
}

func (o *testOpener) NewCall(ctx context.Context) (engine.Call, error) {
	return o.provider.NewCall(ctx, engine.Persona{Name: "Jordan", Label: "Jordan Vale"})
}

// fakeAnalyzer returns canned feedback.
type fakeAnalyzer struct {
	fb      coach.Feedback
	summary string
	err     error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ store.TranscriptRecord) (coach.Feedback, error) {
	return a.fb, a.err
}

func (a *fakeAnalyzer) QuickSummary(_ context.Context, _ store.TranscriptRecord) (string, error) {
	return a.summary, a.err
}

type fixture struct {
	handlers *Handlers
	registry *call.Registry
	store    *store.FileStore
	router   http.Handler
}

func newFixture(t *testing.T, analyzer coach.Analyzer) *fixture {
	t.Helper()

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	opener := &testOpener{provider: &enginemock.Provider{}}
	reg := call.NewRegistry(opener, nil)
	coord := call.NewCoordinator(reg, store.CallWriter{Store: fs}, call.Metadata{PersonaName: "Jordan", PersonaLabel: "Jordan Vale"}, nil, nil)
	relayHandler := relay.NewHandler(reg, coord, time.Second, nil, nil)

	h := New(Config{
		PublicURL: "https://broker.example.com",
		RelayPath: "/voice/relay",
		Relay: twiml.RelayConfig{
			TTSProvider: "ElevenLabs",
			Voice:       "abc123",
			Language:    "en-US",
		},
	}, reg, coord, fs, analyzer, relayHandler, health.New(), nil)

	return &fixture{handlers: h, registry: reg, store: fs, router: h.Router(nil)}
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedTranscript(t *testing.T, fs *store.FileStore, callID string) {
	t.Helper()
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	err := fs.SaveTranscript(context.Background(), store.TranscriptRecord{
		CallID:       callID,
		PersonaName:  "Jordan",
		PersonaLabel: "Jordan Vale",
		StartedAt:    started,
		EndedAt:      started.Add(time.Minute),
		Turns: []call.Turn{
			{Speaker: call.SpeakerAgent, Text: "Jordan speaking.", Timestamp: started},
			{Speaker: call.SpeakerCaller, Text: "Quick pitch for you.", Timestamp: started.Add(time.Second)},
		},
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}
}

func TestIncomingCall_ReturnsConnectTwiML(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := postForm(t, f.router, "/voice/incoming", url.Values{
		"CallSid": {"CA100"},
		"From":    {"+15550100"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"<ConversationRelay",
		`url="wss://broker.example.com/voice/relay"`,
		`welcomeGreeting="Hello, this is the mock persona."`,
		`voice="abc123"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	if f.registry.Len() != 1 {
		t.Errorf("registry length = %d, want 1", f.registry.Len())
	}
}

func TestIncomingCall_MissingCallSid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := postForm(t, f.router, "/voice/incoming", url.Values{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIncomingCall_EngineFailureSpeaksRejection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.handlers.registry = call.NewRegistry(&testOpener{provider: &enginemock.Provider{
		NewCallFunc: func(context.Context, engine.Persona) (engine.Call, error) {
			return nil, errors.New("provider down")
		},
	}}, nil)
	router := f.handlers.Router(nil)

	rec := postForm(t, router, "/voice/incoming", url.Values{"CallSid": {"CA110"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with reject TwiML", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Say>") || !strings.Contains(body, "<Hangup>") {
		t.Errorf("body = %s, want Say + Hangup", body)
	}
}

func TestCallStatus_TerminalClosesCall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.registry.GetOrCreate(context.Background(), "CA200"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	rec := postForm(t, f.router, "/voice/status", url.Values{
		"CallSid":    {"CA200"},
		"CallStatus": {"completed"},
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if f.registry.Len() != 0 {
		t.Errorf("registry length = %d, want 0", f.registry.Len())
	}

	// The greeting-only transcript was persisted.
	if _, err := f.store.LoadTranscript(context.Background(), "CA200"); err != nil {
		t.Errorf("LoadTranscript: %v", err)
	}
}

func TestCallStatus_IntermediateIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.registry.GetOrCreate(context.Background(), "CA210"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	rec := postForm(t, f.router, "/voice/status", url.Values{
		"CallSid":    {"CA210"},
		"CallStatus": {"in-progress"},
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if f.registry.Len() != 1 {
		t.Errorf("registry length = %d, want 1 (call still live)", f.registry.Len())
	}
}

func TestCallStatus_UnknownCallIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := postForm(t, f.router, "/voice/status", url.Values{
		"CallSid":    {"CAnope"},
		"CallStatus": {"completed"},
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestListTranscripts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedTranscript(t, f.store, "CA300")

	rec := get(t, f.router, "/transcripts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Transcripts []store.Summary `json:"transcripts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Transcripts) != 1 || body.Transcripts[0].CallID != "CA300" {
		t.Errorf("transcripts = %+v", body.Transcripts)
	}
}

func TestListTranscripts_BadLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if rec := get(t, f.router, "/transcripts?limit=banana"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedTranscript(t, f.store, "CA310")

	rec := get(t, f.router, "/transcripts/CA310")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var tr store.TranscriptRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.CallID != "CA310" || len(tr.Turns) != 2 {
		t.Errorf("transcript = %+v", tr)
	}

	if rec := get(t, f.router, "/transcripts/CAmissing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing transcript status = %d, want 404", rec.Code)
	}
}

func TestAnalyze_PersistsFeedback(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{fb: coach.Feedback{
		OverallScore:   7,
		CategoryScores: map[string]float64{"discovery": 6, "closing": 8},
		Rationale:      "Solid close.",
	}}
	f := newFixture(t, analyzer)
	seedTranscript(t, f.store, "CA400")

	rec := postForm(t, f.router, "/coach/analyze/CA400", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var fb store.FeedbackRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &fb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fb.OverallScore != 7 || fb.CategoryScores["closing"] != 8 {
		t.Errorf("feedback = %+v", fb)
	}

	// Retrievable afterwards.
	rec = get(t, f.router, "/coach/feedback/CA400")
	if rec.Code != http.StatusOK {
		t.Errorf("feedback status = %d", rec.Code)
	}
}

func TestAnalyze_NoTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAnalyzer{})
	if rec := postForm(t, f.router, "/coach/analyze/CAmissing", url.Values{}); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAnalyze_Disabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedTranscript(t, f.store, "CA410")
	if rec := postForm(t, f.router, "/coach/analyze/CA410", url.Values{}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAnalyze_ModelFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAnalyzer{err: errors.New("model down")})
	seedTranscript(t, f.store, "CA420")
	if rec := postForm(t, f.router, "/coach/analyze/CA420", url.Values{}); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAnalyzer{summary: "A brisk call that ended politely."})
	seedTranscript(t, f.store, "CA500")

	rec := get(t, f.router, "/coach/summary/CA500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["summary"] != "A brisk call that ended politely." {
		t.Errorf("summary = %q", body["summary"])
	}
}

func TestGetFeedback_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedTranscript(t, f.store, "CA510")
	if rec := get(t, f.router, "/coach/feedback/CA510"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := get(t, f.router, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pitchline") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if rec := get(t, f.router, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := get(t, f.router, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}
