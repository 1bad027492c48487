// Package httpapi wires the broker's HTTP surface: the telephony webhooks,
// the relay WebSocket route, the transcript and coaching endpoints, and the
// operational routes (health, metrics).
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitchline-ai/pitchline/internal/call"
	"github.com/pitchline-ai/pitchline/internal/coach"
	"github.com/pitchline-ai/pitchline/internal/health"
	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/relay"
	"github.com/pitchline-ai/pitchline/internal/store"
	"github.com/pitchline-ai/pitchline/internal/twiml"
)

// terminalStatuses are the provider call statuses that mean the call is over.
// Intermediate statuses (ringing, in-progress) pass through without cleanup.
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"busy":      true,
	"no-answer": true,
}

// rejectMessage is spoken to the caller when no session can be set up.
const rejectMessage = "We're unable to take your call right now. Please try again later."

// Config holds the request-independent settings of the HTTP surface.
type Config struct {
	// PublicURL is the externally reachable base URL; the relay WebSocket
	// URL in TwiML responses is derived from it.
	PublicURL string

	// RelayPath is the route of the relay WebSocket endpoint.
	RelayPath string

	// Relay is the voice configuration for ConversationRelay TwiML.
	Relay twiml.RelayConfig
}

// Handlers bundles the dependencies behind the HTTP surface.
type Handlers struct {
	cfg         Config
	registry    *call.Registry
	coordinator *call.Coordinator
	store       store.Store
	analyzer    coach.Analyzer
	relay       *relay.Handler
	health      *health.Handler
	log         *slog.Logger
}

// New creates the HTTP handlers. analyzer may be nil, which disables the
// coaching endpoints; nil logger falls back to [slog.Default].
func New(cfg Config, registry *call.Registry, coordinator *call.Coordinator, st store.Store, analyzer coach.Analyzer, relayHandler *relay.Handler, healthHandler *health.Handler, log *slog.Logger) *Handlers {
	if cfg.RelayPath == "" {
		cfg.RelayPath = "/voice/relay"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		cfg:         cfg,
		registry:    registry,
		coordinator: coordinator,
		store:       st,
		analyzer:    analyzer,
		relay:       relayHandler,
		health:      healthHandler,
		log:         log,
	}
}

// Router returns the full route table wrapped in the observability middleware.
func (h *Handlers) Router(metrics *observe.Metrics) http.Handler {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("POST /voice/incoming", h.IncomingCall)
	mux.HandleFunc("POST /voice/status", h.CallStatus)
	mux.Handle("GET "+h.cfg.RelayPath, h.relay)

	mux.HandleFunc("GET /transcripts", h.ListTranscripts)
	mux.HandleFunc("GET /transcripts/{callID}", h.GetTranscript)
	mux.HandleFunc("POST /coach/analyze/{callID}", h.Analyze)
	mux.HandleFunc("GET /coach/feedback/{callID}", h.GetFeedback)
	mux.HandleFunc("GET /coach/summary/{callID}", h.Summary)

	mux.Handle("GET /metrics", promhttp.Handler())
	if h.health != nil {
		h.health.Register(mux)
	}

	return observe.Middleware(metrics)(mux)
}

// Index reports service identity and the webhook routes, handy when pointing
// a telephony console at the deployment.
func (h *Handlers) Index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "pitchline",
		"incoming": "/voice/incoming",
		"status":   "/voice/status",
		"relay":    h.cfg.RelayPath,
	})
}

// IncomingCall is the voice webhook for a new inbound call. It creates the
// call session (opening the engine conversation and obtaining the greeting)
// and answers with TwiML that connects the call to the relay stream, with
// the greeting spoken as soon as the stream is up.
func (h *Handlers) IncomingCall(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "missing CallSid")
		return
	}

	sess, err := h.registry.GetOrCreate(r.Context(), callID)
	if err != nil {
		h.log.Error("incoming call setup failed", "call_id", callID, "error", err)
		h.writeTwiML(w, func() ([]byte, error) { return twiml.Reject(rejectMessage) })
		return
	}

	h.log.Info("incoming call", "call_id", callID, "from", r.FormValue("From"))

	wsURL, err := twiml.RelayURL(h.cfg.PublicURL, h.cfg.RelayPath)
	if err != nil {
		h.log.Error("relay url derivation failed", "error", err)
		h.writeTwiML(w, func() ([]byte, error) { return twiml.Reject(rejectMessage) })
		return
	}

	h.writeTwiML(w, func() ([]byte, error) {
		return twiml.Connect(wsURL, sess.Greeting(), h.cfg.Relay)
	})
}

// CallStatus is the status callback webhook. Terminal statuses trigger call
// cleanup; everything else is acknowledged and ignored. Always 204: the
// provider retries non-2xx responses and cleanup is idempotent anyway.
func (h *Handlers) CallStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")

	if callID != "" && terminalStatuses[status] {
		if err := h.coordinator.Close(r.Context(), callID, call.TriggerStatus); err != nil {
			h.log.Error("cleanup from status callback failed", "call_id", callID, "status", status, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTranscripts returns transcript summaries, most recent first. The limit
// query parameter caps the result; default 20, 0 means all.
func (h *Handlers) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sums, err := h.store.ListTranscripts(r.Context(), limit)
	if err != nil {
		h.log.Error("transcript listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing transcripts failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": sums})
}

// GetTranscript returns one call's full transcript.
func (h *Handlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("callID")
	rec, err := h.store.LoadTranscript(r.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no transcript for "+callID)
			return
		}
		h.log.Error("transcript load failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading transcript failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Analyze runs coaching analysis over a stored transcript and persists the
// resulting feedback. Re-analyzing replaces earlier feedback.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "coaching is not configured")
		return
	}

	callID := r.PathValue("callID")
	rec, err := h.store.LoadTranscript(r.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no transcript for "+callID)
			return
		}
		h.log.Error("transcript load failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading transcript failed")
		return
	}

	start := time.Now()
	fb, err := h.analyzer.Analyze(r.Context(), rec)
	if err != nil {
		h.log.Error("analysis failed", "call_id", callID, "error", err)
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}
	observe.DefaultMetrics().CoachAnalysisDuration.Record(r.Context(), time.Since(start).Seconds())

	saved := store.FeedbackRecord{
		CallID:         callID,
		OverallScore:   fb.OverallScore,
		CategoryScores: fb.CategoryScores,
		Rationale:      fb.Rationale,
		AnalyzedAt:     time.Now().UTC(),
	}
	if err := h.store.SaveFeedback(r.Context(), saved); err != nil {
		h.log.Error("feedback save failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "saving feedback failed")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GetFeedback returns previously stored coaching feedback.
func (h *Handlers) GetFeedback(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("callID")
	rec, err := h.store.LoadFeedback(r.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no feedback for "+callID)
			return
		}
		h.log.Error("feedback load failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading feedback failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Summary returns an unscored free-form recap of a call. Nothing is persisted.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "coaching is not configured")
		return
	}

	callID := r.PathValue("callID")
	rec, err := h.store.LoadTranscript(r.Context(), callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no transcript for "+callID)
			return
		}
		h.log.Error("transcript load failed", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "loading transcript failed")
		return
	}

	text, err := h.analyzer.QuickSummary(r.Context(), rec)
	if err != nil {
		h.log.Error("summary failed", "call_id", callID, "error", err)
		writeError(w, http.StatusBadGateway, "summary failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"call_id": callID, "summary": text})
}

// writeTwiML renders a TwiML document, falling back to a plain 500 when even
// rendering fails.
func (h *Handlers) writeTwiML(w http.ResponseWriter, render func() ([]byte, error)) {
	body, err := render()
	if err != nil {
		h.log.Error("twiml rendering failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
