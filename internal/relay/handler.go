package relay

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/pitchline-ai/pitchline/internal/call"
	"github.com/pitchline-ai/pitchline/internal/intent"
	"github.com/pitchline-ai/pitchline/internal/observe"
)

// apologyText is spoken when a turn cannot be processed, before the call is
// torn down.
const apologyText = "I'm sorry, I'm having trouble hearing you. Let's pick this up another time."

// defaultTurnTimeout bounds one engine round trip. Callers hang up on dead
// air well before a minute.
const defaultTurnTimeout = 30 * time.Second

// Handler serves ConversationRelay WebSocket streams. One stream corresponds
// to one phone call.
type Handler struct {
	registry    *call.Registry
	coordinator *call.Coordinator
	turnTimeout time.Duration
	metrics     *observe.Metrics
	log         *slog.Logger
}

// NewHandler creates a relay handler. A zero turnTimeout uses the default;
// nil metrics and logger fall back to package defaults.
func NewHandler(registry *call.Registry, coordinator *call.Coordinator, turnTimeout time.Duration, metrics *observe.Metrics, log *slog.Logger) *Handler {
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		registry:    registry,
		coordinator: coordinator,
		turnTimeout: turnTimeout,
		metrics:     metrics,
		log:         log,
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the stream until the
// provider disconnects or the call ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("relay upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	h.Serve(r.Context(), NewStream(conn, h.log))
	conn.Close(websocket.StatusNormalClosure, "call ended")
}

// Serve runs the event loop for one stream. It returns when the stream
// closes, after ensuring the call's cleanup has run.
//
// The stream closing for any reason is itself a cleanup trigger: a caller
// hanging up mid-conversation tears the call down exactly like a spoken
// goodbye would.
func (h *Handler) Serve(ctx context.Context, stream EventStream) {
	var callID string

	// Cleanup must run even when ctx died with the connection.
	defer func() {
		if callID == "" {
			return
		}
		if err := h.coordinator.Close(context.WithoutCancel(ctx), callID, call.TriggerDisconnect); err != nil {
			h.log.Error("cleanup after disconnect failed", "call_id", callID, "error", err)
		}
	}()

	for {
		ev, err := stream.ReadEvent(ctx)
		if err != nil {
			h.log.Debug("relay stream closed", "call_id", callID, "error", err)
			return
		}

		switch ev.Type {
		case EventSetup:
			if ev.CallID == "" {
				h.log.Warn("setup event without call id")
				continue
			}
			callID = ev.CallID
			// Usually a no-op: the incoming-call webhook created the session.
			if _, err := h.registry.GetOrCreate(ctx, callID); err != nil {
				h.log.Error("session setup failed", "call_id", callID, "error", err)
				_ = stream.WriteEvent(ctx, TextEvent(apologyText))
				return
			}
			h.log.Info("relay stream established", "call_id", callID)

		case EventPrompt:
			utterance := strings.TrimSpace(ev.VoicePrompt)
			if utterance == "" {
				continue
			}
			// A prompt may identify the call itself when no setup preceded it;
			// the session is then created lazily in handlePrompt.
			if callID == "" {
				callID = ev.CallID
			}
			if callID == "" {
				h.log.Warn("prompt without call id, dropping", "utterance_len", len(utterance))
				continue
			}
			done, err := h.handlePrompt(ctx, stream, callID, utterance)
			if err != nil || done {
				return
			}

		case EventInterrupt:
			h.log.Debug("caller interrupted reply", "call_id", callID)

		case EventError:
			h.log.Error("provider reported stream error", "call_id", callID, "description", ev.Description)

		default:
			h.log.Debug("ignoring relay event", "type", ev.Type)
		}
	}
}

// handlePrompt runs one caller utterance through the session. done reports
// that the call ended normally via a termination signal; err reports a turn
// failure, after which the call has already been cleaned up.
func (h *Handler) handlePrompt(ctx context.Context, stream EventStream, callID, utterance string) (done bool, err error) {
	sess, err := h.registry.GetOrCreate(ctx, callID)
	if err != nil {
		h.log.Error("no session for prompt", "call_id", callID, "error", err)
		_ = stream.WriteEvent(ctx, TextEvent(apologyText))
		_ = h.coordinator.Close(context.WithoutCancel(ctx), callID, call.TriggerError)
		return false, err
	}

	turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	start := time.Now()
	_, err = sess.RunTurn(turnCtx, utterance, func(reply string) error {
		return stream.WriteEvent(ctx, TextEvent(reply))
	})
	if err != nil {
		h.metrics.RecordEngineError(ctx, "turn")
		h.log.Error("turn failed", "call_id", callID, "error", err)
		_ = stream.WriteEvent(ctx, TextEvent(apologyText))
		_ = h.coordinator.Close(context.WithoutCancel(ctx), callID, call.TriggerError)
		return false, err
	}
	h.metrics.RecordTurn(ctx, time.Since(start))

	// The reply to a goodbye still goes out before the call is torn down.
	if intent.IsTerminationSignal(utterance) {
		sess.MarkTerminating()
		h.log.Info("termination signal detected", "call_id", callID)
		if err := h.coordinator.Close(context.WithoutCancel(ctx), callID, call.TriggerTermination); err != nil {
			h.log.Error("cleanup after termination failed", "call_id", callID, "error", err)
		}
		return true, nil
	}
	return false, nil
}
