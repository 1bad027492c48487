package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchline-ai/pitchline/internal/observe"
)

// Cleanup triggers. Any of these may fire for the same call, in any order;
// the first to arrive performs cleanup and the rest are no-ops.
const (
	// TriggerTermination is a conversational goodbye detected in the caller's
	// speech.
	TriggerTermination = "termination-signal"

	// TriggerStatus is a terminal call status delivered by the telephony
	// provider's status webhook.
	TriggerStatus = "status-callback"

	// TriggerDisconnect is the event stream closing without a prior
	// termination signal.
	TriggerDisconnect = "stream-disconnect"

	// TriggerError is an unrecoverable processing failure mid-call.
	TriggerError = "processing-error"
)

// Metadata describes the persona on record for persisted transcripts.
type Metadata struct {
	PersonaName  string
	PersonaRole  string
	PersonaLabel string
}

// TranscriptWriter persists a finished call's transcript. Implemented by the
// store package.
type TranscriptWriter interface {
	SaveTranscript(ctx context.Context, callID string, meta Metadata, startedAt time.Time, turns []Turn) error
}

// Coordinator performs idempotent call cleanup: persist the transcript,
// release the engine conversation, and drop the session from the registry.
//
// Cleanup for a given call runs at most once no matter how many triggers
// fire; losers of the Closed transition return immediately.
type Coordinator struct {
	registry *Registry
	writer   TranscriptWriter
	meta     Metadata
	metrics  *observe.Metrics
	log      *slog.Logger
}

// NewCoordinator creates a coordinator over the given registry and transcript
// writer. A nil metrics falls back to [observe.DefaultMetrics]; a nil logger
// falls back to [slog.Default].
func NewCoordinator(registry *Registry, writer TranscriptWriter, meta Metadata, metrics *observe.Metrics, log *slog.Logger) *Coordinator {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		writer:   writer,
		meta:     meta,
		metrics:  metrics,
		log:      log,
	}
}

// Close tears down the session for callID. It is safe to call concurrently
// and repeatedly: unknown call ids and already-closed sessions are no-ops.
//
// The transcript is persisted before the session leaves the registry, so a
// transcript read that observes the call as gone also observes its transcript.
// A persistence failure is returned to the caller, but the engine release and
// registry removal still complete; the conversation is lost in that case.
func (c *Coordinator) Close(ctx context.Context, callID, trigger string) error {
	s := c.registry.Get(callID)
	if s == nil {
		return nil
	}

	history, eng, won := s.close()
	if !won {
		return nil
	}

	var persistErr error
	switch {
	case len(history) == 0:
		c.metrics.RecordTranscriptWrite(ctx, "skipped")
		c.log.Debug("skipping empty transcript", "call_id", callID)
	case c.writer == nil:
		c.metrics.RecordTranscriptWrite(ctx, "skipped")
	default:
		if err := c.writer.SaveTranscript(ctx, callID, c.meta, s.CreatedAt, history); err != nil {
			c.metrics.RecordTranscriptWrite(ctx, "error")
			persistErr = fmt.Errorf("call: persist transcript for %s: %w", callID, err)
			c.log.Error("transcript persistence failed", "call_id", callID, "error", err)
		} else {
			c.metrics.RecordTranscriptWrite(ctx, "ok")
		}
	}

	if eng != nil {
		if err := eng.Close(); err != nil {
			c.log.Warn("engine close failed", "call_id", callID, "error", err)
		}
	}

	c.registry.Remove(callID)

	c.metrics.CallDuration.Record(ctx, time.Since(s.CreatedAt).Seconds())
	c.metrics.RecordTermination(ctx, trigger)
	c.metrics.ActiveCalls.Add(ctx, -1)

	c.log.Info("call closed",
		"call_id", callID,
		"trigger", trigger,
		"turns", len(history),
		"duration", time.Since(s.CreatedAt).Round(time.Millisecond),
	)
	return persistErr
}
