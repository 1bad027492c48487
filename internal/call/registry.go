package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pitchline-ai/pitchline/internal/engine"
	"github.com/pitchline-ai/pitchline/internal/observe"
)

// Opener opens a fresh engine conversation for a new call. It is satisfied by
// [engine.FallbackOpener].
type Opener interface {
	NewCall(ctx context.Context) (engine.Call, error)
}

// Registry tracks live sessions by call id. Creation is idempotent per call
// id: concurrent callers for the same unseen id get the same session, with
// exactly one engine conversation opened for it.
type Registry struct {
	opener  Opener
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry that opens engine conversations through
// opener. A nil metrics falls back to [observe.DefaultMetrics].
func NewRegistry(opener Opener, metrics *observe.Metrics) *Registry {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Registry{
		opener:   opener,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for callID, creating it if absent. On
// creation it opens an engine conversation and obtains the greeting before
// returning; a second caller racing the creation blocks on the session lock
// and observes the fully initialised session.
//
// If the engine cannot be opened or greeted, the placeholder session is
// removed, so a later webhook retry gets a fresh creation attempt.
func (r *Registry) GetOrCreate(ctx context.Context, callID string) (*Session, error) {
	if callID == "" {
		return nil, fmt.Errorf("call: empty call id")
	}

	r.mu.Lock()
	if s, ok := r.sessions[callID]; ok {
		r.mu.Unlock()
		// Block until initialisation (or a racing turn) finishes.
		s.mu.Lock()
		closed := s.status == StatusClosed
		s.mu.Unlock()
		if closed {
			return nil, fmt.Errorf("call: session %s: %w", callID, ErrSessionClosed)
		}
		return s, nil
	}

	s := &Session{
		CallID:    callID,
		CreatedAt: time.Now().UTC(),
	}
	// The session is published locked; it becomes usable only once this
	// goroutine finishes initialising it.
	s.mu.Lock()
	r.sessions[callID] = s
	r.mu.Unlock()

	eng, err := r.opener.NewCall(ctx)
	if err != nil {
		s.status = StatusClosed
		s.mu.Unlock()
		r.Remove(callID)
		r.metrics.RecordEngineError(ctx, "create")
		return nil, fmt.Errorf("call: open engine for %s: %w", callID, err)
	}

	greeting, err := eng.Greet(ctx)
	if err != nil {
		s.status = StatusClosed
		s.mu.Unlock()
		r.Remove(callID)
		_ = eng.Close()
		r.metrics.RecordEngineError(ctx, "greet")
		return nil, fmt.Errorf("call: greet for %s: %w", callID, err)
	}

	s.eng = eng
	s.history = append(s.history, Turn{
		Speaker:   SpeakerAgent,
		Text:      greeting,
		Timestamp: time.Now().UTC(),
	})
	s.mu.Unlock()

	r.metrics.ActiveCalls.Add(ctx, 1)
	return s, nil
}

// Get returns the session for callID, or nil if none exists.
func (r *Registry) Get(callID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[callID]
}

// Remove drops the session for callID from the registry. The session itself
// is untouched; closing it is the coordinator's job.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
