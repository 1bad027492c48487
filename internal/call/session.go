// Package call implements per-call session state, the in-memory session
// registry, and the cleanup coordinator that persists and tears down calls.
//
// One [Session] exists per live phone call, keyed by the telephony provider's
// call id. All conversational activity for a call is serialized under the
// session's lock: the engine round trip is the dominant suspension point, and
// holding the lock across it means a cleanup trigger racing an in-flight turn
// simply waits until the reply has been emitted. The [Coordinator] owns the
// single Active→Closed transition, which is what makes arbitrary concurrent
// cleanup triggers collapse to exactly one persistence attempt.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitchline-ai/pitchline/internal/engine"
)

// ErrSessionClosed is returned by [Session.RunTurn] when the session has
// already been closed.
var ErrSessionClosed = errors.New("call: session closed")

// Speaker identifies who produced a conversational turn.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Turn is one utterance in a call's history. The history is append-only and
// persisted verbatim, in order, at close.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a session's lifecycle state. Transitions only move forward:
// Active → Terminating → Closed, and Closed is terminal.
type Status int

const (
	// StatusActive is the normal in-conversation state.
	StatusActive Status = iota

	// StatusTerminating marks a session whose caller signalled the end of the
	// call; cleanup is imminent.
	StatusTerminating

	// StatusClosed is terminal. A session enters it exactly once.
	StatusClosed
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusTerminating:
		return "terminating"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the live state of one phone call. The engine handle is
// exclusively owned by the session and destroyed with it.
//
// Methods are safe for concurrent use; each serializes on the session lock.
type Session struct {
	// CallID is the telephony provider's opaque call identifier.
	CallID string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	mu      sync.Mutex
	status  Status
	history []Turn
	eng     engine.Call
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Greeting returns the persona's opening line (the first agent turn), or ""
// if the session has no history yet.
func (s *Session) Greeting() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.history {
		if t.Speaker == SpeakerAgent {
			return t.Text
		}
	}
	return ""
}

// MarkTerminating transitions the session from Active to Terminating.
// It reports whether the transition happened; any other starting state is
// left untouched.
func (s *Session) MarkTerminating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	s.status = StatusTerminating
	return true
}

// RunTurn processes one caller utterance: it appends the caller turn, invokes
// the engine, appends the agent turn, and calls emit with the reply — all
// under the session lock, so cleanup triggered mid-turn is deferred until the
// reply has been emitted.
//
// The caller turn is recorded before the engine is invoked; if the engine
// fails, the utterance is still part of the history that cleanup persists.
// Engine failures are returned wrapped (typically matching
// [engine.ErrUnavailable]); an emit failure is returned after the agent turn
// has been recorded.
func (s *Session) RunTurn(ctx context.Context, utterance string, emit func(reply string) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosed {
		return "", ErrSessionClosed
	}

	s.history = append(s.history, Turn{
		Speaker:   SpeakerCaller,
		Text:      utterance,
		Timestamp: time.Now().UTC(),
	})

	reply, err := s.eng.Turn(ctx, utterance)
	if err != nil {
		return "", fmt.Errorf("call: turn for %s: %w", s.CallID, err)
	}

	s.history = append(s.history, Turn{
		Speaker:   SpeakerAgent,
		Text:      reply,
		Timestamp: time.Now().UTC(),
	})

	if emit != nil {
		if err := emit(reply); err != nil {
			return reply, fmt.Errorf("call: emit reply for %s: %w", s.CallID, err)
		}
	}
	return reply, nil
}

// close transitions the session to Closed and releases its engine handle.
// It returns the final history snapshot and whether this caller won the
// transition; the loser gets closed=false and must not persist.
func (s *Session) close() (history []Turn, eng engine.Call, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosed {
		return nil, nil, false
	}
	s.status = StatusClosed

	history = make([]Turn, len(s.history))
	copy(history, s.history)
	eng = s.eng
	s.eng = nil
	return history, eng, true
}
