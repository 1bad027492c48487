// Package engine defines the conversation engine boundary: the adapter
// interface between per-call sessions and the LLM backend that plays the
// persona.
//
// A [Provider] opens one [Call] per phone call. The Call owns the full
// conversational context for that call (system prompt plus message history)
// and produces exactly one reply per caller utterance. Implementations live
// in the subpackages openai, anyllm, and mock.
package engine

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the engine backend could not produce a reply
// (network failure, timeout, provider outage). Callers should treat the
// affected call as unrecoverable and wind it down gracefully.
var ErrUnavailable = errors.New("engine: unavailable")

// Persona describes the character the engine plays on a call.
type Persona struct {
	// Name is the persona's full name (e.g., "Sarah Chen").
	Name string

	// Role is the persona's job title (e.g., "VP of Operations").
	Role string

	// Label is a short machine-friendly tag recorded in transcript metadata
	// and storage locations (e.g., "sarah-chen").
	Label string

	// SystemPrompt is the full character instruction injected as the system
	// message on every completion.
	SystemPrompt string

	// GreetingInstruction is the synthetic user message used to elicit the
	// opening line when the persona answers the phone. When empty,
	// [DefaultGreetingInstruction] is used.
	GreetingInstruction string

	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64

	// MaxReplyTokens bounds the completion length. Zero means provider default.
	MaxReplyTokens int
}

// DefaultGreetingInstruction is the answer-the-phone prompt used when a
// persona does not configure its own.
const DefaultGreetingInstruction = "You've just answered your office phone. " +
	"Greet the caller professionally but briefly, as you would in a real business call."

// Greeting returns the persona's greeting instruction, falling back to
// [DefaultGreetingInstruction].
func (p Persona) Greeting() string {
	if p.GreetingInstruction != "" {
		return p.GreetingInstruction
	}
	return DefaultGreetingInstruction
}

// Provider creates engine call handles. Implementations must be safe for
// concurrent use; each returned [Call] is independent.
type Provider interface {
	// Name returns the provider's registered name (e.g., "openai",
	// "anthropic"). Used in logs and metrics.
	Name() string

	// NewCall opens a fresh conversational context for one phone call.
	NewCall(ctx context.Context, persona Persona) (Call, error)
}

// Call is the engine handle for a single phone call. A Call is exclusively
// owned by its session and is not safe for concurrent use; the session layer
// serializes access.
type Call interface {
	// Greet produces the persona's opening line and records it in the call's
	// conversational context.
	Greet(ctx context.Context) (string, error)

	// Turn submits one caller utterance and returns the persona's full reply.
	// Both are recorded in the call's conversational context.
	Turn(ctx context.Context, utterance string) (string, error)

	// Close releases the handle. The handle must not be used afterwards.
	Close() error
}
