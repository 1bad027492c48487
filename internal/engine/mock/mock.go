// Package mock provides scripted engine implementations for tests.
package mock

import (
	"context"
	"sync"

	"github.com/pitchline-ai/pitchline/internal/engine"
)

// Compile-time assertions that the mock types satisfy the engine interfaces.
var _ engine.Provider = (*Provider)(nil)
var _ engine.Call = (*Call)(nil)

// Provider implements engine.Provider with configurable behaviour.
// The zero value is usable: NewCall returns a fresh default [Call].
type Provider struct {
	// ProviderName overrides the name reported by Name. Default: "mock".
	ProviderName string

	// NewCallFunc, when set, replaces the default NewCall behaviour.
	NewCallFunc func(ctx context.Context, persona engine.Persona) (engine.Call, error)

	mu       sync.Mutex
	newCalls int
}

// Name implements engine.Provider.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// NewCall implements engine.Provider.
func (p *Provider) NewCall(ctx context.Context, persona engine.Persona) (engine.Call, error) {
	p.mu.Lock()
	p.newCalls++
	p.mu.Unlock()

	if p.NewCallFunc != nil {
		return p.NewCallFunc(ctx, persona)
	}
	return &Call{Persona: persona}, nil
}

// NewCallCount returns how many times NewCall has been invoked.
func (p *Provider) NewCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newCalls
}

// Call implements engine.Call with scripted replies and full recording of
// received utterances.
type Call struct {
	// Persona is the persona passed to NewCall.
	Persona engine.Persona

	// GreetReply is returned by Greet. Default: "Hello, this is the mock persona."
	GreetReply string

	// TurnFunc, when set, computes the reply for each utterance. When nil,
	// Turn echoes `ack: <utterance>`.
	TurnFunc func(ctx context.Context, utterance string) (string, error)

	// GreetErr and TurnErr force the corresponding method to fail.
	GreetErr error
	TurnErr  error

	mu         sync.Mutex
	utterances []string
	closed     bool
}

// Greet implements engine.Call.
func (c *Call) Greet(_ context.Context) (string, error) {
	if c.GreetErr != nil {
		return "", c.GreetErr
	}
	if c.GreetReply != "" {
		return c.GreetReply, nil
	}
	return "Hello, this is the mock persona.", nil
}

// Turn implements engine.Call.
func (c *Call) Turn(ctx context.Context, utterance string) (string, error) {
	c.mu.Lock()
	c.utterances = append(c.utterances, utterance)
	c.mu.Unlock()

	if c.TurnErr != nil {
		return "", c.TurnErr
	}
	if c.TurnFunc != nil {
		return c.TurnFunc(ctx, utterance)
	}
	return "ack: " + utterance, nil
}

// Close implements engine.Call.
func (c *Call) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *Call) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Utterances returns a copy of all utterances received by Turn.
func (c *Call) Utterances() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.utterances))
	copy(out, c.utterances)
	return out
}
