package engine

import (
	"context"
	"sync"

	"github.com/pitchline-ai/pitchline/internal/resilience"
)

// FallbackOpener opens engine call handles through a [resilience.FallbackGroup]
// so that a failing primary provider is automatically bypassed in favour of a
// healthy fallback. Each provider carries its own circuit breaker.
//
// FallbackOpener is safe for concurrent use.
type FallbackOpener struct {
	group *resilience.FallbackGroup[Provider]

	mu      sync.RWMutex
	persona Persona
}

// NewFallbackOpener creates a FallbackOpener with primary as the first
// provider tried.
func NewFallbackOpener(primary Provider, persona Persona, cfg resilience.FallbackConfig) *FallbackOpener {
	return &FallbackOpener{
		group:   resilience.NewFallbackGroup(primary, primary.Name(), cfg),
		persona: persona,
	}
}

// AddFallback appends a fallback provider, tried after the primary in the
// order added.
func (f *FallbackOpener) AddFallback(p Provider) {
	f.group.AddFallback(p.Name(), p)
}

// Persona returns the persona used for new calls.
func (f *FallbackOpener) Persona() Persona {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.persona
}

// UpdatePersona replaces the persona for subsequently opened calls. Calls
// already in progress keep the persona they started with.
func (f *FallbackOpener) UpdatePersona(p Persona) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persona = p
}

// NewCall opens a call handle on the first healthy provider. When every
// provider fails the returned error wraps [resilience.ErrAllFailed].
func (f *FallbackOpener) NewCall(ctx context.Context) (Call, error) {
	persona := f.Persona()
	return resilience.ExecuteWithResult(f.group, func(p Provider) (Call, error) {
		return p.NewCall(ctx, persona)
	})
}
