package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pitchline-ai/pitchline/internal/coach"
	"github.com/pitchline-ai/pitchline/internal/engine"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	engine map[string]func(ProviderEntry) (engine.Provider, error)
	coach  map[string]func(ProviderEntry) (coach.Analyzer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engine: make(map[string]func(ProviderEntry) (engine.Provider, error)),
		coach:  make(map[string]func(ProviderEntry) (coach.Analyzer, error)),
	}
}

// RegisterEngine registers an engine provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory func(ProviderEntry) (engine.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine[name] = factory
}

// RegisterCoach registers an analysis provider factory under name.
func (r *Registry) RegisterCoach(name string, factory func(ProviderEntry) (coach.Analyzer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coach[name] = factory
}

// CreateEngine instantiates an engine provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateEngine(entry ProviderEntry) (engine.Provider, error) {
	r.mu.RLock()
	factory, ok := r.engine[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCoach instantiates an analysis provider using the factory registered
// under entry.Name.
func (r *Registry) CreateCoach(entry ProviderEntry) (coach.Analyzer, error) {
	r.mu.RLock()
	factory, ok := r.coach[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: coach/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
