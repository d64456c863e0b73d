package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned by the Create methods when nothing is
// registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SessionFactory builds a session provider from its config section.
type SessionFactory func(SessionConfig) (s2s.Provider, error)

// StoreFactory opens a complaint store from its config section.
type StoreFactory func(context.Context, StoreConfig) (complaint.Store, error)

// Registry maps names to constructors so that the command layer chooses
// backends from configuration alone. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]SessionFactory
	stores   map[StoreBackend]StoreFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]SessionFactory),
		stores:   make(map[StoreBackend]StoreFactory),
	}
}

// RegisterSession registers a session provider factory under name,
// replacing any earlier registration.
func (r *Registry) RegisterSession(name string, factory SessionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[name] = factory
}

// RegisterStore registers a complaint store factory for backend.
func (r *Registry) RegisterStore(backend StoreBackend, factory StoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[backend] = factory
}

// CreateSession instantiates the provider named by cfg.Provider.
func (r *Registry) CreateSession(cfg SessionConfig) (s2s.Provider, error) {
	r.mu.RLock()
	factory, ok := r.sessions[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateStore opens the store selected by cfg.Backend.
func (r *Registry) CreateStore(ctx context.Context, cfg StoreConfig) (complaint.Store, error) {
	r.mu.RLock()
	factory, ok := r.stores[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: store/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// SessionNames returns the registered session provider names, sorted.
func (r *Registry) SessionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sessions))
	for n := range r.sessions {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
