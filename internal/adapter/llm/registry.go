package llm

import (
	"maps"
	"slices"
	"sync"

	"talentscan/internal/domain"
)

// Registry holds the built adapter for every available provider, keyed by
// provider name. Entries may be wrapped in decorators.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds p under p.Name(). Names are unique.
func (r *Registry) Register(p domain.LLMProvider) error {
	name := p.Name()
	if name == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "provider has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.providers[name]; dup {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "duplicate provider "+name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered as name, or ErrProviderNotFound.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns the registered names sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// Providers returns a copy suitable for airouter.New.
func (r *Registry) Providers() map[string]domain.LLMProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.providers)
}

// BreakerState reports the circuit state of a registered provider, or "-"
// when it has no breaker.
func (r *Registry) BreakerState(name string) string {
	p, err := r.Get(name)
	if err != nil {
		return "-"
	}
	for p != nil {
		switch w := p.(type) {
		case *BreakerProvider:
			return w.State().String()
		case interface{ Unwrap() domain.LLMProvider }:
			p = w.Unwrap()
		default:
			return "-"
		}
	}
	return "-"
}
