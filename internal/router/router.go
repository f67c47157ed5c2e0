package router

import (
	"log"
	"sync"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/domain"
)

// Candidate is one model the executor may try, with its ready adapter
type Candidate struct {
	Model    domain.ModelDescriptor
	Provider provider.Provider
}

// Router resolves a requested model into an ordered attempt plan
type Router struct {
	cooldown *cooldown.Manager

	// Adapter cache
	adapters map[domain.ProviderType]provider.Provider
	mu       sync.RWMutex
}

// NewRouter creates a new router. A nil cooldown manager disables
// cooldown-aware ordering.
func NewRouter(cm *cooldown.Manager) *Router {
	return &Router{
		cooldown: cm,
		adapters: make(map[domain.ProviderType]provider.Provider),
	}
}

// InitAdapters creates adapters for every configured provider. Providers
// without a credential or without a registered factory are skipped.
func (r *Router) InitAdapters(configs map[domain.ProviderType]provider.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pt, cfg := range configs {
		if !cfg.Configured() {
			continue
		}
		factory, ok := provider.GetAdapterFactory(pt)
		if !ok {
			log.Printf("[Router] No adapter registered for provider %s", pt)
			continue
		}
		a, err := factory(cfg)
		if err != nil {
			return err
		}
		r.adapters[pt] = a
		log.Printf("[Router] Provider %s ready", pt)
	}
	return nil
}

// SetAdapter installs an adapter directly
func (r *Router) SetAdapter(pt domain.ProviderType, a provider.Provider) {
	r.mu.Lock()
	r.adapters[pt] = a
	r.mu.Unlock()
}

// RemoveAdapter removes the adapter for a provider
func (r *Router) RemoveAdapter(pt domain.ProviderType) {
	r.mu.Lock()
	delete(r.adapters, pt)
	r.mu.Unlock()
}

// Adapter returns the adapter of a provider, if configured
func (r *Router) Adapter(pt domain.ProviderType) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[pt]
	return a, ok
}

func (r *Router) Configured(pt domain.ProviderType) bool {
	_, ok := r.Adapter(pt)
	return ok
}

// Plan returns the models to try for a request: the requested model first,
// then the fallback order, without repeats. Models whose provider is not
// configured are left out. Providers in cooldown go to the end.
func (r *Router) Plan(requestedID string) ([]*Candidate, error) {
	if requestedID == "" {
		requestedID = domain.DefaultModelID
	}
	if _, ok := domain.LookupModel(requestedID); !ok {
		return nil, domain.ErrUnknownModel
	}

	ids := make([]string, 0, len(domain.FallbackOrder)+1)
	seen := map[string]bool{}
	for _, id := range append([]string{requestedID}, domain.FallbackOrder...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var ready, cooling []*Candidate
	for _, id := range ids {
		m, ok := domain.LookupModel(id)
		if !ok {
			continue
		}
		a, ok := r.adapters[m.Provider]
		if !ok {
			continue
		}
		c := &Candidate{Model: m, Provider: a}
		if r.cooldown != nil && r.cooldown.IsInCooldown(m.Provider) {
			cooling = append(cooling, c)
			continue
		}
		ready = append(ready, c)
	}

	if len(cooling) > 0 {
		log.Printf("[Router] %d provider(s) in cooldown moved to the end of the plan", len(cooling))
	}
	return append(ready, cooling...), nil
}
