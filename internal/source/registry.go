package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// Registry holds adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]crawler.SourceAdapter
}

// NewRegistry registers the given adapters.
func NewRegistry(adapters ...crawler.SourceAdapter) *Registry {
	r := &Registry{adapters: make(map[string]crawler.SourceAdapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(adapter crawler.SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (crawler.SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return adapter, nil
}

// Names lists registered adapters in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
