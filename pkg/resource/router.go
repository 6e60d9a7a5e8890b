package resource

import (
	"strings"
	"sync"
)

// Registry is a Router backed by a map from path to provider.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// NormalizePath strips any query and surrounding slashes.
func NormalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.Trim(path, "/")
}

// Add registers p under path, replacing any previous provider.
func (r *Registry) Add(path string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[NormalizePath(path)] = p
}

// Remove unregisters path.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, NormalizePath(path))
}

// Lookup implements Router.
func (r *Registry) Lookup(path string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[NormalizePath(path)]
	return p, ok
}

// Paths returns the registered paths.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	return out
}

var _ Router = (*Registry)(nil)
