package job

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// HandlerFunc runs one claimed job. The job carries the worker's lease, so
// handlers can read the attempt count and payload.
type HandlerFunc func(ctx context.Context, j *Job) error

// Registry resolves job titles to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byTitle  map[string]HandlerFunc
	fallback HandlerFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTitle: make(map[string]HandlerFunc)}
}

// RegisterDefinition registers def so its handler receives the payload
// decoded into T. An empty payload leaves T at its zero value.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(def.Title, func(ctx context.Context, j *Job) error {
		var payload T
		if len(j.Payload) > 0 {
			if err := json.Unmarshal(j.Payload, &payload); err != nil {
				return fmt.Errorf("decode %q payload: %w", def.Title, err)
			}
		}
		return def.Handler(ctx, payload)
	})
}

// Register sets the handler for title, replacing any earlier one.
func (r *Registry) Register(title string, h HandlerFunc) {
	r.mu.Lock()
	r.byTitle[title] = h
	r.mu.Unlock()
}

// SetFallback sets the handler for titles nobody registered.
func (r *Registry) SetFallback(h HandlerFunc) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// Lookup returns the handler for title, or the fallback.
func (r *Registry) Lookup(title string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byTitle[title]
	if !ok && r.fallback != nil {
		return r.fallback, true
	}
	return h, ok
}

// Titles returns the registered titles in sorted order.
func (r *Registry) Titles() []string {
	r.mu.RLock()
	titles := make([]string, 0, len(r.byTitle))
	for t := range r.byTitle {
		titles = append(titles, t)
	}
	r.mu.RUnlock()

	slices.Sort(titles)
	return titles
}
