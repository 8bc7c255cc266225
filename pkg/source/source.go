// Package source manages the registry of upstream connection pools, one
// per configured source, health-checking connections on checkout and
// circuit-breaking a source that is failing outright, per spec.md §4.7.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/executor"
)

// Entry is one configured, live source.
type Entry struct {
	ID         string
	Kind       dialect.Kind
	Descriptor dialect.Descriptor
	Pool       executor.Pool
	close      func() error
}

// Registry holds every configured source's pool. Swapping the map happens
// under a brief exclusive lock; it is never held across I/O (spec.md §5).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers a new source, replacing and closing any prior entry with
// the same id.
func (r *Registry) Add(entry *Entry) {
	r.mu.Lock()
	old := r.entries[entry.ID]
	r.entries[entry.ID] = entry
	r.mu.Unlock()

	if old != nil && old.close != nil {
		_ = old.close()
	}
}

// Remove closes and drops a source.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	old := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if old != nil && old.close != nil {
		_ = old.close()
	}
}

// Get returns a source by id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// All returns every registered source entry, in no particular order.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Close shuts every pool down; used on process exit.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		if e.close != nil {
			_ = e.close()
		}
	}
}

func errUpstreamBusy(cause error) error {
	return apierrors.New(apierrors.KindUpstreamBusy, apierrors.CodeUpstreamBusy, "no upstream connection available").Wrap(cause)
}

func withWaitDeadline(ctx context.Context, maxWait time.Duration) (context.Context, context.CancelFunc) {
	if maxWait <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, maxWait)
}
