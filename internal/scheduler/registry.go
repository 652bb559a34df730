package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// DefaultHandlerTimeout bounds handler execution when a kind has no override.
const DefaultHandlerTimeout = 60 * time.Second

// Handler executes a job of a given kind. The payload is whatever the Job API
// stored; the handler validates it. Implementations must be idempotent: the
// at-least-once contract means a handler that outlives its lease can run
// again on a peer replica.
type Handler func(ctx context.Context, payload json.RawMessage) error

type registration struct {
	handler Handler
	timeout time.Duration
}

// Registry maps job kinds to handlers. Registration happens at process start;
// reads afterwards are effectively lock-free (the RWMutex is uncontended).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register registers a handler with the default execution timeout.
func (r *Registry) Register(kind string, h Handler) {
	r.RegisterWithTimeout(kind, DefaultHandlerTimeout, h)
}

// RegisterWithTimeout registers a handler with a per-kind execution timeout.
// The timeout feeds both the handler context deadline and the lease duration
// chosen at claim time.
func (r *Registry) RegisterWithTimeout(kind string, timeout time.Duration, h Handler) {
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = registration{handler: h, timeout: timeout}
}

// Lookup returns the handler for a kind, if registered.
func (r *Registry) Lookup(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[kind]
	return reg.handler, ok
}

// Has reports whether a handler is registered for kind.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Timeout returns the execution timeout for a kind, or the default when the
// kind is unknown.
func (r *Registry) Timeout(kind string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.handlers[kind]; ok {
		return reg.timeout
	}
	return DefaultHandlerTimeout
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
