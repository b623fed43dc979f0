package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one operation. The returned value must be representable by
// the worker's codec.
type Handler func(ctx context.Context, args Args) (any, error)

// Backend resolves operation names to handlers.
type Backend interface {
	Lookup(name string) (Handler, bool)
}

// Operation is a registered operation. It satisfies queue.OperationRef, so a
// client holding it submits exactly the same task as with the name alone.
type Operation struct {
	name string
}

// OperationName returns the name the operation was registered under.
func (o Operation) OperationName() string {
	return o.name
}

// String implements fmt.Stringer.
func (o Operation) String() string {
	return o.name
}

// Registry is the capability table of a worker: the set of operations it
// exposes. Unregistered names can never be dispatched.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register exposes h under name and returns its reference. It panics on an
// empty name, a nil handler or a duplicate name, all of which are programming
// errors.
func (r *Registry) Register(name string, h Handler) Operation {
	if name == "" {
		panic("worker: operation name cannot be empty")
	}
	if h == nil {
		panic(fmt.Sprintf("worker: nil handler for operation %q", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("worker: operation %q already registered", name))
	}
	r.handlers[name] = h
	return Operation{name: name}
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
