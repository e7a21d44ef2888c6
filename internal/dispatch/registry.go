package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/codefionn/sockrpc/internal/protocol"
)

// Handler executes one command. Args arrive validated against the manifest
// when one is active; defaults declared for absent optional arguments have
// already been substituted. The context is cancelled when the request's
// deadline expires, so blocking work should honor it. Returning a non-nil
// error sends it to the caller verbatim; otherwise the result is wrapped
// in a success response.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, *protocol.StructuredError)

// Registry maps command names to handlers. It is safe to register and
// unregister while the server is dispatching.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a command name, replacing any existing
// binding.
func (r *Registry) Register(command string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[command] = h
}

// Unregister removes the handler for a command, if any.
func (r *Registry) Unregister(command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, command)
}

// Lookup returns the handler bound to a command.
func (r *Registry) Lookup(command string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[command]
	return h, ok
}

// Commands returns the registered command names in sorted order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
