package connection

import "sync"

// Registry tracks which buttons have an attached press listener.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string]bool),
	}
}

// HasListener reports whether the button has an attached listener.
func (r *Registry) HasListener(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listeners[address]
}

// SetListener records the listener state of the button.
func (r *Registry) SetListener(address string, attached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners[address] = attached
}

// Reset forgets every listener. Only a full manager re-initialization calls it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.listeners)
}

// Len returns the number of buttons with an attached listener.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0

	for _, attached := range r.listeners {
		if attached {
			n++
		}
	}

	return n
}
