// Information Hiding:
// - Sink map and its lock hidden behind Attach/Detach/Get
package stream

import "sync"

// Registry maps chat ids to their live sinks so concurrent runs stream to
// the right consumer. Construct one per process and inject it wherever runs
// are started; the package deliberately has no global instance.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Attach binds a sink to a chat id, replacing any previous binding.
// The replaced sink, if any, is returned so the caller can close it.
func (r *Registry) Attach(chatID string, sink Sink) Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sinks[chatID]
	r.sinks[chatID] = sink
	return prev
}

// Detach removes and returns the sink for a chat id, nil when none is bound.
func (r *Registry) Detach(chatID string) Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	sink := r.sinks[chatID]
	delete(r.sinks, chatID)
	return sink
}

// Get returns the sink bound to a chat id.
func (r *Registry) Get(chatID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[chatID]
	return sink, ok
}

// Len reports how many chats currently stream.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
