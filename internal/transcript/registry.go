package transcript

import "sync"

// Registry tracks the aggregators of currently active sessions so trailing
// speech can be flushed across all of them at shutdown. The only mutable
// state shared between sessions.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Aggregator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Aggregator)}
}

// Register adds a session's aggregator
func (r *Registry) Register(sessionID string, agg *Aggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = agg
}

// Unregister removes a session's aggregator
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

// Count returns the number of active sessions
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// StopAll stops every registered aggregator and empties the registry. Each
// aggregator flushes its trailing speech at most once.
func (r *Registry) StopAll() {
	r.mu.Lock()
	aggs := make([]*Aggregator, 0, len(r.entries))
	for _, agg := range r.entries {
		aggs = append(aggs, agg)
	}
	r.entries = make(map[string]*Aggregator)
	r.mu.Unlock()

	for _, agg := range aggs {
		agg.Stop()
	}
}
