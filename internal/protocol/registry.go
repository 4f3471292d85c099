package protocol

// subscription is one installed subscription of a connection.
type subscription struct {
	id     string
	handle Handle
	seq    uint64
}

// Registry maps client subscription ids to installed subscriptions.
// It is not synchronized and must only be used from the session loop.
type Registry struct {
	entries map[string]*subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*subscription)}
}

// Put stores sub under id, silently overwriting any previous entry.
// Callers unsubscribe the previous handle first.
func (r *Registry) Put(id string, sub *subscription) {
	r.entries[id] = sub
}

// Get returns the subscription stored under id.
func (r *Registry) Get(id string) (*subscription, bool) {
	sub, ok := r.entries[id]
	return sub, ok
}

// Take removes and returns the subscription stored under id.
func (r *Registry) Take(id string) (*subscription, bool) {
	sub, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return sub, ok
}

// RemoveAll empties the registry and returns what it held.
func (r *Registry) RemoveAll() []*subscription {
	subs := make([]*subscription, 0, len(r.entries))
	for id, sub := range r.entries {
		subs = append(subs, sub)
		delete(r.entries, id)
	}
	return subs
}

// Len returns the number of installed subscriptions.
func (r *Registry) Len() int {
	return len(r.entries)
}
