package events

import "sync"

// lastValue remembers the most recent notified value so late listeners can be
// brought up to date. The zero value remembers nothing.
type lastValue[T any] struct {
	enabled bool
	value   T
	set     bool
}

func (l *lastValue[T]) store(v T) {
	if !l.enabled {
		return
	}
	l.value = v
	l.set = true
}

func (l *lastValue[T]) load() (T, bool) {
	return l.value, l.enabled && l.set
}

func (l *lastValue[T]) reset() {
	var zero T
	l.value = zero
	l.set = false
}

// registry is an id-keyed set of listeners shared by both event flavours.
// The zero value is ready to use.
type registry[L any] struct {
	mu        sync.RWMutex
	listeners map[uint64]L
	nextID    uint64
}

// add must be called with mu held
func (r *registry[L]) add(l L) uint64 {
	if r.listeners == nil {
		r.listeners = make(map[uint64]L)
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return id
}

func (r *registry[L]) remover(id uint64) func() {
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// snapshot must be called with mu held
func (r *registry[L]) snapshot() []L {
	out := make([]L, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

func (r *registry[L]) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
