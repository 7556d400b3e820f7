package events

// ChannelEvent provides pub/sub behavior using channels.
// Sends never block: a full channel misses that value.
type ChannelEvent[T any] struct {
	registry[chan<- T]
	last lastValue[T]
}

// NewChannelEvent creates a new ChannelEvent instance.
// replayLast: if true, new listeners are immediately sent the most recent
// value, provided Notify has been called at least once
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		last: lastValue[T]{enabled: replayLast},
	}
}

// Listen registers a channel and returns a function that removes it
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	id := e.add(ch)
	last, replay := e.last.load()
	e.mu.Unlock()

	if replay {
		trySend(ch, last)
	}
	return e.remover(id)
}

// Notify sends value to every registered channel
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	e.last.store(value)
	channels := e.snapshot()
	e.mu.Unlock()

	for _, ch := range channels {
		trySend(ch, value)
	}
}

// Forget drops the remembered value so new listeners start empty
func (e *ChannelEvent[T]) Forget() {
	e.mu.Lock()
	e.last.reset()
	e.mu.Unlock()
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	return e.count()
}

func trySend[T any](ch chan<- T, value T) bool {
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}
