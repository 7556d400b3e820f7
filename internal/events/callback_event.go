package events

// CallbackEvent provides pub/sub behavior with type-safe callbacks.
// Callbacks run synchronously on the goroutine that calls Notify.
type CallbackEvent[T any] struct {
	registry[func(T)]
	last lastValue[T]
}

// NewCallbackEvent creates a new CallbackEvent instance.
// replayLast: if true, new listeners are immediately called with the most
// recent value, provided Notify has been called at least once
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		last: lastValue[T]{enabled: replayLast},
	}
}

// Listen registers a callback and returns a function that removes it
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.add(callback)
	last, replay := e.last.load()
	e.mu.Unlock()

	// outside the lock so the callback may itself Listen or Notify
	if replay {
		callback(last)
	}
	return e.remover(id)
}

// Notify calls every registered callback with value
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	e.last.store(value)
	callbacks := e.snapshot()
	e.mu.Unlock()

	for _, callback := range callbacks {
		callback(value)
	}
}

// ListenerCount returns the current number of registered listeners
func (e *CallbackEvent[T]) ListenerCount() int {
	return e.count()
}
