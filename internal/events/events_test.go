package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackEvent_Listen_Notify_Basic(t *testing.T) {
	event := NewCallbackEvent[string](false)

	var mu sync.Mutex
	received := make([]string, 0)
	unregister := event.Listen(func(value string) {
		mu.Lock()
		received = append(received, value)
		mu.Unlock()
	})
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("connected")
	event.Notify("disconnected")

	mu.Lock()
	assert.Equal(t, []string{"connected", "disconnected"}, received)
	mu.Unlock()

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("ignored")
	mu.Lock()
	assert.Len(t, received, 2)
	mu.Unlock()
}

func TestCallbackEvent_NoReplayByDefault(t *testing.T) {
	event := NewCallbackEvent[int](false)
	event.Notify(7)

	called := false
	event.Listen(func(int) { called = true })
	assert.False(t, called)
}

func TestCallbackEvent_ReplayLast(t *testing.T) {
	event := NewCallbackEvent[int](true)

	var got []int
	event.Listen(func(v int) { got = append(got, v) })
	assert.Empty(t, got, "nothing to replay before the first Notify")

	event.Notify(1)
	event.Notify(2)

	var late []int
	event.Listen(func(v int) { late = append(late, v) })
	assert.Equal(t, []int{2}, late)
	assert.Equal(t, []int{1, 2}, got)
}

func TestCallbackEvent_ListenFromCallbackDoesNotDeadlock(t *testing.T) {
	event := NewCallbackEvent[int](true)
	event.Notify(1)

	nested := 0
	event.Listen(func(int) {
		event.Listen(func(int) { nested++ })
	})
	assert.Equal(t, 1, nested)
}

func TestCallbackEvent_NilPanics(t *testing.T) {
	event := NewCallbackEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}

func TestChannelEvent_Listen_Notify(t *testing.T) {
	event := NewChannelEvent[float64](false)

	ch := make(chan float64, 4)
	unregister := event.Listen(ch)

	event.Notify(1.5)
	event.Notify(2.5)

	require.Len(t, ch, 2)
	assert.Equal(t, 1.5, <-ch)
	assert.Equal(t, 2.5, <-ch)

	unregister()
	event.Notify(3.5)
	assert.Len(t, ch, 0)
}

func TestChannelEvent_FullChannelIsSkipped(t *testing.T) {
	event := NewChannelEvent[int](false)

	full := make(chan int)
	roomy := make(chan int, 1)
	event.Listen(full)
	event.Listen(roomy)

	event.Notify(9)
	assert.Equal(t, 9, <-roomy)
}

func TestChannelEvent_ReplayLast(t *testing.T) {
	event := NewChannelEvent[string](true)
	event.Notify("first")
	event.Notify("second")

	ch := make(chan string, 1)
	event.Listen(ch)
	require.Len(t, ch, 1)
	assert.Equal(t, "second", <-ch)
}

func TestChannelEvent_Forget(t *testing.T) {
	event := NewChannelEvent[int](true)
	event.Notify(5)
	event.Forget()

	ch := make(chan int, 1)
	event.Listen(ch)
	assert.Len(t, ch, 0)

	event.Notify(6)
	assert.Equal(t, 6, <-ch)
}

func TestChannelEvent_ConcurrentNotify(t *testing.T) {
	event := NewChannelEvent[int](true)
	ch := make(chan int, 100)
	event.Listen(ch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			event.Notify(v)
		}(i)
	}
	wg.Wait()
	assert.Len(t, ch, 50)
}

func TestChannelEvent_NilPanics(t *testing.T) {
	event := NewChannelEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}
