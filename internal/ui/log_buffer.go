package ui

import (
	"bytes"
	"sync"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/events"
)

const maxLogLines = 1000

// LogBuffer is an io.Writer for a *log.Logger that keeps the most recent
// lines for display. Partial writes are held until their newline arrives.
type LogBuffer struct {
	mu      sync.RWMutex
	lines   []string
	partial []byte

	lineEvent *events.ChannelEvent[string]
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{
		lines:     make([]string, 0, maxLogLines),
		lineEvent: events.NewChannelEvent[string](false),
	}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.partial = append(b.partial, p...)
	var added []string
	for {
		idx := bytes.IndexByte(b.partial, '\n')
		if idx < 0 {
			break
		}
		added = append(added, string(b.partial[:idx]))
		b.partial = b.partial[idx+1:]
	}
	b.lines = append(b.lines, added...)
	if len(b.lines) > maxLogLines {
		b.lines = b.lines[len(b.lines)-maxLogLines:]
	}
	b.mu.Unlock()

	for _, line := range added {
		b.lineEvent.Notify(line)
	}
	return len(p), nil
}

// Tail returns the last n complete lines
func (b *LogBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(b.lines) {
		n = len(b.lines)
	}
	result := make([]string, n)
	copy(result, b.lines[len(b.lines)-n:])
	return result
}

// ListenToLines registers a channel to receive each new line.
// Returns a deregistration function.
func (b *LogBuffer) ListenToLines(ch chan<- string) func() {
	return b.lineEvent.Listen(ch)
}
