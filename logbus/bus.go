// Package logbus provides the ordered event stream of tagged log lines
// shared by the provisioning pipeline and the service engine. Producers
// publish through a single append point; subscribers receive lines in
// publish order over buffered channels.
package logbus

import (
	"fmt"
	"sync"
	"time"
)

// Stream identifies which pipe of a producer a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// SourceService tags lines emitted by the service lifecycle controller
// rather than by a pipeline step.
const SourceService = "service"

// Line is one immutable log line.
type Line struct {
	Time   time.Time
	Source string
	Stream Stream
	Text   string
}

const (
	defaultHistory   = 2000
	subscriberBuffer = 256
)

// Bus is an append-only line stream with a bounded history ring.
// Both the history and per-subscriber buffers drop the oldest line when
// full; producers never block.
type Bus struct {
	mu      sync.Mutex
	history []Line
	max     int
	subs    map[int]chan Line
	nextID  int
}

// New creates a Bus with the default history capacity.
func New() *Bus {
	return NewWithCapacity(defaultHistory)
}

// NewWithCapacity creates a Bus retaining at most n lines of history.
func NewWithCapacity(n int) *Bus {
	if n < 1 {
		n = 1
	}
	return &Bus{max: n, subs: make(map[int]chan Line)}
}

// Publish appends a line and fans it out to all subscribers.
// A zero Time is stamped with the current time.
func (b *Bus) Publish(line Line) {
	if line.Time.IsZero() {
		line.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, line)
	if len(b.history) > b.max {
		b.history = b.history[len(b.history)-b.max:]
	}

	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
			// Subscriber buffer full: drop its oldest line and retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- line:
			default:
			}
		}
	}
}

// Publishf formats and publishes a line from the given source.
func (b *Bus) Publishf(source string, stream Stream, format string, a ...any) {
	b.Publish(Line{Source: source, Stream: stream, Text: fmt.Sprintf(format, a...)})
}

// Subscribe registers a new subscriber. The returned cancel function
// detaches it; detaching never affects producers or other subscribers.
func (b *Bus) Subscribe() (<-chan Line, func()) {
	ch := make(chan Line, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// History returns a copy of the retained lines, oldest first.
func (b *Bus) History() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Line, len(b.history))
	copy(out, b.history)
	return out
}

// Last returns the most recent line, if any.
func (b *Bus) Last() (Line, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 {
		return Line{}, false
	}
	return b.history[len(b.history)-1], true
}

// Clear discards the retained history. Subscribers are unaffected.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
}
