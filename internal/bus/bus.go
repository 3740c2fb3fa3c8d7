package bus

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bus is an in-process publish/subscribe event bus with room filtering.
// Delivery is best-effort: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	pattern string
	ch      chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose pattern matches event.Room.
// ID and Timestamp are filled in when empty.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if Match(sub.pattern, evt.Room) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber is full.
			}
		}
	}
}

// Emit is shorthand for publishing a payload under a name to a room.
func (b *Bus) Emit(room, name string, payload any) {
	b.Publish(Event{Room: room, Name: name, Payload: payload})
}

// Subscribe returns a channel that receives events for rooms matching pattern.
// A pattern is an exact room name, a prefix ending in "*", or "*" for everything.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(pattern string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{pattern: pattern, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Match reports whether room satisfies a subscription pattern.
func Match(pattern, room string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(room, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == room
	}
}
