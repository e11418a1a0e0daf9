package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberBuffer is sized so a subscriber can fall a full progress batch
// behind before events start dropping.
const subscriberBuffer = 64

// Broadcaster fans events out to subscribers. Publishing never blocks: a
// subscriber that cannot keep up has events dropped, with a warning, rather
// than stalling the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	log         zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan Event),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is closed when the subscriber unsubscribes or the broadcaster
// shuts down.
func (b *Broadcaster) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)

	if b.closed {
		close(ch)
		return id, ch
	}

	b.subscribers[id] = ch
	b.log.Debug().Str("subscriber", id).Int("count", len(b.subscribers)).Msg("Subscriber added")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call with
// an unknown id.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)
	b.log.Debug().Str("subscriber", id).Int("count", len(b.subscribers)).Msg("Subscriber removed")
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().Str("subscriber", id).Str("type", string(event.Type)).Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts the broadcaster down, closing all subscriber channels.
// Publish becomes a no-op afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.log.Debug().Msg("Broadcaster closed")
}
