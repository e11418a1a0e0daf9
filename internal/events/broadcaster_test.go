package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	defer b.Close()

	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(NewEvent(&ScanProgressData{ScanID: "scan-1", Status: "started", Total: 10}))

	for _, ch := range []<-chan Event{ch1, ch2} {
		event := <-ch
		assert.Equal(t, ScanStarted, event.Type)
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	defer b.Close()

	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	// Unknown ids are ignored.
	b.Unsubscribe("nope")
}

func TestBroadcasterDropsWhenBufferFull(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	defer b.Close()

	_, slow := b.Subscribe()

	// Publish never blocks, even with a subscriber that reads nothing.
	for i := 0; i < subscriberBuffer*2; i++ {
		b.Publish(NewEvent(&ScanProgressData{Status: "progress", Scanned: i}))
	}

	received := 0
	for len(slow) > 0 {
		<-slow
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestBroadcasterCloseStopsDelivery(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())

	_, ch := b.Subscribe()
	b.Close()

	_, open := <-ch
	require.False(t, open)

	// Publishing and re-subscribing after close are safe no-ops.
	b.Publish(NewEvent(&ScanProgressData{Status: "progress"}))
	_, ch2 := b.Subscribe()
	_, open = <-ch2
	assert.False(t, open)
	b.Close()
}
