package scan

import "github.com/finwatch/signalscan/internal/events"

// ChannelSink delivers progress events over a channel. Emission blocks until
// the consumer reads, preserving event order; the channel is closed with the
// sink, so ranging over it terminates with the scan.
type ChannelSink struct {
	ch chan events.ScanProgressData
}

// NewChannelSink creates a channel-backed sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan events.ScanProgressData, buffer)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan events.ScanProgressData {
	return s.ch
}

// Emit sends an event to the consumer.
func (s *ChannelSink) Emit(data events.ScanProgressData) {
	s.ch <- data
}

// Close closes the event channel.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// BroadcastSink publishes progress events onto the shared event bus, one
// bus event per progress snapshot. The bus outlives individual scans, so
// Close is a no-op; subscribers treat the terminal event as end-of-stream.
type BroadcastSink struct {
	broadcaster *events.Broadcaster
}

// NewBroadcastSink wraps the shared broadcaster as a progress sink.
func NewBroadcastSink(b *events.Broadcaster) *BroadcastSink {
	return &BroadcastSink{broadcaster: b}
}

// Emit publishes the snapshot to all bus subscribers.
func (s *BroadcastSink) Emit(data events.ScanProgressData) {
	s.broadcaster.Publish(events.NewEvent(&data))
}

// Close implements ProgressSink.
func (s *BroadcastSink) Close() {}
