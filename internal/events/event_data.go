package events

import (
	"encoding/json"
	"time"
)

// EventType identifies an event on the bus.
type EventType string

const (
	// ScanStarted is emitted once when a refresh scan begins.
	ScanStarted EventType = "scan.started"
	// ScanProgressed is emitted in batches while a scan runs.
	ScanProgressed EventType = "scan.progress"
	// ScanCompleted is the terminal event of every scan, aborted or not.
	ScanCompleted EventType = "scan.completed"
	// WatchlistChanged is emitted when the watch list is edited.
	WatchlistChanged EventType = "watchlist.changed"
	// ErrorOccurred carries a non-fatal error to subscribers.
	ErrorOccurred EventType = "error"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// ScanProgressData contains the counters for scan lifecycle events.
// Scanned counts every symbol that left the pending state, including the
// skipped and errored ones; Scanned == Total on the terminal event.
type ScanProgressData struct {
	ScanID  string `json:"scan_id"`
	Status  string `json:"status"` // "started", "progress", "done"
	Scanned int    `json:"scanned"`
	Total   int    `json:"total"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`

	// CompletedAt is set only on the terminal event.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EventType returns the event type for ScanProgressData
func (d *ScanProgressData) EventType() EventType {
	switch d.Status {
	case "started":
		return ScanStarted
	case "done":
		return ScanCompleted
	default:
		return ScanProgressed
	}
}

// WatchlistChangedData contains data for WatchlistChanged events
type WatchlistChangedData struct {
	Symbol string `json:"symbol"`
	Action string `json:"action"` // "added", "removed", "excluded", "included"
}

// EventType returns the event type for WatchlistChangedData
func (d *WatchlistChangedData) EventType() EventType {
	return WatchlistChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// Event represents an event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// NewEvent wraps data in an Event stamped with the current time.
func NewEvent(data EventData) Event {
	return Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case ScanStarted, ScanProgressed, ScanCompleted:
			eventData = &ScanProgressData{}
		case WatchlistChanged:
			eventData = &WatchlistChangedData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		default:
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			e.Data = &GenericEventData{Type: aux.Type, Data: rawData}
			return nil
		}

		if err := json.Unmarshal(aux.Data, eventData); err != nil {
			return err
		}
		e.Data = eventData
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
