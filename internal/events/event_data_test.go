package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanProgressDataEventType(t *testing.T) {
	tests := []struct {
		status string
		want   EventType
	}{
		{"started", ScanStarted},
		{"progress", ScanProgressed},
		{"done", ScanCompleted},
		{"", ScanProgressed},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			data := &ScanProgressData{Status: tt.status}
			assert.Equal(t, tt.want, data.EventType())
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := NewEvent(&ScanProgressData{
		ScanID:      "scan-1",
		Status:      "done",
		Scanned:     3,
		Total:       3,
		Skipped:     1,
		Errors:      1,
		CompletedAt: &completedAt,
	})

	raw, err := json.Marshal(&event)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, ScanCompleted, decoded.Type)
	data, ok := decoded.Data.(*ScanProgressData)
	require.True(t, ok)
	assert.Equal(t, "scan-1", data.ScanID)
	assert.Equal(t, 3, data.Scanned)
	assert.Equal(t, 1, data.Skipped)
	assert.Equal(t, 1, data.Errors)
	require.NotNil(t, data.CompletedAt)
	assert.True(t, completedAt.Equal(*data.CompletedAt))
}

func TestEventUnknownTypeFallsBackToGeneric(t *testing.T) {
	raw := []byte(`{"type":"custom.thing","timestamp":"2026-03-01T12:00:00Z","data":{"answer":42}}`)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	data, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, float64(42), data.Data["answer"])
}

func TestEventCompletedAtOmittedWhenNil(t *testing.T) {
	event := NewEvent(&ScanProgressData{ScanID: "scan-1", Status: "progress", Scanned: 50, Total: 100})

	raw, err := json.Marshal(&event)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "completed_at")
}
