package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/finwatch/signalscan/internal/events"
	"github.com/finwatch/signalscan/internal/scan"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// ScanHandlers exposes the scan trigger and its progress streams.
type ScanHandlers struct {
	orchestrator ScanController
	broadcaster  *events.Broadcaster
	log          zerolog.Logger
}

// NewScanHandlers creates scan API handlers.
func NewScanHandlers(orchestrator ScanController, broadcaster *events.Broadcaster, log zerolog.Logger) *ScanHandlers {
	return &ScanHandlers{
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		log:          log.With().Str("component", "scan_handlers").Logger(),
	}
}

// HandleStartScan handles POST /api/scan requests. A scan that is already
// running yields 409; acceptance returns 202 with the scan id.
func (h *ScanHandlers) HandleStartScan(w http.ResponseWriter, r *http.Request) {
	// The scan outlives the triggering request, so it gets its own context.
	scanID, err := h.orchestrator.Start(context.Background(), scan.NewBroadcastSink(h.broadcaster))
	if err != nil {
		if errors.Is(err, scan.ErrScanActive) {
			respondError(w, http.StatusConflict, "a scan is already running")
			return
		}
		h.log.Error().Err(err).Msg("Failed to start scan")
		respondError(w, http.StatusInternalServerError, "failed to start scan")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"scan_id": scanID})
}

// HandleScanStatus handles GET /api/scan/status requests.
func (h *ScanHandlers) HandleScanStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"active": h.orchestrator.Active()})
}

// HandleScanStream handles GET /api/scan/stream requests (SSE).
func (h *ScanHandlers) HandleScanStream(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	id, eventChan := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	h.log.Info().Str("subscriber", id).Msg("Client connected to scan stream")

	// Initial comment confirms the stream is open before any event fires.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Str("subscriber", id).Msg("Client disconnected from scan stream")
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case event, open := <-eventChan:
			if !open {
				return
			}
			if !isScanEvent(event.Type) {
				continue
			}

			data, err := json.Marshal(&event)
			if err != nil {
				h.log.Warn().Err(err).Msg("Failed to marshal event")
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// HandleScanWS handles GET /api/scan/ws requests (WebSocket).
func (h *ScanHandlers) HandleScanWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	id, eventChan := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	h.log.Info().Str("subscriber", id).Msg("Client connected to scan websocket")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return

		case event, open := <-eventChan:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			if !isScanEvent(event.Type) {
				continue
			}

			if err := wsjson.Write(ctx, conn, &event); err != nil {
				h.log.Info().Err(err).Str("subscriber", id).Msg("WebSocket write failed, closing")
				return
			}
		}
	}
}

func isScanEvent(t events.EventType) bool {
	switch t {
	case events.ScanStarted, events.ScanProgressed, events.ScanCompleted:
		return true
	default:
		return false
	}
}
