package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/events"
	"github.com/finwatch/signalscan/internal/universe"
)

// WatchlistHandlers exposes watch list management.
type WatchlistHandlers struct {
	repo        *universe.Repository
	broadcaster *events.Broadcaster
	log         zerolog.Logger
}

// NewWatchlistHandlers creates watch list API handlers.
func NewWatchlistHandlers(repo *universe.Repository, broadcaster *events.Broadcaster, log zerolog.Logger) *WatchlistHandlers {
	return &WatchlistHandlers{
		repo:        repo,
		broadcaster: broadcaster,
		log:         log.With().Str("component", "watchlist_handlers").Logger(),
	}
}

// HandleList handles GET /api/watchlist requests.
func (h *WatchlistHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.AllSymbols()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list watchlist")
		respondError(w, http.StatusInternalServerError, "failed to list watchlist")
		return
	}
	if entries == nil {
		entries = []universe.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// HandleAdd handles POST /api/watchlist requests.
func (h *WatchlistHandlers) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.Add(req.Symbol); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.publish(req.Symbol, "added")
	respondJSON(w, http.StatusCreated, map[string]string{"symbol": req.Symbol})
}

// HandleRemove handles DELETE /api/watchlist/{symbol} requests.
func (h *WatchlistHandlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if err := h.repo.Remove(symbol); err != nil {
		if errors.Is(err, universe.ErrNotFound) {
			respondError(w, http.StatusNotFound, "symbol not on watchlist")
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to remove symbol")
		respondError(w, http.StatusInternalServerError, "failed to remove symbol")
		return
	}

	h.publish(symbol, "removed")
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetExclusion handles PUT /api/watchlist/{symbol}/exclusion requests.
func (h *WatchlistHandlers) HandleSetExclusion(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req struct {
		Excluded bool `json:"excluded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.SetExcluded(symbol, req.Excluded); err != nil {
		if errors.Is(err, universe.ErrNotFound) {
			respondError(w, http.StatusNotFound, "symbol not on watchlist")
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to update exclusion")
		respondError(w, http.StatusInternalServerError, "failed to update exclusion")
		return
	}

	action := "included"
	if req.Excluded {
		action = "excluded"
	}
	h.publish(symbol, action)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"excluded": req.Excluded,
	})
}

func (h *WatchlistHandlers) publish(symbol, action string) {
	h.broadcaster.Publish(events.NewEvent(&events.WatchlistChangedData{
		Symbol: symbol,
		Action: action,
	}))
}
