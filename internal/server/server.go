// Package server provides the HTTP server and routing for the signal
// refresh service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/events"
	"github.com/finwatch/signalscan/internal/scan"
	"github.com/finwatch/signalscan/internal/universe"
)

// ScanController is the slice of the orchestrator the API exposes.
type ScanController interface {
	Start(ctx context.Context, sink scan.ProgressSink) (string, error)
	Active() bool
}

// QueueStats exposes an admission queue's counters for the status endpoint.
type QueueStats interface {
	Name() string
	Capacity() int
	Running() int
	Waiting() int
}

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	Orchestrator ScanController
	Broadcaster  *events.Broadcaster
	Watchlist    *universe.Repository
	Queues       []QueueStats
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	scanHandlers      *ScanHandlers
	watchlistHandlers *WatchlistHandlers
	systemHandlers    *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		log:               cfg.Log.With().Str("component", "server").Logger(),
		scanHandlers:      NewScanHandlers(cfg.Orchestrator, cfg.Broadcaster, cfg.Log),
		watchlistHandlers: NewWatchlistHandlers(cfg.Watchlist, cfg.Broadcaster, cfg.Log),
		systemHandlers:    NewSystemHandlers(cfg.Orchestrator, cfg.Queues, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own lifetime
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures the middleware chain
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Post("/", s.scanHandlers.HandleStartScan)
			r.Get("/status", s.scanHandlers.HandleScanStatus)
			r.Get("/stream", s.scanHandlers.HandleScanStream)
			r.Get("/ws", s.scanHandlers.HandleScanWS)
		})

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.watchlistHandlers.HandleList)
			r.Post("/", s.watchlistHandlers.HandleAdd)
			r.Delete("/{symbol}", s.watchlistHandlers.HandleRemove)
			r.Put("/{symbol}/exclusion", s.watchlistHandlers.HandleSetExclusion)
		})

		r.Get("/system/status", s.systemHandlers.HandleStatus)
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
