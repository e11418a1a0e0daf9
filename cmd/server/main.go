// Package main is the entry point for the signalscan service: a watch-list
// signal refresh pipeline with a bounded-concurrency scan orchestrator, a
// tiered signal cache, and a progress-streaming HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/finwatch/signalscan/internal/cache"
	"github.com/finwatch/signalscan/internal/clients/yahoo"
	"github.com/finwatch/signalscan/internal/config"
	"github.com/finwatch/signalscan/internal/database"
	"github.com/finwatch/signalscan/internal/events"
	"github.com/finwatch/signalscan/internal/queue"
	"github.com/finwatch/signalscan/internal/scan"
	"github.com/finwatch/signalscan/internal/scheduler"
	"github.com/finwatch/signalscan/internal/server"
	"github.com/finwatch/signalscan/internal/signals"
	"github.com/finwatch/signalscan/internal/universe"
	"github.com/finwatch/signalscan/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting signalscan")

	// Databases: the watch list is durable state, the signal cache is
	// ephemeral and tuned for write speed.
	watchlistDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "watchlist.db"),
		Profile: database.ProfileStandard,
		Name:    "watchlist",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open watchlist database")
	}
	defer watchlistDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{watchlistDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("db", db.Name()).Msg("Failed to migrate database")
		}
	}

	store := cache.NewStore(cacheDB.Conn(), log)
	watchlist := universe.NewRepository(watchlistDB.Conn(), log)

	// Optional slow tier: only wired when a bucket is configured.
	var remote cache.RemoteStore
	if cfg.Remote.Enabled() {
		s3Store, err := cache.NewS3Store(context.Background(), cache.S3Config{
			Bucket:          cfg.Remote.Bucket,
			Endpoint:        cfg.Remote.Endpoint,
			Region:          cfg.Remote.Region,
			AccessKeyID:     cfg.Remote.AccessKeyID,
			SecretAccessKey: cfg.Remote.SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize slow cache tier")
		}
		remote = s3Store
		log.Info().Str("bucket", cfg.Remote.Bucket).Msg("Slow cache tier enabled")
	}

	// One admission queue per upstream dependency class, so the slow
	// scraping source cannot starve quote lookups.
	yahooClient := yahoo.NewClient(cfg.FetchTimeout, log)
	quoteQueue := queue.New[*yahoo.Quote]("quotes", cfg.QuoteConcurrency, log)
	historyQueue := queue.New[[]yahoo.HistoricalPrice]("history", cfg.ScrapeConcurrency, log)

	computer := signals.NewComputer(yahooClient, yahooClient, quoteQueue, historyQueue, store, log)

	orchestrator := scan.NewOrchestrator(watchlist, computer, store, remote, scan.Config{
		Workers:   cfg.ScanWorkers,
		BatchSize: cfg.ProgressBatchSize,
	}, log)

	broadcaster := events.NewBroadcaster(log)
	defer broadcaster.Close()

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Orchestrator: orchestrator,
		Broadcaster:  broadcaster,
		Watchlist:    watchlist,
		Queues:       []server.QueueStats{quoteQueue, historyQueue},
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	sched := scheduler.New(log)
	if err := sched.AddJob("@hourly", scheduler.NewCleanupJob(store, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	if cfg.ScanSchedule != "" {
		job := scheduler.NewRefreshJob(orchestrator, scan.NewBroadcastSink(broadcaster), log)
		if err := sched.AddJob(cfg.ScanSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.ScanSchedule).Msg("Failed to register refresh job")
		}
	}
	sched.Start()
	defer sched.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
