package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/finwatch/signalscan/internal/scan"
)

// ScanStarter is the slice of the orchestrator a refresh job needs.
type ScanStarter interface {
	Start(ctx context.Context, sink scan.ProgressSink) (string, error)
}

// RefreshJob triggers a scheduled refresh scan. An already-running scan is
// not an error for a timed trigger: the tick is logged and dropped.
type RefreshJob struct {
	starter ScanStarter
	sink    scan.ProgressSink
	log     zerolog.Logger
}

// NewRefreshJob creates the scheduled scan trigger. Progress goes to the
// given sink, usually the shared event bus.
func NewRefreshJob(starter ScanStarter, sink scan.ProgressSink, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		starter: starter,
		sink:    sink,
		log:     log.With().Str("component", "refresh_job").Logger(),
	}
}

// Name implements Job.
func (j *RefreshJob) Name() string {
	return "signal_refresh"
}

// Run implements Job.
func (j *RefreshJob) Run() error {
	scanID, err := j.starter.Start(context.Background(), j.sink)
	if err != nil {
		if errors.Is(err, scan.ErrScanActive) {
			j.log.Info().Msg("Scan already running, skipping scheduled refresh")
			return nil
		}
		return err
	}

	j.log.Info().Str("scan_id", scanID).Msg("Scheduled refresh started")
	return nil
}
