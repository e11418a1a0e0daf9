// Package scheduler runs the recurring maintenance jobs (scan refresh,
// cache cleanup) on cron schedules.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of recurring work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler owns the cron runner and logs every job execution.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job under a standard 5-field cron expression or a
// descriptor such as "@hourly" or "@every 30m".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddJob(schedule, &loggedJob{job: job, log: s.log}); err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Start begins dispatching jobs at their scheduled times.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops scheduling new runs and waits for running jobs to drain.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// loggedJob wraps a Job so every run is logged with its outcome and
// duration.
type loggedJob struct {
	job Job
	log zerolog.Logger
}

func (l *loggedJob) Run() {
	start := time.Now()
	if err := l.job.Run(); err != nil {
		l.log.Error().Err(err).Str("job", l.job.Name()).Msg("Job failed")
		return
	}
	l.log.Debug().
		Str("job", l.job.Name()).
		Dur("elapsed", time.Since(start)).
		Msg("Job completed")
}
