// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/caseledger/bankfeed/pkg/storage"
)

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	spool    *storage.Spool
	sweepAge time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(spool *storage.Spool, sweepAge time.Duration, logger *slog.Logger) *Scheduler {
	// Standard 5-field cron format, no seconds.
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		spool:    spool,
		sweepAge: sweepAge,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Spool sweep: hourly, removes uploads that escaped inline cleanup
	// (process crashes between upload and ingestion).
	_, err := s.cron.AddFunc("0 * * * *", s.sweepSpool)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// sweepSpool deletes stale uploaded files.
func (s *Scheduler) sweepSpool() {
	removed, err := s.spool.SweepOlderThan(s.sweepAge)
	if err != nil {
		s.logger.Warn("spool sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("swept stale uploads", slog.Int("removed", removed))
	}
}
