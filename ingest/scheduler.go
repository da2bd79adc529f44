package ingest

import (
	"context"
	"log/slog"
	"time"
)

// SchedulerConfig configures the periodic ingestion loop.
type SchedulerConfig struct {
	// Interval is how often a cycle runs. Default: 1 hour.
	Interval time.Duration
	// CycleTimeout bounds a single cycle. Default: 10 minutes.
	CycleTimeout time.Duration
}

func (c *SchedulerConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 10 * time.Minute
	}
}

// Scheduler runs ingestion cycles on a ticker.
type Scheduler struct {
	runner *Runner
	config SchedulerConfig
	logger *slog.Logger
}

// NewScheduler creates a Scheduler around a Runner.
func NewScheduler(r *Runner, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: r, config: cfg, logger: logger}
}

// Run triggers cycles on the configured interval. Blocks until ctx is
// cancelled. Cycles never overlap: the ticker only fires between runs.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.config.CycleTimeout)
	defer cancel()

	if _, err := s.runner.Run(cctx); err != nil {
		s.logger.Warn("scheduler: cycle failed, will retry on next tick", "error", err)
	}
}
