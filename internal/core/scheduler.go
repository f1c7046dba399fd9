package core

// scheduler.go provides background scheduling for automatic syncs.
//
// On every tick of the cron schedule the scheduler:
//  1. Enqueues a job for each automatic configuration whose frequency has
//     elapsed since its last sync
//  2. Runs one invocation on each runnable job (pending, or running with an
//     expired claim), which resumes jobs left behind by earlier invocations
//
// The scheduler is context-aware for graceful shutdown. It logs failures of
// individual ticks but never stops the application.

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// SchedulerConfig holds configuration for the sync scheduler.
type SchedulerConfig struct {
	Spec       string        // Cron spec, e.g. "@every 1m" or "*/5 * * * *"
	DrainLimit int           // Jobs invoked per tick (default: 10)
	TickBudget time.Duration // Upper bound on one tick (default: 5m)
}

// StartScheduler runs the sync scheduler until ctx is cancelled.
// It returns an error only if the cron spec is invalid.
func (s *Service) StartScheduler(ctx context.Context, cfg SchedulerConfig) error {
	if cfg.DrainLimit <= 0 {
		cfg.DrainLimit = 10
	}
	if cfg.TickBudget <= 0 {
		cfg.TickBudget = 5 * time.Minute
	}

	ctx = logging.ContextWith(ctx, "component", "scheduler")
	log := logging.FromContext(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Spec, func() { s.runScheduledTick(ctx, cfg) }); err != nil {
		return fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}

	log.Info("sync scheduler started", "spec", cfg.Spec, "drain_limit", cfg.DrainLimit)
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	log.Info("sync scheduler stopped")
	return nil
}

// runScheduledTick performs one enqueue + drain cycle.
func (s *Service) runScheduledTick(ctx context.Context, cfg SchedulerConfig) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.TickBudget)
	defer cancel()
	log := logging.FromContext(ctx)

	results, err := s.EnqueueDue(ctx)
	if err != nil {
		log.Error("scheduled enqueue failed", "error", err)
	} else if len(results) > 0 {
		log.Info("scheduled syncs enqueued", "configs", len(results))
	}

	invoked, err := s.DrainRunnable(ctx, cfg.DrainLimit)
	if err != nil {
		log.Error("scheduled drain failed", "error", err)
	}

	log.Debug("scheduler tick completed",
		"jobs_invoked", invoked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ValidateSchedule checks a cron spec without starting anything.
func ValidateSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
