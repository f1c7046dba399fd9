package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/cache"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/config"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/database"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/google"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/notify"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// serve runs until ctx is cancelled, then drains job invocations and
// shuts the server down.
func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"cache_backend", cfg.Cache.Backend,
		"persistent_store", cfg.Database.URL != "",
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// Jobs and sync configurations
	var jobs core.JobStore
	var configs core.SyncConfigStore
	if cfg.Database.URL != "" {
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, cfg.Database.URL); err != nil {
				return err
			}
		}
		pool, err := database.Connect(ctx, database.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return err
		}
		cleanup = append(cleanup, pool.Close)
		store := database.NewStore(pool)
		jobs, configs = store, store
	} else {
		slog.Warn("DATABASE_URL not set, jobs and sync configurations are kept in memory")
		store := core.NewMemoryStore()
		jobs, configs = store, store
	}

	// Spreadsheet snapshots
	var snapshots core.SyncCache
	switch cfg.Cache.Backend {
	case "redis":
		rc, client, err := cache.Dial(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { client.Close() })
		snapshots = rc
	default:
		mc, err := cache.NewMemory(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		snapshots = mc
	}

	docs, err := google.New(ctx, google.Options{
		CredentialsFile: cfg.Upstream.CredentialsFile,
		AccessToken:     cfg.Upstream.AccessToken,
		Timeout:         cfg.Upstream.Timeout,
	})
	if err != nil {
		return err
	}

	var notifier core.Notifier = notify.Log{}
	if cfg.Notify.Enabled {
		n, err := notify.NewFromRegion(ctx, cfg.Notify.AWSRegion, cfg.Notify.Sender)
		if err != nil {
			return err
		}
		notifier = n
	}

	service, err := core.NewService(core.Deps{
		Sources:     docs,
		Decks:       docs,
		Jobs:        jobs,
		Configs:     configs,
		Cache:       snapshots,
		Limiter:     core.NewRateLimiter(cfg.Upstream.MinInterval, cfg.Upstream.MaxRetries),
		Notifier:    notifier,
		Invocations: core.NewInvocationLimiter(cfg.Generation.MaxConcurrent, cfg.Generation.MaxWaitTime),
	}, core.Options{
		ReadRetries:      cfg.Upstream.ReadRetries,
		InvocationBudget: cfg.Generation.InvocationBudget,
		ClaimLease:       cfg.Generation.ClaimLease,
		DefaultMode:      core.OutputMode(cfg.Generation.DefaultMode),
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	// Background jobs stop before the server drains.
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()
	if cfg.Scheduler.Enabled {
		go func() {
			if err := service.StartScheduler(jobCtx, core.SchedulerConfig{
				Spec:       cfg.Scheduler.Spec,
				DrainLimit: cfg.Scheduler.DrainLimit,
				TickBudget: cfg.Generation.ClaimLease,
			}); err != nil {
				slog.Error("scheduler stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(service, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Wait for running job invocations; an unfinished job keeps its
	// progress and is resumed after restart.
	if status := service.InvocationStatus(); status.Active > 0 {
		slog.Info("waiting for job invocations to complete", "active", status.Active)
		if err := service.WaitForInvocations(shutdownCtx); err != nil {
			slog.Warn("job invocations did not complete in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
