package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/courier-dispatch/internal/app"
	"github.com/angelmondragon/courier-dispatch/internal/cron"
	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/metrics"
	"github.com/angelmondragon/courier-dispatch/pkg/migrate"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	svcs, err := app.NewServices(app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Registry: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}
	defer svcs.Scheduler.Stop()

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	loops, err := buildLoops(cfg, logg, redisClient, dbClient, svcs, jobMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron loops", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		group.Go(func() error { return loop.Run(groupCtx) })
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildLoops assembles the maintenance loop and, when enabled, the dispatch
// sweeper. Each loop holds its own lock so only one worker runs it.
func buildLoops(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, dbClient *db.Client, svcs *app.Services, jobMetrics *metrics.CronJobMetrics) ([]*cron.Service, error) {
	incentiveJob, err := cron.NewIncentiveBatchJob(cron.IncentiveBatchJobParams{
		Logger:  logg,
		Batches: svcs.Incentives,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		Repository:     outbox.NewRepository(dbClient.DB()),
		ParkedAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	maintenance, err := newLoop(cfg, logg, redisClient, jobMetrics, "maintenance", cfg.Cron.Interval, cfg.Cron.LockTTL,
		cron.NewRegistry(incentiveJob, retentionJob))
	if err != nil {
		return nil, err
	}
	loops := []*cron.Service{maintenance}
	if !cfg.Dispatch.EnableSweeper {
		return loops, nil
	}

	sweeps := []cron.SweepJobParams{
		{Name: "offer-expiry", Sweep: svcs.Coordinator.ExpireDueOffers},
		{Name: "auto-cancel", Sweep: svcs.Coordinator.AutoCancelDue},
	}
	if cfg.Dispatch.DrainPendingFIFO {
		sweeps = append(sweeps, cron.SweepJobParams{Name: "pending-dispatch", Sweep: svcs.Coordinator.DispatchPending})
	}
	sweepRegistry := cron.NewRegistry()
	for _, params := range sweeps {
		params.Logger = logg
		params.Limit = cfg.Dispatch.PendingBatch
		job, err := cron.NewSweepJob(params)
		if err != nil {
			return nil, err
		}
		if err := sweepRegistry.Register(job); err != nil {
			return nil, err
		}
	}
	sweeper, err := newLoop(cfg, logg, redisClient, jobMetrics, "dispatch-sweeper", cfg.Dispatch.SweepInterval, cfg.Dispatch.SweepLockTTL, sweepRegistry)
	if err != nil {
		return nil, err
	}
	return append(loops, sweeper), nil
}

func newLoop(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, jobMetrics *metrics.CronJobMetrics, name string, interval, lockTTL time.Duration, registry *cron.Registry) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env, name), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s lock: %w", name, err)
	}
	return cron.NewService(cron.ServiceParams{
		Name:     name,
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: interval,
	})
}

func lockName(env, loop string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s:%s", env, loop)
}
