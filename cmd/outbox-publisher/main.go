package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/migrate"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/registry"
	"github.com/angelmondragon/courier-dispatch/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// run owns every connection the publisher opens and closes them on return.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	// Resolve routes before touching the network so a bad topic config fails fast.
	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeWith(ctx, logg, "pubsub client", psClient.Close)

	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     psClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   events,
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"notification_topic": cfg.PubSub.NotificationTopic,
		"domain_topic":       cfg.PubSub.DomainTopic,
		"batch_size":         cfg.Outbox.BatchSize,
	}), "starting outbox publisher")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
