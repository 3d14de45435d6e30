package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/foodsync-backend/internal/app"
	"github.com/angelmondragon/foodsync-backend/internal/cron"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/db"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
	"github.com/angelmondragon/foodsync-backend/pkg/migrate"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
	"github.com/angelmondragon/foodsync-backend/pkg/redis"
)

const lockKeyFormat = "fs:cron:lock:%s"

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

	container, err := app.New(app.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, container)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	go func() {
		if err := metrics.Serve(ctx, ":"+cfg.App.Port, prometheus.DefaultGatherer); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, container *app.Container) (*cron.Registry, error) {
	registry := cron.NewRegistry()

	menu, err := cron.NewEnqueueJob(cron.EnqueueJobParams{
		Name:      "menu-sync",
		Logger:    logg,
		Scheduler: container.Broker,
		Queue:     queue.QueueMenuSync,
		Payload:   queue.MenuSyncPayload{Reason: enums.SyncReasonScheduled},
	})
	if err != nil {
		return nil, err
	}
	registry.Register(cfg.Cron.CatalogSchedule, menu)

	zones, err := cron.NewEnqueueJob(cron.EnqueueJobParams{
		Name:      "delivery-zones-sync",
		Logger:    logg,
		Scheduler: container.Broker,
		Queue:     queue.QueueDeliveryZonesSync,
		Payload:   queue.DeliveryZonesSyncPayload{Reason: enums.SyncReasonScheduled},
	})
	if err != nil {
		return nil, err
	}
	registry.Register(cfg.Cron.CatalogSchedule, zones)

	stopList, err := cron.NewEnqueueJob(cron.EnqueueJobParams{
		Name:      "stoplist-sync",
		Logger:    logg,
		Scheduler: container.Broker,
		Queue:     queue.QueueStopListSync,
		Payload:   queue.StopListSyncPayload{Reason: enums.SyncReasonScheduled},
	})
	if err != nil {
		return nil, err
	}
	registry.Register(cfg.Cron.StopListSchedule, stopList)

	sweep, err := cron.NewSweeperJob(cron.SweeperJobParams{Logger: logg, Sweeper: container.Sweeper})
	if err != nil {
		return nil, err
	}
	registry.Register(cfg.Cron.SweeperSchedule, sweep)

	retention, err := cron.NewSyncLogRetentionJob(cron.SyncLogRetentionJobParams{
		Logger:    logg,
		Purger:    container.SyncLog,
		Retention: cfg.Sync.LogRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(cfg.Cron.RetentionSchedule, retention)

	return registry, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
