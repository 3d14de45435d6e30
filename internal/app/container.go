package app

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/foodsync-backend/internal/catalog"
	"github.com/angelmondragon/foodsync-backend/internal/deliveryzones"
	"github.com/angelmondragon/foodsync-backend/internal/jobs"
	"github.com/angelmondragon/foodsync-backend/internal/ledger"
	"github.com/angelmondragon/foodsync-backend/internal/loyalty"
	"github.com/angelmondragon/foodsync-backend/internal/loyaltysync"
	"github.com/angelmondragon/foodsync-backend/internal/mapping"
	"github.com/angelmondragon/foodsync-backend/internal/notifications"
	"github.com/angelmondragon/foodsync-backend/internal/orders"
	"github.com/angelmondragon/foodsync-backend/internal/pos"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/stoplist"
	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	poswebhook "github.com/angelmondragon/foodsync-backend/internal/webhooks/pos"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/db"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
	"github.com/angelmondragon/foodsync-backend/pkg/redis"
)

const webhookScope = "pos-webhook"

// Params are the process-level resources every binary opens itself.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Container holds the wired domain services shared by api, worker and cron-worker.
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.SyncMetrics

	Settings settings.Provider
	SyncLog  *synclog.Service
	Broker   *queue.RedisBroker
	POS      *pos.Client
	Loyalty  *loyalty.Client

	Catalog       catalog.Service
	StopList      stoplist.Service
	DeliveryZones deliveryzones.Service
	Orders        orders.Service
	LoyaltySync   loyaltysync.Service
	Mapping       mapping.Service
	Sweeper       *sweeper.Service
	Webhooks      poswebhook.Service
	WebhookGuard  *poswebhook.IdempotencyGuard
}

func New(p Params) (*Container, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	if p.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	cfg := p.Config
	logg := p.Logger
	gormDB := p.DB.DB()

	c := &Container{
		Config:  cfg,
		Logger:  logg,
		Metrics: metrics.NewSyncMetrics(p.Registerer),
	}

	provider, err := settings.NewDBProvider(gormDB)
	if err != nil {
		return nil, err
	}
	c.Settings = provider

	if c.SyncLog, err = synclog.NewService(synclog.ServiceParams{DB: gormDB, Logger: logg}); err != nil {
		return nil, err
	}
	if c.Broker, err = queue.NewRedisBroker(p.Redis, cfg.Queue.MaxAttempts); err != nil {
		return nil, err
	}

	if c.POS, err = pos.NewClient(pos.ClientParams{Config: cfg.Integration, Settings: provider, Logger: logg, Metrics: c.Metrics}); err != nil {
		return nil, err
	}
	if c.Loyalty, err = loyalty.NewClient(loyalty.ClientParams{Config: cfg.Integration, Settings: provider, Logger: logg, Metrics: c.Metrics}); err != nil {
		return nil, err
	}

	if c.Catalog, err = catalog.NewService(catalog.ServiceParams{
		DB:                p.DB,
		Settings:          provider,
		POS:               c.POS,
		SyncLog:           c.SyncLog,
		Cache:             p.Redis,
		CachePattern:      cfg.Cache.MenuKeyPattern,
		OrganizationDelay: cfg.Integration.OrganizationDelay,
		Logger:            logg,
		Metrics:           c.Metrics,
	}); err != nil {
		return nil, err
	}
	if c.StopList, err = stoplist.NewService(stoplist.ServiceParams{
		DB:       p.DB,
		Settings: provider,
		POS:      c.POS,
		SyncLog:  c.SyncLog,
		Logger:   logg,
		Metrics:  c.Metrics,
	}); err != nil {
		return nil, err
	}
	if c.DeliveryZones, err = deliveryzones.NewService(deliveryzones.ServiceParams{
		DB:       p.DB,
		Settings: provider,
		POS:      c.POS,
		SyncLog:  c.SyncLog,
		Logger:   logg,
		Metrics:  c.Metrics,
	}); err != nil {
		return nil, err
	}

	tracker := syncstatus.NewTracker(cfg.Sync.MaxAttempts)
	if c.Orders, err = orders.NewService(orders.ServiceParams{
		DB:       gormDB,
		Settings: provider,
		POS:      c.POS,
		Tracker:  tracker,
		SyncLog:  c.SyncLog,
		Logger:   logg,
		Metrics:  c.Metrics,
	}); err != nil {
		return nil, err
	}
	if c.LoyaltySync, err = loyaltysync.NewService(loyaltysync.ServiceParams{
		DB:       gormDB,
		Settings: provider,
		Loyalty:  c.Loyalty,
		Tracker:  tracker,
		SyncLog:  c.SyncLog,
		Logger:   logg,
		Metrics:  c.Metrics,
	}); err != nil {
		return nil, err
	}

	if c.Mapping, err = mapping.NewService(mapping.ServiceParams{
		DB:               p.DB,
		Settings:         provider,
		Catalog:          c.Catalog,
		MinScore:         cfg.Mapping.MinScore,
		AutoResolveScore: cfg.Mapping.AutoResolveScore,
		Logger:           logg,
	}); err != nil {
		return nil, err
	}

	if c.Sweeper, err = sweeper.NewService(sweeper.ServiceParams{
		DB:        gormDB,
		Tracker:   tracker,
		Orders:    c.Orders,
		Loyalty:   c.LoyaltySync,
		BatchSize: cfg.Sync.SweepBatchSize,
		Logger:    logg,
	}); err != nil {
		return nil, err
	}

	ledgerSvc, err := ledger.NewService(gormDB, nil)
	if err != nil {
		return nil, err
	}
	notifier, err := notifications.NewService(p.Redis)
	if err != nil {
		return nil, err
	}
	if c.Webhooks, err = poswebhook.NewService(poswebhook.ServiceParams{
		DB:        p.DB,
		Settings:  provider,
		SyncLog:   c.SyncLog,
		Ledger:    ledgerSvc,
		Scheduler: c.Broker,
		Notifier:  notifier,
		Logger:    logg,
		Metrics:   c.Metrics,
	}); err != nil {
		return nil, err
	}
	if c.WebhookGuard, err = poswebhook.NewIdempotencyGuard(p.Redis, cfg.Webhook.IdempotencyTTL, webhookScope); err != nil {
		return nil, err
	}

	return c, nil
}

// Handlers builds the queue job handlers over the container's processors.
func (c *Container) Handlers() (*jobs.Handlers, error) {
	return jobs.NewHandlers(jobs.HandlersParams{
		Catalog:       c.Catalog,
		Mapping:       c.Mapping,
		StopList:      c.StopList,
		DeliveryZones: c.DeliveryZones,
		Orders:        c.Orders,
		Loyalty:       c.LoyaltySync,
		Logger:        c.Logger,
	})
}
