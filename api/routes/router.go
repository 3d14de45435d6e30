package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/foodsync-backend/api/controllers"
	"github.com/angelmondragon/foodsync-backend/api/controllers/integrations"
	webhookcontrollers "github.com/angelmondragon/foodsync-backend/api/controllers/webhooks"
	"github.com/angelmondragon/foodsync-backend/api/middleware"
	"github.com/angelmondragon/foodsync-backend/internal/mapping"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	poswebhook "github.com/angelmondragon/foodsync-backend/internal/webhooks/pos"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/redis"
)

// Params carries everything the HTTP surface is built from.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	RateLimiter middleware.RateLimiter
	Gatherer    prometheus.Gatherer

	Settings     settings.Provider
	POS          integrations.ConnectionTester
	Loyalty      integrations.ConnectionTester
	Queue        integrations.QueueAdmin
	Mapping      mapping.Service
	SyncLogs     integrations.SyncLogReader
	Retrier      integrations.EntityRetrier
	Webhooks     poswebhook.Service
	WebhookGuard *poswebhook.IdempotencyGuard
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	signatureHeader := cfg.Webhook.SignatureHeader
	r.Route("/api/v1/webhooks/pos", func(r chi.Router) {
		r.Use(middleware.RateLimit(
			middleware.NewRateLimitPolicy("pos-webhook", cfg.Webhook.RateLimit, cfg.Webhook.RateWindow),
			p.RateLimiter,
			logg,
		))
		r.Post("/order-status", webhookcontrollers.POSOrderStatus(p.Webhooks, p.WebhookGuard, signatureHeader, logg))
		r.Post("/stoplist", webhookcontrollers.POSStopList(p.Webhooks, p.WebhookGuard, signatureHeader, logg))
	})

	r.Route("/api/admin/v1/integrations", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.AdminRoleOwner, enums.AdminRoleOperator, enums.AdminRoleViewer))

		r.Get("/readiness", integrations.Readiness(p.Mapping, logg))
		r.Get("/mapping-candidates", integrations.MappingCandidates(p.Mapping, logg))
		r.Get("/sync-logs", integrations.SyncLogs(p.SyncLogs, logg))
		r.Get("/queues", integrations.Queues(p.Queue, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.AdminRoleOwner, enums.AdminRoleOperator))
			r.Use(middleware.Idempotency(p.Idempotency, logg))

			r.Get("/test-connection", integrations.TestConnection(p.Settings, p.POS, p.Loyalty, logg))
			r.Post("/sync-menu", integrations.SyncMenu(p.Queue, logg))
			r.Post("/sync-stoplist", integrations.SyncStopList(p.Queue, logg))
			r.Post("/sync-delivery-zones", integrations.SyncDeliveryZones(p.Queue, logg))
			r.Post("/readiness/refresh", integrations.RefreshReadiness(p.Mapping, logg))
			r.Post("/mapping/resolve", integrations.ResolveCandidate(p.Mapping, logg))
			r.Post("/retry-failed", integrations.RetryFailed(p.Queue, logg))
			r.Post("/retry-entity", integrations.RetryEntity(p.Retrier, logg))
		})

		r.With(
			middleware.RequireRole(logg, enums.AdminRoleOwner),
			middleware.Idempotency(p.Idempotency, logg),
		).Post("/onboarding", integrations.Onboarding(p.Mapping, logg))
	})

	return r
}
