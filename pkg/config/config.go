package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Integration  IntegrationConfig
	Sync         SyncConfig
	Mapping      MappingConfig
	Cron         CronConfig
	Queue        QueueConfig
	Webhook      WebhookConfig
	Cache        CacheConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FOODSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"FOODSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FOODSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FOODSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FOODSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FOODSYNC_DB_DSN"`
	Driver string `envconfig:"FOODSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FOODSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"FOODSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FOODSYNC_DB_USER"`
	LegacyPassword string `envconfig:"FOODSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"FOODSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"FOODSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FOODSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FOODSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FOODSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FOODSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FOODSYNC_REDIS_URL"`
	Address      string        `envconfig:"FOODSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"FOODSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"FOODSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FOODSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FOODSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FOODSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FOODSYNC_REDIS_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"FOODSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies admin bearer tokens issued by the back-office.
type JWTConfig struct {
	Secret            string `envconfig:"FOODSYNC_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FOODSYNC_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FOODSYNC_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FOODSYNC_AUTO_MIGRATE" default:"false"`
}

// IntegrationConfig holds transport settings for the POS and loyalty adapters.
// Credentials and organization scoping are runtime settings, not env.
type IntegrationConfig struct {
	POSBaseURL         string        `envconfig:"FOODSYNC_POS_BASE_URL"`
	LoyaltyBaseURL     string        `envconfig:"FOODSYNC_LOYALTY_BASE_URL"`
	RequestTimeout     time.Duration `envconfig:"FOODSYNC_INTEGRATION_REQUEST_TIMEOUT" default:"30s"`
	Retries            int           `envconfig:"FOODSYNC_INTEGRATION_RETRIES" default:"3"`
	RetryBaseDelay     time.Duration `envconfig:"FOODSYNC_INTEGRATION_RETRY_BASE_DELAY" default:"500ms"`
	RateLimitPerSecond float64       `envconfig:"FOODSYNC_INTEGRATION_RATE_LIMIT" default:"5"`
	RateLimitBurst     int           `envconfig:"FOODSYNC_INTEGRATION_RATE_BURST" default:"5"`
	BreakerFailures    uint32        `envconfig:"FOODSYNC_INTEGRATION_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"FOODSYNC_INTEGRATION_BREAKER_TIMEOUT" default:"30s"`
	OrganizationDelay  time.Duration `envconfig:"FOODSYNC_POS_ORGANIZATION_DELAY" default:"700ms"`
}

type SyncConfig struct {
	MaxAttempts      int `envconfig:"FOODSYNC_SYNC_MAX_ATTEMPTS" default:"5"`
	SweepBatchSize   int `envconfig:"FOODSYNC_SYNC_SWEEP_BATCH_SIZE" default:"100"`
	LogRetentionDays int `envconfig:"FOODSYNC_SYNC_LOG_RETENTION_DAYS" default:"30"`
}

type MappingConfig struct {
	MinScore         int `envconfig:"FOODSYNC_MAPPING_MIN_SCORE" default:"60"`
	AutoResolveScore int `envconfig:"FOODSYNC_MAPPING_AUTO_RESOLVE_SCORE" default:"85"`
}

// CronConfig schedules use six fields (seconds first).
type CronConfig struct {
	CatalogSchedule   string        `envconfig:"FOODSYNC_CRON_CATALOG_SCHEDULE" default:"0 0 */6 * * *"`
	StopListSchedule  string        `envconfig:"FOODSYNC_CRON_STOPLIST_SCHEDULE" default:"0 */10 * * * *"`
	SweeperSchedule   string        `envconfig:"FOODSYNC_CRON_SWEEPER_SCHEDULE" default:"0 */5 * * * *"`
	RetentionSchedule string        `envconfig:"FOODSYNC_CRON_RETENTION_SCHEDULE" default:"0 30 3 * * *"`
	LockTTL           time.Duration `envconfig:"FOODSYNC_CRON_LOCK_TTL" default:"15m"`
}

type QueueConfig struct {
	PollTimeout  time.Duration `envconfig:"FOODSYNC_QUEUE_POLL_TIMEOUT" default:"5s"`
	MaxAttempts  int           `envconfig:"FOODSYNC_QUEUE_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"FOODSYNC_QUEUE_RETRY_BACKOFF" default:"30s"`

	MenuConcurrency            int `envconfig:"FOODSYNC_QUEUE_MENU_CONCURRENCY" default:"1"`
	StopListConcurrency        int `envconfig:"FOODSYNC_QUEUE_STOPLIST_CONCURRENCY" default:"1"`
	DeliveryZonesConcurrency   int `envconfig:"FOODSYNC_QUEUE_DELIVERY_ZONES_CONCURRENCY" default:"1"`
	OrderConcurrency           int `envconfig:"FOODSYNC_QUEUE_ORDER_CONCURRENCY" default:"3"`
	LoyaltyClientConcurrency   int `envconfig:"FOODSYNC_QUEUE_LOYALTY_CLIENT_CONCURRENCY" default:"3"`
	LoyaltyPurchaseConcurrency int `envconfig:"FOODSYNC_QUEUE_LOYALTY_PURCHASE_CONCURRENCY" default:"3"`
}

type WebhookConfig struct {
	SignatureHeader string        `envconfig:"FOODSYNC_WEBHOOK_SIGNATURE_HEADER" default:"X-Signature"`
	IdempotencyTTL  time.Duration `envconfig:"FOODSYNC_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	RateLimit       int64         `envconfig:"FOODSYNC_WEBHOOK_RATE_LIMIT" default:"300"`
	RateWindow      time.Duration `envconfig:"FOODSYNC_WEBHOOK_RATE_WINDOW" default:"1m"`
}

type CacheConfig struct {
	MenuKeyPattern string `envconfig:"FOODSYNC_CACHE_MENU_PATTERN" default:"fs:cache:menu:*"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
