package config

// EnvPrefix is the envconfig prefix for every variable the services read.
const EnvPrefix = "FOODSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "FOODSYNC_APP_ENV"
	EnvPort      = "FOODSYNC_APP_PORT"
	EnvDBDSN     = "FOODSYNC_DB_DSN"
	EnvDBHost    = "FOODSYNC_DB_HOST"
	EnvDBUser    = "FOODSYNC_DB_USER"
	EnvDBName    = "FOODSYNC_DB_NAME"
	EnvRedisURL  = "FOODSYNC_REDIS_URL"
	EnvJWTSecret = "FOODSYNC_JWT_SECRET"
	EnvJWTIssuer = "FOODSYNC_JWT_ISSUER"

	EnvPOSBaseURL       = "FOODSYNC_POS_BASE_URL"
	EnvLoyaltyBaseURL   = "FOODSYNC_LOYALTY_BASE_URL"
	EnvMaxAttempts      = "FOODSYNC_SYNC_MAX_ATTEMPTS"
	EnvMappingMinScore  = "FOODSYNC_MAPPING_MIN_SCORE"
	EnvOrganizationWait = "FOODSYNC_POS_ORGANIZATION_DELAY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
