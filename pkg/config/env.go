package config

// EnvPrefix is empty because every field carries its fully qualified variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv  = "MOSLY_APP_ENV"
	EnvPort    = "MOSLY_APP_PORT"
	EnvLogLvl  = "MOSLY_LOG_LEVEL"
	EnvDBDSN   = "MOSLY_DB_DSN"
	EnvDBHost  = "MOSLY_DB_HOST"
	EnvDBUser  = "MOSLY_DB_USER"
	EnvDBName  = "MOSLY_DB_NAME"
	EnvDBDrv   = "MOSLY_DB_DRIVER"
	EnvSQLite  = "MOSLY_USE_SQLITE"
	EnvSQLPath = "MOSLY_SQLITE_PATH"

	EnvRedisURL = "MOSLY_REDIS_URL"

	EnvJWTSecret  = "MOSLY_JWT_SECRET"
	EnvJWTIssuer  = "MOSLY_JWT_ISSUER"
	EnvJWTExpMins = "MOSLY_JWT_EXPIRATION_MINUTES"

	EnvOperatorPasswordHash = "MOSLY_OPERATOR_PASSWORD_HASH"

	EnvShopifyStore       = "MOSLY_SHOPIFY_STORE"
	EnvShopifyAPIKey      = "MOSLY_SHOPIFY_API_KEY"
	EnvShopifyAPIPassword = "MOSLY_SHOPIFY_API_PASSWORD"
	EnvShopifyAccessToken = "MOSLY_SHOPIFY_ACCESS_TOKEN"

	EnvReconcileLeaseWait = "MOSLY_RECONCILE_LEASE_WAIT"
	EnvCronInterval       = "MOSLY_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
