package config

const (
	EnvPrefix = "TILLPOINT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "TILLPOINT_APP_ENV"
	EnvPort         = "TILLPOINT_APP_PORT"
	EnvLogLevel     = "TILLPOINT_LOG_LEVEL"
	EnvLogWarnStack = "TILLPOINT_LOG_WARN_STACK"

	EnvSessionIdleTimeout = "TILLPOINT_SESSION_IDLE_TIMEOUT"
	EnvCORSOrigins        = "TILLPOINT_CORS_ORIGINS"

	EnvDBDSN      = "TILLPOINT_DB_DSN"
	EnvDBDriver   = "TILLPOINT_DB_DRIVER"
	EnvDBHost     = "TILLPOINT_DB_HOST"
	EnvDBPort     = "TILLPOINT_DB_PORT"
	EnvDBUser     = "TILLPOINT_DB_USER"
	EnvDBPassword = "TILLPOINT_DB_PASSWORD"
	EnvDBName     = "TILLPOINT_DB_NAME"
	EnvDBSSLMode  = "TILLPOINT_DB_SSLMODE"
	EnvSQLitePath = "TILLPOINT_SQLITE_PATH"

	EnvRedisURL  = "TILLPOINT_REDIS_URL"
	EnvRedisAddr = "TILLPOINT_REDIS_ADDR"

	EnvUseSQLite   = "TILLPOINT_USE_SQLITE"
	EnvAutoMigrate = "TILLPOINT_AUTO_MIGRATE"
	EnvSeedCatalog = "TILLPOINT_SEED_CATALOG"

	EnvTaxRate           = "TILLPOINT_TAX_RATE"
	EnvQuantityPrecision = "TILLPOINT_QUANTITY_PRECISION"

	EnvStockPolicy           = "TILLPOINT_STOCK_POLICY"
	EnvMaxIdentifierAttempts = "TILLPOINT_COMMIT_MAX_IDENTIFIER_ATTEMPTS"
	EnvMaxContentionRetries  = "TILLPOINT_COMMIT_MAX_CONTENTION_RETRIES"
	EnvCommitLockTimeout     = "TILLPOINT_COMMIT_LOCK_TIMEOUT"
	EnvCommitUnitTimeout     = "TILLPOINT_COMMIT_UNIT_TIMEOUT"

	EnvCacheReconcileInterval = "TILLPOINT_CACHE_RECONCILE_INTERVAL"

	EnvMetricsEnabled = "TILLPOINT_METRICS_ENABLED"
	EnvMetricsPath    = "TILLPOINT_METRICS_PATH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
