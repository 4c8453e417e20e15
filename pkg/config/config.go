package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-backend/pkg/money"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Commit       CommitConfig
	Cache        CacheConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Commit.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TILLPOINT_APP_ENV" required:"true"`
	Port         string `envconfig:"TILLPOINT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TILLPOINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TILLPOINT_LOG_WARN_STACK" default:"false"`
	// SessionIdleTimeout drops operator sessions and their carts after inactivity.
	SessionIdleTimeout time.Duration `envconfig:"TILLPOINT_SESSION_IDLE_TIMEOUT" default:"12h"`
	// CORSOrigins is a comma separated list of till front-end origins.
	CORSOrigins []string `envconfig:"TILLPOINT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"TILLPOINT_DB_DSN"`
	Driver     string `envconfig:"TILLPOINT_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"TILLPOINT_SQLITE_PATH" default:"tillpoint.db"`

	LegacyHost     string `envconfig:"TILLPOINT_DB_HOST"`
	LegacyPort     int    `envconfig:"TILLPOINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TILLPOINT_DB_USER"`
	LegacyPassword string `envconfig:"TILLPOINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"TILLPOINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"TILLPOINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TILLPOINT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"TILLPOINT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"TILLPOINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TILLPOINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables Redis.
type RedisConfig struct {
	URL          string        `envconfig:"TILLPOINT_REDIS_URL"`
	Address      string        `envconfig:"TILLPOINT_REDIS_ADDR"`
	Password     string        `envconfig:"TILLPOINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TILLPOINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TILLPOINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TILLPOINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TILLPOINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TILLPOINT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"TILLPOINT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TILLPOINT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TILLPOINT_AUTO_MIGRATE" default:"false"`
	SeedCatalog bool `envconfig:"TILLPOINT_SEED_CATALOG" default:"false"`
}

type PricingConfig struct {
	TaxRate           string `envconfig:"TILLPOINT_TAX_RATE" default:"0.10"`
	QuantityPrecision int32  `envconfig:"TILLPOINT_QUANTITY_PRECISION" default:"3"`
}

// Rate returns the parsed tax rate. Load has already validated it.
func (p PricingConfig) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.TaxRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (p PricingConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.TaxRate))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvTaxRate)
	}
	if p.QuantityPrecision < 0 || p.QuantityPrecision > money.MaxQuantityPlaces {
		return fmt.Errorf("%s must be between 0 and %d", EnvQuantityPrecision, money.MaxQuantityPlaces)
	}
	return nil
}

type CommitConfig struct {
	StockPolicy           string        `envconfig:"TILLPOINT_STOCK_POLICY" default:"allow_negative"`
	MaxIdentifierAttempts int           `envconfig:"TILLPOINT_COMMIT_MAX_IDENTIFIER_ATTEMPTS" default:"5"`
	MaxContentionRetries  int           `envconfig:"TILLPOINT_COMMIT_MAX_CONTENTION_RETRIES" default:"3"`
	LockTimeout           time.Duration `envconfig:"TILLPOINT_COMMIT_LOCK_TIMEOUT" default:"2s"`
	UnitTimeout           time.Duration `envconfig:"TILLPOINT_COMMIT_UNIT_TIMEOUT" default:"10s"`
}

func (c CommitConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StockPolicy)) {
	case "allow_negative", "strict":
	default:
		return fmt.Errorf("%s must be allow_negative or strict, got %q", EnvStockPolicy, c.StockPolicy)
	}
	if c.MaxIdentifierAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxIdentifierAttempts)
	}
	if c.MaxContentionRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvMaxContentionRetries)
	}
	if c.LockTimeout <= 0 || c.UnitTimeout <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvCommitLockTimeout, EnvCommitUnitTimeout)
	}
	return nil
}

type CacheConfig struct {
	ReconcileInterval time.Duration `envconfig:"TILLPOINT_CACHE_RECONCILE_INTERVAL" default:"5m"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"TILLPOINT_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"TILLPOINT_METRICS_PATH" default:"/metrics"`
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
