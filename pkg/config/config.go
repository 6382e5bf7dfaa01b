package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Operator      OperatorConfig
	AuthRateLimit AuthRateLimitConfig
	Idempotency   IdempotencyConfig
	FeatureFlags  FeatureFlagsConfig
	Shopify       ShopifyConfig
	Reconcile     ReconcileConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Shopify.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MOSLY_APP_ENV" required:"true"`
	Port         string `envconfig:"MOSLY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MOSLY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MOSLY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MOSLY_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"MOSLY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MOSLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MOSLY_DB_DSN"`
	Driver string `envconfig:"MOSLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MOSLY_DB_HOST"`
	LegacyPort     int    `envconfig:"MOSLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MOSLY_DB_USER"`
	LegacyPassword string `envconfig:"MOSLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"MOSLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"MOSLY_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MOSLY_SQLITE_PATH" default:"mosly-stock.db"`

	MaxOpenConns    int           `envconfig:"MOSLY_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MOSLY_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"MOSLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MOSLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which statements are logged at warn; 0 disables it.
	SlowQuery time.Duration `envconfig:"MOSLY_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MOSLY_REDIS_URL"`
	Address      string        `envconfig:"MOSLY_REDIS_ADDR"`
	Password     string        `envconfig:"MOSLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"MOSLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MOSLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MOSLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MOSLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MOSLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MOSLY_REDIS_WRITE_TIMEOUT" default:"5s"`
	// KeyPrefix namespaces every key so several environments can share one instance.
	KeyPrefix string `envconfig:"MOSLY_REDIS_KEY_PREFIX" default:"mosly"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MOSLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MOSLY_JWT_ISSUER" default:"mosly-stock"`
	ExpirationMinutes int    `envconfig:"MOSLY_JWT_EXPIRATION_MINUTES" default:"720"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MOSLY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MOSLY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MOSLY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MOSLY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MOSLY_ARGON_KEY_LEN" default:"32"`
}

// OperatorConfig holds the shared dashboard credential. The hash is produced by
// `stockctl hash-password`.
type OperatorConfig struct {
	PasswordHash string `envconfig:"MOSLY_OPERATOR_PASSWORD_HASH" required:"true"`
}

type AuthRateLimitConfig struct {
	LoginWindow  time.Duration `envconfig:"MOSLY_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit int           `envconfig:"MOSLY_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"10"`
	// TrustProxy takes the client address from X-Forwarded-For when the API
	// sits behind a load balancer.
	TrustProxy bool `envconfig:"MOSLY_AUTH_RATE_LIMIT_TRUST_PROXY" default:"false"`
}

// IdempotencyConfig bounds how long keyed stock mutations are remembered.
// PendingTTL caps a reservation whose request never finished.
type IdempotencyConfig struct {
	TTL        time.Duration `envconfig:"MOSLY_IDEMPOTENCY_TTL" default:"168h"`
	PendingTTL time.Duration `envconfig:"MOSLY_IDEMPOTENCY_PENDING_TTL" default:"2m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MOSLY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MOSLY_AUTO_MIGRATE" default:"false"`
}

type ShopifyConfig struct {
	Store       string        `envconfig:"MOSLY_SHOPIFY_STORE" required:"true"`
	APIKey      string        `envconfig:"MOSLY_SHOPIFY_API_KEY"`
	APIPassword string        `envconfig:"MOSLY_SHOPIFY_API_PASSWORD"`
	AccessToken string        `envconfig:"MOSLY_SHOPIFY_ACCESS_TOKEN"`
	APIVersion  string        `envconfig:"MOSLY_SHOPIFY_API_VERSION" default:"2024-10"`
	Timeout     time.Duration `envconfig:"MOSLY_SHOPIFY_TIMEOUT" default:"25s"`
	MaxPages    int           `envconfig:"MOSLY_SHOPIFY_MAX_PAGES" default:"40"`
	CacheTTL    time.Duration `envconfig:"MOSLY_SHOPIFY_CACHE_TTL" default:"60s"`
}

func (s ShopifyConfig) validate() error {
	if strings.TrimSpace(s.AccessToken) != "" {
		return nil
	}
	if strings.TrimSpace(s.APIKey) == "" || strings.TrimSpace(s.APIPassword) == "" {
		return fmt.Errorf("either %s or both %s and %s are required", EnvShopifyAccessToken, EnvShopifyAPIKey, EnvShopifyAPIPassword)
	}
	return nil
}

type ReconcileConfig struct {
	LeaseTTL  time.Duration `envconfig:"MOSLY_RECONCILE_LEASE_TTL" default:"5m"`
	LeaseWait time.Duration `envconfig:"MOSLY_RECONCILE_LEASE_WAIT" default:"10s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MOSLY_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"MOSLY_CRON_LOCK_TTL" default:"10m"`
	// MetricsAddr is where the worker serves /metrics; empty disables it.
	MetricsAddr string `envconfig:"MOSLY_CRON_METRICS_ADDR" default:":9091"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = sqliteDSN(db.SQLitePath)
		}
		return nil
	}
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

func sqliteDSN(path string) string {
	if strings.TrimSpace(path) == "" {
		path = "mosly-stock.db"
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
}
