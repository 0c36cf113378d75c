package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App             AppConfig
	Service         ServiceConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	PublicRateLimit PublicRateLimitConfig
	FeatureFlags    FeatureFlagsConfig
	Ledger          LedgerConfig
	Audit           AuditConfig
	GCP             GCPConfig
	PubSub          PubSubConfig
	Outbox          OutboxConfig
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects values envconfig parses fine but the services cannot run with.
func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.App.LogFormat == "json" || c.App.LogFormat == "console",
		"SAAKSHY_LOG_FORMAT must be json or console, got %q", c.App.LogFormat)
	check(c.PublicRateLimit.Window > 0 && c.PublicRateLimit.IPLimit > 0 && c.PublicRateLimit.RecordLimit > 0,
		"public rate limits must be positive")
	check(c.PublicRateLimit.TrustedProxyHops >= 0, "SAAKSHY_TRUSTED_PROXY_HOPS must not be negative")
	check(c.Ledger.CommandMaxAttempts > 0, "%s must be positive", EnvLedgerMaxAttempts)
	check(c.Outbox.MaxAttempts > 0 && c.Outbox.BatchSize > 0, "outbox batch size and max attempts must be positive")
	check(c.Audit.Interval > 0, "SAAKSHY_AUDIT_INTERVAL must be positive")
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"SAAKSHY_APP_ENV" required:"true"`
	Port         string `envconfig:"SAAKSHY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SAAKSHY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SAAKSHY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SAAKSHY_LOG_FORMAT" default:"json"`
	// PublicBaseURL is used to build the shareable confirmation link returned on create.
	PublicBaseURL string   `envconfig:"SAAKSHY_PUBLIC_BASE_URL" default:"http://localhost:5173"`
	CORSOrigins   []string `envconfig:"SAAKSHY_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"SAAKSHY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SAAKSHY_DB_DSN"`
	Driver string `envconfig:"SAAKSHY_DB_DRIVER" default:"postgres"`
	// SQLitePath is used when the sqlite driver is selected and no DSN is given.
	SQLitePath string `envconfig:"SAAKSHY_SQLITE_PATH" default:"saakshy.db"`

	LegacyHost     string `envconfig:"SAAKSHY_DB_HOST"`
	LegacyPort     int    `envconfig:"SAAKSHY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SAAKSHY_DB_USER"`
	LegacyPassword string `envconfig:"SAAKSHY_DB_PASSWORD"`
	LegacyName     string `envconfig:"SAAKSHY_DB_NAME"`
	LegacySSLMode  string `envconfig:"SAAKSHY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SAAKSHY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SAAKSHY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SAAKSHY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SAAKSHY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SAAKSHY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SAAKSHY_REDIS_ADDR"`
	Password     string        `envconfig:"SAAKSHY_REDIS_PASSWORD"`
	DB           int           `envconfig:"SAAKSHY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SAAKSHY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SAAKSHY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SAAKSHY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SAAKSHY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SAAKSHY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"SAAKSHY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SAAKSHY_JWT_ISSUER" required:"true"`
	// ExpirationMinutes only matters for tokens minted locally by tests and dev tooling.
	ExpirationMinutes int `envconfig:"SAAKSHY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PublicRateLimitConfig bounds the unauthenticated confirm and dispute endpoints.
type PublicRateLimitConfig struct {
	Window      time.Duration `envconfig:"SAAKSHY_PUBLIC_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit     int           `envconfig:"SAAKSHY_PUBLIC_RATE_LIMIT_IP_LIMIT" default:"30"`
	RecordLimit int           `envconfig:"SAAKSHY_PUBLIC_RATE_LIMIT_RECORD_LIMIT" default:"10"`
	// TrustedProxyHops is the number of proxies in front of the API that append
	// to X-Forwarded-For. Zero keys the limiter on the socket address alone.
	TrustedProxyHops int `envconfig:"SAAKSHY_TRUSTED_PROXY_HOPS" default:"1"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"SAAKSHY_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"SAAKSHY_AUTO_MIGRATE" default:"false"`
	ProjectionCache bool `envconfig:"SAAKSHY_PROJECTION_CACHE" default:"true"`
}

type LedgerConfig struct {
	CommandMaxAttempts int           `envconfig:"SAAKSHY_LEDGER_COMMAND_MAX_ATTEMPTS" default:"3"`
	CacheTTL           time.Duration `envconfig:"SAAKSHY_LEDGER_CACHE_TTL" default:"10m"`
	// RecentActivityLimit caps the activity feed returned with the dashboard summary.
	RecentActivityLimit int `envconfig:"SAAKSHY_LEDGER_RECENT_ACTIVITY_LIMIT" default:"7"`
}

type AuditConfig struct {
	Interval  time.Duration `envconfig:"SAAKSHY_AUDIT_INTERVAL" default:"1h"`
	BatchSize int           `envconfig:"SAAKSHY_AUDIT_BATCH_SIZE" default:"200"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SAAKSHY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SAAKSHY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SAAKSHY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic string `envconfig:"SAAKSHY_PUBSUB_LEDGER_TOPIC" default:"saakshy-ledger-events"`
	// IntegrityTopic receives tamper alerts. Empty routes them to LedgerTopic.
	IntegrityTopic string `envconfig:"SAAKSHY_PUBSUB_INTEGRITY_TOPIC"`
}

// IntegrityTopicOrDefault is where record_integrity_failed events go.
func (c PubSubConfig) IntegrityTopicOrDefault() string {
	if t := strings.TrimSpace(c.IntegrityTopic); t != "" {
		return t
	}
	return c.LedgerTopic
}

// Topics lists the distinct non-empty topics the outbox publishes to.
func (c PubSubConfig) Topics() []string {
	var topics []string
	for _, t := range []string{c.LedgerTopic, c.IntegrityTopicOrDefault()} {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SAAKSHY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SAAKSHY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SAAKSHY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"SAAKSHY_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = db.SQLitePath
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
