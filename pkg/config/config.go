package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Dispatch     DispatchConfig
	Earnings     EarningsConfig
	Incentives   IncentivesConfig
	Cron         CronConfig
	GCP          GCPConfig
	Maps         MapsConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Incentives.Location(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvIncentivesTimezone, err)
	}
	if _, err := cfg.Earnings.Location(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvEarningsPeakTimezone, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COURIER_APP_ENV" required:"true"`
	Port         string `envconfig:"COURIER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COURIER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COURIER_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"COURIER_LOG_FORMAT" default:"json"`
	// CORSOrigins is a comma separated allow list.
	CORSOrigins []string `envconfig:"COURIER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COURIER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COURIER_DB_DSN"`
	Driver string `envconfig:"COURIER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COURIER_DB_HOST"`
	LegacyPort     int    `envconfig:"COURIER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COURIER_DB_USER"`
	LegacyPassword string `envconfig:"COURIER_DB_PASSWORD"`
	LegacyName     string `envconfig:"COURIER_DB_NAME"`
	LegacySSLMode  string `envconfig:"COURIER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COURIER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COURIER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COURIER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COURIER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this at warn.
	SlowQueryThreshold time.Duration `envconfig:"COURIER_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COURIER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COURIER_REDIS_ADDR"`
	Password     string        `envconfig:"COURIER_REDIS_PASSWORD"`
	DB           int           `envconfig:"COURIER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COURIER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COURIER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COURIER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COURIER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COURIER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"COURIER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"COURIER_AUTO_MIGRATE" default:"false"`
}

// DispatchConfig tunes the background side of allocation: the offer sweeper
// and the FIFO pending-order drain.
type DispatchConfig struct {
	SweepInterval    time.Duration `envconfig:"COURIER_DISPATCH_SWEEP_INTERVAL" default:"5s"`
	SweepLockTTL     time.Duration `envconfig:"COURIER_DISPATCH_SWEEP_LOCK_TTL" default:"30s"`
	PendingBatch     int           `envconfig:"COURIER_DISPATCH_PENDING_BATCH" default:"25"`
	EnableSweeper    bool          `envconfig:"COURIER_DISPATCH_ENABLE_SWEEPER" default:"true"`
	DrainPendingFIFO bool          `envconfig:"COURIER_DISPATCH_DRAIN_PENDING" default:"true"`
}

// EarningsConfig controls fee resolution. With FallbackGlobal set, an order
// that matches no fee setting at any scope is priced with the Default* values
// and the earning records the fallback reason. Without it the computation fails.
type EarningsConfig struct {
	FallbackGlobal   bool            `envconfig:"COURIER_EARNINGS_FALLBACK_GLOBAL" default:"false"`
	DefaultBaseFee   decimal.Decimal `envconfig:"COURIER_EARNINGS_DEFAULT_BASE_FEE" default:"0"`
	DefaultBaseKm    decimal.Decimal `envconfig:"COURIER_EARNINGS_DEFAULT_BASE_KM" default:"0"`
	DefaultPerKmFee  decimal.Decimal `envconfig:"COURIER_EARNINGS_DEFAULT_PER_KM_FEE" default:"0"`
	PeakHourTimezone string          `envconfig:"COURIER_EARNINGS_PEAK_TIMEZONE" default:"UTC"`
}

// Location resolves the zone peak-hour windows are evaluated in.
func (e EarningsConfig) Location() (*time.Location, error) {
	return loadLocation(e.PeakHourTimezone)
}

type IncentivesConfig struct {
	Timezone string `envconfig:"COURIER_INCENTIVES_TIMEZONE" default:"UTC"`
}

// Location resolves the configured time zone used for period windows.
func (i IncentivesConfig) Location() (*time.Location, error) {
	return loadLocation(i.Timezone)
}

func loadLocation(name string) (*time.Location, error) {
	tz := strings.TrimSpace(name)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

type CronConfig struct {
	Interval time.Duration `envconfig:"COURIER_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"COURIER_CRON_LOCK_TTL" default:"30m"`
}

// MapsConfig enables road distances from the Google Routes API. Without an
// API key dispatch ranks agents by straight-line distance.
type MapsConfig struct {
	APIKey     string        `envconfig:"COURIER_GOOGLE_MAPS_API_KEY"`
	BaseURL    string        `envconfig:"COURIER_GOOGLE_ROUTES_BASE_URL"`
	TravelMode string        `envconfig:"COURIER_GOOGLE_ROUTES_TRAVEL_MODE" default:"TWO_WHEELER"`
	Timeout    time.Duration `envconfig:"COURIER_GOOGLE_ROUTES_TIMEOUT" default:"3s"`
}

func (m MapsConfig) Enabled() bool {
	return strings.TrimSpace(m.APIKey) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COURIER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"COURIER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COURIER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"COURIER_PUBSUB_NOTIFICATION_TOPIC" default:"courier-agent-notifications"`
	DomainTopic       string `envconfig:"COURIER_PUBSUB_DOMAIN_TOPIC" default:"courier-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COURIER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COURIER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COURIER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:courier.db?cache=shared"
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
