package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Telemetry   TelemetryConfig
	Marketplace MarketplaceConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file, ":memory:" allowed
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
	SlowThreshold   time.Duration
	MigrationsTable string
}

// RedisConfig holds Redis connection settings.
// When disabled, sync locks and OAuth states are kept in process memory.
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds the settings used to verify caller tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustedProxies    []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
}

// MarketplaceConfig holds the integration core settings
type MarketplaceConfig struct {
	// VaultMasterKey is the base64 encoded 32 byte key tenant keys are derived from
	VaultMasterKey string
	StateTTL       time.Duration
	SyncTimeout    time.Duration

	SchedulerEnabled bool
	CronSpec         string
	Workers          int
	QueueSize        int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	WebhookFailureThreshold int
	WebhookFailureWindow    time.Duration
	WebhookBodyLimit        int64
	WebhookRateLimit        float64 // requests per second per channel
	WebhookRateBurst        int

	StatsWindow     time.Duration
	CatalogCacheTTL time.Duration

	Channels map[string]ChannelEndpointConfig
}

// ChannelEndpointConfig holds per-channel API settings, keyed by slug
type ChannelEndpointConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AuthURL        string        `mapstructure:"auth_url"`
	TokenURL       string        `mapstructure:"token_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RedirectURL    string        `mapstructure:"redirect_url"`
	Scopes         []string      `mapstructure:"scopes"`
	AccountField   string        `mapstructure:"account_field"`
	EventField     string        `mapstructure:"event_field"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. A .env file in the working directory, exported into the environment
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
			MigrationsTable: v.GetString("database.migrations_table"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
		Marketplace: MarketplaceConfig{
			VaultMasterKey:          v.GetString("marketplace.vault_master_key"),
			StateTTL:                v.GetDuration("marketplace.state_ttl"),
			SyncTimeout:             v.GetDuration("marketplace.sync_timeout"),
			SchedulerEnabled:        v.GetBool("marketplace.scheduler_enabled"),
			CronSpec:                v.GetString("marketplace.cron_spec"),
			Workers:                 v.GetInt("marketplace.workers"),
			QueueSize:               v.GetInt("marketplace.queue_size"),
			RetryBaseDelay:          v.GetDuration("marketplace.retry_base_delay"),
			RetryMaxDelay:           v.GetDuration("marketplace.retry_max_delay"),
			WebhookFailureThreshold: v.GetInt("marketplace.webhook_failure_threshold"),
			WebhookFailureWindow:    v.GetDuration("marketplace.webhook_failure_window"),
			WebhookBodyLimit:        v.GetInt64("marketplace.webhook_body_limit"),
			WebhookRateLimit:        v.GetFloat64("marketplace.webhook_rate_limit"),
			WebhookRateBurst:        v.GetInt("marketplace.webhook_rate_burst"),
			StatsWindow:             v.GetDuration("marketplace.stats_window"),
			CatalogCacheTTL:         v.GetDuration("marketplace.catalog_cache_ttl"),
		},
	}
	if err := v.UnmarshalKey("marketplace.channels", &cfg.Marketplace.Channels); err != nil {
		return nil, fmt.Errorf("error reading marketplace.channels: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-marketplace"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "erp"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "marketplace.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Database.MigrationsTable == "" {
		cfg.Database.MigrationsTable = "marketplace_schema_migrations"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "erp:marketplace:"
	}

	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "erp-backend"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Manual syncs answer synchronously
		cfg.HTTP.WriteTimeout = 6 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "erp-marketplace"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}

	m := &cfg.Marketplace
	if m.StateTTL == 0 {
		m.StateTTL = 10 * time.Minute
	}
	if m.SyncTimeout == 0 {
		m.SyncTimeout = 5 * time.Minute
	}
	if m.CronSpec == "" {
		m.CronSpec = "@every 1m"
	}
	if m.Workers == 0 {
		m.Workers = 4
	}
	if m.QueueSize == 0 {
		m.QueueSize = 256
	}
	if m.RetryBaseDelay == 0 {
		m.RetryBaseDelay = 5 * time.Minute
	}
	if m.RetryMaxDelay == 0 {
		m.RetryMaxDelay = 30 * time.Minute
	}
	if m.WebhookFailureThreshold == 0 {
		m.WebhookFailureThreshold = 3
	}
	if m.WebhookFailureWindow == 0 {
		m.WebhookFailureWindow = time.Hour
	}
	if m.WebhookBodyLimit == 0 {
		m.WebhookBodyLimit = 256 << 10
	}
	if m.WebhookRateLimit == 0 {
		m.WebhookRateLimit = 50
	}
	if m.WebhookRateBurst == 0 {
		m.WebhookRateBurst = 100
	}
	if m.StatsWindow == 0 {
		m.StatsWindow = 24 * time.Hour
	}
	if m.CatalogCacheTTL == 0 {
		m.CatalogCacheTTL = 30 * time.Second
	}
	if m.Channels == nil {
		m.Channels = map[string]ChannelEndpointConfig{}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	m := c.Marketplace
	if m.Workers < 1 {
		return fmt.Errorf("marketplace.workers must be at least 1")
	}
	if m.QueueSize < 1 {
		return fmt.Errorf("marketplace.queue_size must be at least 1")
	}
	if m.RetryMaxDelay < m.RetryBaseDelay {
		return fmt.Errorf("marketplace.retry_max_delay (%s) cannot be below marketplace.retry_base_delay (%s)",
			m.RetryMaxDelay, m.RetryBaseDelay)
	}
	if m.WebhookFailureThreshold < 1 {
		return fmt.Errorf("marketplace.webhook_failure_threshold must be at least 1")
	}
	for slug, ch := range m.Channels {
		if ch.BaseURL == "" {
			continue
		}
		if u, err := url.Parse(ch.BaseURL); err != nil || !u.IsAbs() {
			return fmt.Errorf("marketplace.channels.%s.base_url must be an absolute URL", slug)
		}
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Marketplace.VaultMasterKey == "" {
			return fmt.Errorf("marketplace.vault_master_key is required in production")
		}
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
