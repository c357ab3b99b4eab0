// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted by the pluggable sections.
const (
	EngineBrowser = "browser"
	EngineHTTP    = "http"

	ProviderNone     = "none"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
	ProviderPostgres = "postgres"
	ProviderSQLite   = "sqlite"
	ProviderMemory   = "memory"
	ProviderRedis    = "redis"
	ProviderPubSub   = "pubsub"
	ProviderKafka    = "kafka"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	History     HistoryConfig     `mapstructure:"history"`
	Events      EventsConfig      `mapstructure:"events"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs batching and the platform crawl engine.
type CrawlerConfig struct {
	Engine                string `mapstructure:"engine"`
	BatchSize             int    `mapstructure:"batch_size"`
	BatchIntervalMs       int    `mapstructure:"batch_interval_ms"`
	TimezoneOffsetHours   int    `mapstructure:"timezone_offset_hours"`
	UserAgent             string `mapstructure:"user_agent"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	CookieDir             string `mapstructure:"cookie_dir"`
}

// BrowserConfig configures the chromedp engine.
type BrowserConfig struct {
	UserDataDir         string `mapstructure:"user_data_dir"`
	NavTimeoutSeconds   int    `mapstructure:"nav_timeout_seconds"`
	LoginTimeoutSeconds int    `mapstructure:"login_timeout_seconds"`
}

// CredentialsConfig names the accounts the pool knows about.
type CredentialsConfig struct {
	DefaultAccount string   `mapstructure:"default_account"`
	Accounts       []string `mapstructure:"accounts"`
	ArchiveKey     string   `mapstructure:"archive_key"`
}

// StorageConfig selects where profile archives live.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls account persistence.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// HistoryConfig selects the job history store.
type HistoryConfig struct {
	Provider  string `mapstructure:"provider"`
	RedisAddr string `mapstructure:"redis_addr"`
	TTLHours  int    `mapstructure:"ttl_hours"`
}

// EventsConfig selects where completion events go.
type EventsConfig struct {
	Provider    string `mapstructure:"provider"`
	ProjectID   string `mapstructure:"project_id"`
	Topic       string `mapstructure:"topic"`
	KafkaBroker string `mapstructure:"kafka_broker"`
}

// TelemetryConfig names the service in traces.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 11086)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.engine", EngineBrowser)
	v.SetDefault("crawler.batch_size", 5)
	v.SetDefault("crawler.batch_interval_ms", 0)
	v.SetDefault("crawler.timezone_offset_hours", 8)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.cookie_dir", "cookies")
	v.SetDefault("browser.user_data_dir", "browser_data")
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.login_timeout_seconds", 120)
	v.SetDefault("credentials.default_account", "xhs")
	v.SetDefault("credentials.accounts", []string{})
	v.SetDefault("credentials.archive_key", "xhs/xhs_user_data_dir.zip")
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "archives")
	v.SetDefault("db.provider", ProviderNone)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "accounts")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("history.provider", ProviderMemory)
	v.SetDefault("history.redis_addr", "")
	v.SetDefault("history.ttl_hours", 72)
	v.SetDefault("events.provider", ProviderNone)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "")
	v.SetDefault("events.kafka_broker", "")
	v.SetDefault("telemetry.service_name", "creator-crawler")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := oneOf("crawler.engine", c.Crawler.Engine, EngineBrowser, EngineHTTP); err != nil {
		return err
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.BatchIntervalMs < 0 {
		return fmt.Errorf("crawler.batch_interval_ms must be >= 0")
	}
	if c.Crawler.TimezoneOffsetHours < -12 || c.Crawler.TimezoneOffsetHours > 14 {
		return fmt.Errorf("crawler.timezone_offset_hours must be within [-12, 14]")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Credentials.DefaultAccount == "" {
		return fmt.Errorf("credentials.default_account is required")
	}
	if err := oneOf("storage.provider", c.Storage.Provider, ProviderLocal, ProviderGCS); err != nil {
		return err
	}
	if c.Storage.Provider == ProviderGCS && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
	}
	if err := oneOf("db.provider", c.DB.Provider, ProviderNone, ProviderPostgres, ProviderSQLite); err != nil {
		return err
	}
	if c.DB.Provider != ProviderNone && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for the %s provider", c.DB.Provider)
	}
	if err := oneOf("history.provider", c.History.Provider, ProviderMemory, ProviderRedis); err != nil {
		return err
	}
	if c.History.Provider == ProviderRedis && c.History.RedisAddr == "" {
		return fmt.Errorf("history.redis_addr is required for the redis provider")
	}
	if err := oneOf("events.provider", c.Events.Provider, ProviderNone, ProviderMemory, ProviderPubSub, ProviderKafka); err != nil {
		return err
	}
	switch c.Events.Provider {
	case ProviderPubSub:
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic are required for pubsub")
		}
	case ProviderKafka:
		if c.Events.KafkaBroker == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.kafka_broker and events.topic are required for kafka")
		}
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
	}
	return nil
}

// BatchInterval is the pause between consecutive batches.
func (c Config) BatchInterval() time.Duration {
	return time.Duration(c.Crawler.BatchIntervalMs) * time.Millisecond
}

// RequestTimeout bounds one HTTP page fetch.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// HistoryTTL is how long job records are retained in Redis.
func (c Config) HistoryTTL() time.Duration {
	return time.Duration(c.History.TTLHours) * time.Hour
}

// SeedAccounts returns the configured accounts, always including the default account first.
func (c Config) SeedAccounts() []string {
	out := []string{c.Credentials.DefaultAccount}
	for _, a := range c.Credentials.Accounts {
		a = strings.TrimSpace(a)
		if a != "" && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// ArchiveKey is the remote key for account's profile archive. The default
// account uses credentials.archive_key; others get a sibling key.
func (c Config) ArchiveKey(account string) string {
	if account == "" || account == c.Credentials.DefaultAccount {
		return c.Credentials.ArchiveKey
	}
	return path.Join(path.Dir(c.Credentials.ArchiveKey), account+"_user_data_dir.zip")
}
