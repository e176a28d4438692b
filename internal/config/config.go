// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const defaultSaltSecret = "statwise-development-salt"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	SaltSecret  string   `mapstructure:"saltsecret"`
	MetricsAddr string   `mapstructure:"metricsaddr"`
	GeoDBPath   string   `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// ClickHouse settings
	ClickHouseAddr           string `mapstructure:"clickhouseaddr"`
	ClickHouseDatabase       string `mapstructure:"clickhousedatabase"`
	ClickHouseUser           string `mapstructure:"clickhouseuser"`
	ClickHousePassword       string `mapstructure:"clickhousepassword"`
	ClickHouseDialTimeoutSec int    `mapstructure:"clickhousedialtimeoutseconds"`
	ClickHouseMaxOpenConns   int    `mapstructure:"clickhousemaxopenconns"`
	ClickHouseMaxIdleConns   int    `mapstructure:"clickhousemaxidleconns"`
	ConnectRetrySeconds      int    `mapstructure:"connectretryseconds"`

	// Redis settings
	RedisURL string `mapstructure:"redisurl"`

	// Session tracking settings
	SessionTTLSeconds         int `mapstructure:"sessionttlseconds"`
	SessionDurationTTLSeconds int `mapstructure:"sessiondurationttlseconds"`
	SessionIdleSeconds        int `mapstructure:"sessionidleseconds"`
	HeartbeatTTLSeconds       int `mapstructure:"heartbeatttlseconds"`

	// Query settings
	FunnelWindowSeconds int `mapstructure:"funnelwindowseconds"`
	QueryWorkers        int `mapstructure:"queryworkers"`

	// Job scheduling settings
	SessionDurationSchedule string `mapstructure:"sessiondurationschedule"`
	RetentionSchedule       string `mapstructure:"retentionschedule"`
	// RetentionDays of zero keeps events forever.
	RetentionDays int `mapstructure:"retentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads a fresh configuration from defaults and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "statwise")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelDebug))
	v.SetDefault("saltsecret", defaultSaltSecret)
	v.SetDefault("metricsaddr", ":9464")
	v.SetDefault("geodbpath", "")
	v.SetDefault("logsdir", "logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("clickhouseaddr", "127.0.0.1:9000")
	v.SetDefault("clickhousedatabase", "statwise")
	v.SetDefault("clickhouseuser", "default")
	v.SetDefault("clickhousepassword", "")
	v.SetDefault("clickhousedialtimeoutseconds", 10)
	v.SetDefault("clickhousemaxopenconns", 0)
	v.SetDefault("clickhousemaxidleconns", 0)
	v.SetDefault("connectretryseconds", 30)
	v.SetDefault("redisurl", "redis://127.0.0.1:6379/0")
	v.SetDefault("sessionttlseconds", 1800)
	v.SetDefault("sessiondurationttlseconds", 3600)
	v.SetDefault("sessionidleseconds", 1800)
	v.SetDefault("heartbeatttlseconds", 60)
	v.SetDefault("funnelwindowseconds", 86400)
	v.SetDefault("queryworkers", 4)
	v.SetDefault("sessiondurationschedule", "@every 1m")
	v.SetDefault("retentionschedule", "@daily")
	v.SetDefault("retentiondays", 0)

	v.BindEnv("appname", "STATWISE_APP_NAME")
	v.BindEnv("environment", "STATWISE_ENV")
	v.BindEnv("loglevel", "STATWISE_LOG_LEVEL")
	v.BindEnv("saltsecret", "STATWISE_SALT_SECRET")
	v.BindEnv("metricsaddr", "STATWISE_METRICS_ADDR")
	v.BindEnv("geodbpath", "STATWISE_GEO_DB_PATH")
	v.BindEnv("logsdir", "STATWISE_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "STATWISE_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "STATWISE_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "STATWISE_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("clickhouseaddr", "STATWISE_CLICKHOUSE_ADDR")
	v.BindEnv("clickhousedatabase", "STATWISE_CLICKHOUSE_DATABASE")
	v.BindEnv("clickhouseuser", "STATWISE_CLICKHOUSE_USER")
	v.BindEnv("clickhousepassword", "STATWISE_CLICKHOUSE_PASSWORD")
	v.BindEnv("clickhousedialtimeoutseconds", "STATWISE_CLICKHOUSE_DIAL_TIMEOUT_SECONDS")
	v.BindEnv("clickhousemaxopenconns", "STATWISE_CLICKHOUSE_MAX_OPEN_CONNS")
	v.BindEnv("clickhousemaxidleconns", "STATWISE_CLICKHOUSE_MAX_IDLE_CONNS")
	v.BindEnv("connectretryseconds", "STATWISE_CONNECT_RETRY_SECONDS")
	v.BindEnv("redisurl", "STATWISE_REDIS_URL")
	v.BindEnv("sessionttlseconds", "STATWISE_SESSION_TTL_SECONDS")
	v.BindEnv("sessiondurationttlseconds", "STATWISE_SESSION_DURATION_TTL_SECONDS")
	v.BindEnv("sessionidleseconds", "STATWISE_SESSION_IDLE_SECONDS")
	v.BindEnv("heartbeatttlseconds", "STATWISE_HEARTBEAT_TTL_SECONDS")
	v.BindEnv("funnelwindowseconds", "STATWISE_FUNNEL_WINDOW_SECONDS")
	v.BindEnv("queryworkers", "STATWISE_QUERY_WORKERS")
	v.BindEnv("sessiondurationschedule", "STATWISE_SESSION_DURATION_SCHEDULE")
	v.BindEnv("retentionschedule", "STATWISE_RETENTION_SCHEDULE")
	v.BindEnv("retentiondays", "STATWISE_RETENTION_DAYS")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.SaltSecret == "" {
		return fmt.Errorf("salt secret is required")
	}
	if c.IsProduction() && c.SaltSecret == defaultSaltSecret {
		return fmt.Errorf("production requires a unique STATWISE_SALT_SECRET")
	}

	if c.SessionTTLSeconds <= 0 || c.SessionDurationTTLSeconds <= 0 {
		return fmt.Errorf("session TTLs must be positive")
	}
	if c.FunnelWindowSeconds <= 0 {
		return fmt.Errorf("funnel window must be positive")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}

	return nil
}

// ClickHouseAddrs splits the comma separated address list.
func (c *Config) ClickHouseAddrs() []string {
	var addrs []string
	for _, a := range strings.Split(c.ClickHouseAddr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) SessionDurationTTL() time.Duration {
	return time.Duration(c.SessionDurationTTLSeconds) * time.Second
}

func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleSeconds) * time.Second
}

func (c *Config) HeartbeatTTL() time.Duration {
	return time.Duration(c.HeartbeatTTLSeconds) * time.Second
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.ClickHouseDialTimeoutSec) * time.Second
}

func (c *Config) ConnectRetry() time.Duration {
	return time.Duration(c.ConnectRetrySeconds) * time.Second
}

// GetMaxOpenConns returns the ClickHouse pool size. Dashboard views issue
// their sub-queries concurrently, so the default leaves room for them.
func (c *Config) GetMaxOpenConns() int {
	if c.ClickHouseMaxOpenConns > 0 {
		return c.ClickHouseMaxOpenConns
	}
	if c.Environment == Test {
		return 2
	}
	return 10
}

func (c *Config) GetMaxIdleConns() int {
	if c.ClickHouseMaxIdleConns > 0 {
		return c.ClickHouseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
