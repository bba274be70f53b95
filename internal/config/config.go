// Package config provides configuration management for streammon using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxIdleTime = 30 * time.Minute

	// DefaultPollInterval is the fixed delay between scheduler sweeps.
	DefaultPollInterval = 7000 * time.Millisecond
	// DefaultWindowSpan is the sliding-window span used by the decay scorer.
	DefaultWindowSpan = 12 * time.Minute
	// DefaultStaleThreshold is the per-stream freshness threshold.
	DefaultStaleThreshold = 7000 * time.Millisecond
	// DefaultMaxConcurrentAnalysis is the media analysis pipeline's concurrency bound.
	DefaultMaxConcurrentAnalysis = 4
	// DefaultErrorRetention is how long ledger entries survive age-out.
	DefaultErrorRetention = 7 * 24 * time.Hour
	// DefaultFetchTimeout bounds the playlist HTTP GET.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultMetricsRetention is the historian's sample TTL.
	DefaultMetricsRetention = 7 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
}

// ServerConfig holds the read-only admin HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds filesystem paths used for transient artifacts.
type StorageConfig struct {
	TempDir string `mapstructure:"temp_dir"` // scratch dir for thumbnail extraction
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MonitorConfig holds the engine's tunable parameters.
type MonitorConfig struct {
	// PollInterval is the fixed delay after a sweep completes before the next begins.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// WindowSpan is the sliding-window span for recent-issue classification.
	WindowSpan time.Duration `mapstructure:"window_span"`
	// StaleThreshold is the per-stream default freshness threshold.
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	// MaxConcurrentAnalysis bounds the media analysis pipeline.
	MaxConcurrentAnalysis int `mapstructure:"max_concurrent_analysis"`
	// ErrorRetention is the ledger age-out horizon.
	ErrorRetention time.Duration `mapstructure:"error_retention"`
	// FetchTimeout bounds the playlist HTTP GET.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// MetricsRetention is the historian's TTL horizon on samples.
	MetricsRetention time.Duration `mapstructure:"metrics_retention"`
}

// FFmpegConfig holds the external media-analysis tool configuration.
type FFmpegConfig struct {
	FFprobePath string        `mapstructure:"ffprobe_path"` // path to ffprobe binary (empty = auto-detect on PATH)
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`  // path to ffmpeg binary (empty = auto-detect on PATH)
	Timeout     time.Duration `mapstructure:"timeout"`      // per-invocation timeout
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMMON_ and use underscores for nesting.
// Example: STREAMMON_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streammon")
		v.AddConfigPath("$HOME/.streammon")
	}

	v.SetEnvPrefix("STREAMMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streammon.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.temp_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("monitor.poll_interval", DefaultPollInterval)
	v.SetDefault("monitor.window_span", DefaultWindowSpan)
	v.SetDefault("monitor.stale_threshold", DefaultStaleThreshold)
	v.SetDefault("monitor.max_concurrent_analysis", DefaultMaxConcurrentAnalysis)
	v.SetDefault("monitor.error_retention", DefaultErrorRetention)
	v.SetDefault("monitor.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("monitor.metrics_retention", DefaultMetricsRetention)

	v.SetDefault("ffmpeg.ffprobe_path", "")
	v.SetDefault("ffmpeg.ffmpeg_path", "")
	v.SetDefault("ffmpeg.timeout", 15*time.Second)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.MaxConcurrentAnalysis < 1 {
		return fmt.Errorf("monitor.max_concurrent_analysis must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
