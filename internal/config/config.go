package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config represents application configuration
type Config struct {
	Output OutputConfig `mapstructure:"output"`
	Daily  DailyConfig  `mapstructure:"daily"`
	Export ExportConfig `mapstructure:"export"`
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Daemon DaemonConfig `mapstructure:"daemon"`
}

// OutputConfig selects how the CLI writes feeds
type OutputConfig struct {
	Format string `mapstructure:"format"` // csv, jsonl or parquet
	Path   string `mapstructure:"path"`   // empty writes to stdout
}

// DailyConfig represents daily timetable defaults
type DailyConfig struct {
	WindowDays int `mapstructure:"window_days"` // Days before and after today when bounds are omitted
}

// ExportConfig represents batching for sinks
type ExportConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// StoreConfig represents the SQLite dimension store
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig represents the HTTP feed server
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DaemonConfig represents daemon mode configuration
type DaemonConfig struct {
	DailyTime string `mapstructure:"daily_time"` // Time to refresh the daily window (HH:MM, local time)
	LogFile   string `mapstructure:"log_file"`
	LogLevel  string `mapstructure:"log_level"`
}

var formats = map[string]bool{"csv": true, "jsonl": true, "parquet": true}

// Default returns the configuration used when no file is present
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults are plain scalars; decoding them cannot fail.
	_ = v.Unmarshal(&config)
	return &config
}

// Load loads configuration from file. An empty configPath searches the default
// locations, and finding no file there yields the defaults, still subject to
// TIMETABLE_* environment overrides. An explicit configPath must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("timetable")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.timetable")
		v.AddConfigPath("/etc/timetable")
	}

	// Read environment variables
	v.SetEnvPrefix("timetable")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Only a file found by searching may be absent; an explicit path must exist.
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.path", "")
	v.SetDefault("daily.window_days", 100)
	v.SetDefault("export.batch_size", 1024)
	v.SetDefault("store.path", "timetable.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("daemon.daily_time", "02:00")
	v.SetDefault("daemon.log_file", "")
	v.SetDefault("daemon.log_level", "info")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !formats[c.Output.Format] {
		return fmt.Errorf("output.format must be 'csv', 'jsonl' or 'parquet', got '%s'", c.Output.Format)
	}
	if c.Daily.WindowDays < 0 {
		return fmt.Errorf("daily.window_days must not be negative")
	}
	if c.Export.BatchSize <= 0 {
		return fmt.Errorf("export.batch_size must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Daemon.DailyTime != "" {
		if _, _, err := parseClock(c.Daemon.DailyTime); err != nil {
			return fmt.Errorf("daemon.daily_time: %w", err)
		}
	}
	return nil
}

// GetDailyTime returns the configured daily refresh time.
// Returns hour and minute (0-23, 0-59). Default: 02:00
func (c *DaemonConfig) GetDailyTime() (hour, minute int) {
	h, m, err := parseClock(c.DailyTime)
	if err != nil {
		return 2, 0 // Fallback to default
	}
	return h, m
}

func parseClock(s string) (hour, minute int, err error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return h, m, nil
}
