// Package config loads mathdrill settings from defaults, an optional YAML
// file, MATHDRILL_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/mathdrill/internal/autosave"
	"github.com/abhisek/mathdrill/internal/delivery"
)

// EnvPrefix prefixes every environment variable, e.g. MATHDRILL_SERVER_BASE_URL.
const EnvPrefix = "MATHDRILL"

// Config holds all runtime settings.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Autosave   AutosaveConfig   `mapstructure:"autosave"`
	Inactivity InactivityConfig `mapstructure:"inactivity"`
	Log        LogConfig        `mapstructure:"log"`
	DevServer  DevServerConfig  `mapstructure:"devserver"`

	// DB is the journal database path. Empty selects the XDG default.
	DB string `mapstructure:"db"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// ServerConfig points the client at a delivery API.
type ServerConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// AutosaveConfig tunes debouncing and retry of answer saves.
type AutosaveConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// InactivityConfig sets the idle window before a hint is shown.
type InactivityConfig struct {
	IdleAfter time.Duration `mapstructure:"idle_after"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DevServerConfig configures the local fake delivery server.
type DevServerConfig struct {
	Addr            string `mapstructure:"addr"`
	Pages           int    `mapstructure:"pages"`
	ProblemsPerPage int    `mapstructure:"problems_per_page"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	retry := autosave.DefaultRetryConfig()
	return Config{
		Server: ServerConfig{
			BaseURL:           "http://localhost:8787",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Autosave: AutosaveConfig{
			Delay:       autosave.DefaultDelay,
			MaxAttempts: retry.MaxAttempts,
			InitialWait: retry.InitialWait,
			MaxWait:     retry.MaxWait,
			Multiplier:  retry.Multiplier,
		},
		Inactivity: InactivityConfig{
			IdleAfter: 30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		DevServer: DevServerConfig{
			Addr:            ":8787",
			Pages:           3,
			ProblemsPerPage: 4,
		},
	}
}

// NewViper returns a viper instance seeded with DefaultConfig and wired to
// MATHDRILL_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.token", d.Server.Token)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.requests_per_second", d.Server.RequestsPerSecond)
	v.SetDefault("server.burst", d.Server.Burst)

	v.SetDefault("autosave.delay", d.Autosave.Delay)
	v.SetDefault("autosave.max_attempts", d.Autosave.MaxAttempts)
	v.SetDefault("autosave.initial_wait", d.Autosave.InitialWait)
	v.SetDefault("autosave.max_wait", d.Autosave.MaxWait)
	v.SetDefault("autosave.multiplier", d.Autosave.Multiplier)

	v.SetDefault("inactivity.idle_after", d.Inactivity.IdleAfter)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("devserver.addr", d.DevServer.Addr)
	v.SetDefault("devserver.pages", d.DevServer.Pages)
	v.SetDefault("devserver.problems_per_page", d.DevServer.ProblemsPerPage)

	v.SetDefault("db", d.DB)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	} else if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("server.base_url must be an http(s) URL, got %q", c.Server.BaseURL))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, errors.New("server.timeout must not be negative"))
	}
	if c.Autosave.Delay <= 0 {
		errs = append(errs, errors.New("autosave.delay must be positive"))
	}
	if c.Autosave.MaxAttempts < 1 {
		errs = append(errs, errors.New("autosave.max_attempts must be at least 1"))
	}
	if c.Autosave.Multiplier < 1 {
		errs = append(errs, errors.New("autosave.multiplier must be at least 1"))
	}
	if c.Inactivity.IdleAfter <= 0 {
		errs = append(errs, errors.New("inactivity.idle_after must be positive"))
	}
	if c.DevServer.Pages < 1 || c.DevServer.ProblemsPerPage < 1 {
		errs = append(errs, errors.New("devserver.pages and devserver.problems_per_page must be at least 1"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// DeliveryConfig returns the HTTP client settings.
func (c *Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		BaseURL:           c.Server.BaseURL,
		Token:             c.Server.Token,
		Timeout:           c.Server.Timeout,
		RequestsPerSecond: c.Server.RequestsPerSecond,
		Burst:             c.Server.Burst,
	}
}

// RetryConfig returns the autosave retry policy.
func (c *Config) RetryConfig() autosave.RetryConfig {
	return autosave.RetryConfig{
		MaxAttempts: c.Autosave.MaxAttempts,
		InitialWait: c.Autosave.InitialWait,
		MaxWait:     c.Autosave.MaxWait,
		Multiplier:  c.Autosave.Multiplier,
	}
}
