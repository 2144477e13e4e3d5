// Package config loads the dhivatar server configuration.
//
// Values come from, in increasing precedence: Default, a YAML file, and
// DHIVATAR_-prefixed environment variables (DHIVATAR_CACHE_DIR sets
// cache.dir). Paths may reference ${VAR}; credentials may also be
// secretref: references.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/dhivatar/auth"
	"github.com/jonwraymond/dhivatar/avatar"
	"github.com/jonwraymond/dhivatar/cache"
	"github.com/jonwraymond/dhivatar/observe"
)

// Cache backends.
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
)

// Sentinel errors for configuration validation.
var (
	ErrMissingAddr         = errors.New("config: server.addr is required")
	ErrInvalidDefault      = errors.New("config: server.default_size out of range")
	ErrInvalidNameLen      = errors.New("config: server.max_name_length must be positive")
	ErrInvalidRate         = errors.New("config: server.rate_limit needs positive rate and burst")
	ErrInvalidWriteTimeout = errors.New("config: cache.write_timeout must not be negative")
	ErrUnknownBackend      = errors.New("config: unknown cache.backend")
	ErrMissingCacheDir     = errors.New("config: cache.dir is required for the disk backend")
	ErrInvalidRender       = errors.New("config: invalid render limits")
)

// Config is the complete server configuration.
type Config struct {
	Project ProjectConfig `mapstructure:"project"`
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Render  RenderConfig  `mapstructure:"render"`
	Observe ObserveConfig `mapstructure:"observe"`
	Auth    auth.Config   `mapstructure:"auth"`
}

// ProjectConfig is the metadata served at GET /.
type ProjectConfig struct {
	App         string   `mapstructure:"app" json:"app"`
	Description string   `mapstructure:"description" json:"description"`
	Version     string   `mapstructure:"version" json:"version"`
	Project     string   `mapstructure:"project" json:"project"`
	Docs        string   `mapstructure:"docs" json:"docs"`
	Examples    []string `mapstructure:"examples" json:"examples"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string          `mapstructure:"addr"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	DefaultSize     int             `mapstructure:"default_size"`
	MaxNameLength   int             `mapstructure:"max_name_length"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles the public avatar routes.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`

	// MaxWait queues a request for a token up to this long. Zero rejects
	// immediately.
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// CacheConfig configures the avatar cache.
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Backend      string        `mapstructure:"backend"`
	Dir          string        `mapstructure:"dir"`
	Buckets      []int         `mapstructure:"buckets"`
	MaxSize      int           `mapstructure:"max_size"`
	Overflow     string        `mapstructure:"overflow"`
	SingleFlight bool          `mapstructure:"single_flight"`
	WarnBytes    int64         `mapstructure:"warn_bytes"`
	WriteBreaker BreakerConfig `mapstructure:"write_breaker"`

	// WriteTimeout bounds one cache write. A write that overruns counts as a
	// failure against the write breaker. Zero disables the bound.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BreakerConfig configures the circuit around cache writes.
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// RenderConfig bounds and styles image generation.
type RenderConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FontPath      string        `mapstructure:"font_path"`
	Saturation    float64       `mapstructure:"saturation"`
	Lightness     float64       `mapstructure:"lightness"`
}

// ObserveConfig configures logging, tracing and metrics.
type ObserveConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	LogLevel    string  `mapstructure:"log_level"`
	Tracing     string  `mapstructure:"tracing"`
	SamplePct   float64 `mapstructure:"sample_pct"`
	Metrics     string  `mapstructure:"metrics"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Project: ProjectConfig{
			App:         "Dhivatars",
			Description: "Generate user avatar placeholders, but in Dhivehi!",
			Version:     "dev",
			Project:     "https://github.com/baivaru/dhivatar-http",
			Docs:        "https://dhivatars.baivaru.net/docs",
			Examples: []string{
				"https://dhivatars.baivaru.net/api/?name=%DE%84%DE%A6%DE%87%DE%A8%DE%88%DE%A6%DE%83%DE%AA&size=300&background=7e6b5c&color=872361",
			},
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			DefaultSize:     avatar.DefaultSize,
			MaxNameLength:   avatar.DefaultMaxNameLength,
			RateLimit:       RateLimitConfig{Rate: 50, Burst: 100},
		},
		Cache: CacheConfig{
			Enabled:      true,
			Backend:      BackendDisk,
			Dir:          "caches",
			Buckets:      slices.Clone(cache.DefaultBuckets),
			MaxSize:      cache.DefaultMaxSize,
			Overflow:     string(cache.OverflowDowngrade),
			SingleFlight: true,
			WriteBreaker: BreakerConfig{Enabled: true, MaxFailures: 5, ResetTimeout: 30 * time.Second},
			WriteTimeout: 2 * time.Second,
		},
		Render: RenderConfig{
			MaxConcurrent: 8,
			MaxWait:       250 * time.Millisecond,
			Timeout:       5 * time.Second,
			Saturation:    avatar.DefaultSaturation,
			Lightness:     avatar.DefaultLightness,
		},
		Observe: ObserveConfig{
			ServiceName: "dhivatar",
			LogLevel:    "info",
			Tracing:     "none",
			SamplePct:   1,
			Metrics:     "prometheus",
		},
	}
}

// Policy returns the cache policy the section describes.
func (c CacheConfig) Policy() cache.Policy {
	return cache.Policy{
		Enabled:  c.Enabled,
		Buckets:  slices.Clone(c.Buckets),
		MaxSize:  c.MaxSize,
		Overflow: cache.OverflowMode(c.Overflow),
	}
}

// Observer returns the observe configuration for version.
func (c ObserveConfig) Observer(version string) observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Tracing != "" && c.Tracing != "none",
			Exporter:  c.Tracing,
			SamplePct: c.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Metrics != "" && c.Metrics != "none",
			Exporter: c.Metrics,
		},
		Logging: observe.LoggingConfig{
			Enabled: c.LogLevel != "" && c.LogLevel != "off",
			Level:   c.LogLevel,
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	s := c.Server
	if s.Addr == "" {
		return ErrMissingAddr
	}
	if s.DefaultSize <= 0 || s.DefaultSize > c.Cache.MaxSize {
		return fmt.Errorf("%w: %d", ErrInvalidDefault, s.DefaultSize)
	}
	if s.MaxNameLength <= 0 {
		return ErrInvalidNameLen
	}
	if s.RateLimit.Enabled && (s.RateLimit.Rate <= 0 || s.RateLimit.Burst <= 0 || s.RateLimit.MaxWait < 0) {
		return ErrInvalidRate
	}

	switch c.Cache.Backend {
	case BackendDisk:
		if c.Cache.Enabled && c.Cache.Dir == "" {
			return ErrMissingCacheDir
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Cache.Backend)
	}
	if c.Cache.WriteTimeout < 0 {
		return ErrInvalidWriteTimeout
	}
	policy := c.Cache.Policy()
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("config: cache: %w", err)
	}

	r := c.Render
	if r.MaxConcurrent < 0 || r.MaxWait < 0 || r.Timeout < 0 {
		return ErrInvalidRender
	}
	if r.Saturation < 0 || r.Saturation > 1 || r.Lightness < 0 || r.Lightness > 1 {
		return fmt.Errorf("%w: saturation and lightness must be within [0, 1]", ErrInvalidRender)
	}

	obs := c.Observe.Observer(c.Project.Version)
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("config: observe: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
