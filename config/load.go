package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonwraymond/dhivatar/secret"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DHIVATAR"

// Options tune Load.
type Options struct {
	// File is an explicit config file. Empty searches for dhivatar.yaml in
	// the working directory and /etc/dhivatar, and tolerates its absence.
	File string

	// Resolver resolves credential references. Default: secret.DefaultResolver.
	Resolver *secret.Resolver

	// Flags maps config keys to command-line flags. A flag overrides the
	// file and the environment only when it was set.
	Flags map[string]*pflag.Flag
}

// Load reads, resolves and validates the configuration.
func Load(ctx context.Context, opts Options) (Config, string, error) {
	v := viper.New()
	setDefaults(v, Default())

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("dhivatar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dhivatar")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, "", fmt.Errorf("config: bind flag %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("config: decode: %w", err)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = secret.DefaultResolver()
	}
	if err := cfg.resolve(ctx, resolver); err != nil {
		return Config{}, "", err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// resolve expands paths and resolves credentials in place.
func (c *Config) resolve(ctx context.Context, r *secret.Resolver) error {
	var err error
	if c.Cache.Dir, err = secret.ExpandEnvStrict(c.Cache.Dir); err != nil {
		return fmt.Errorf("config: cache.dir: %w", err)
	}
	if c.Render.FontPath, err = secret.ExpandEnvStrict(c.Render.FontPath); err != nil {
		return fmt.Errorf("config: render.font_path: %w", err)
	}
	if c.Auth.JWTSecret != "" {
		if c.Auth.JWTSecret, err = r.ResolveValue(ctx, c.Auth.JWTSecret); err != nil {
			return fmt.Errorf("config: auth.jwt_secret: %w", err)
		}
	}
	if c.Auth.APIKeys, err = r.ResolveMap(ctx, c.Auth.APIKeys); err != nil {
		return fmt.Errorf("config: auth.api_keys: %w", err)
	}
	return nil
}

// setDefaults registers every leaf of d so that environment overrides apply
// to keys absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("project.app", d.Project.App)
	v.SetDefault("project.description", d.Project.Description)
	v.SetDefault("project.version", d.Project.Version)
	v.SetDefault("project.project", d.Project.Project)
	v.SetDefault("project.docs", d.Project.Docs)
	v.SetDefault("project.examples", d.Project.Examples)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.default_size", d.Server.DefaultSize)
	v.SetDefault("server.max_name_length", d.Server.MaxNameLength)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.rate", d.Server.RateLimit.Rate)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("server.rate_limit.max_wait", d.Server.RateLimit.MaxWait)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.buckets", d.Cache.Buckets)
	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("cache.overflow", d.Cache.Overflow)
	v.SetDefault("cache.single_flight", d.Cache.SingleFlight)
	v.SetDefault("cache.warn_bytes", d.Cache.WarnBytes)
	v.SetDefault("cache.write_breaker.enabled", d.Cache.WriteBreaker.Enabled)
	v.SetDefault("cache.write_breaker.max_failures", d.Cache.WriteBreaker.MaxFailures)
	v.SetDefault("cache.write_breaker.reset_timeout", d.Cache.WriteBreaker.ResetTimeout)
	v.SetDefault("cache.write_timeout", d.Cache.WriteTimeout)

	v.SetDefault("render.max_concurrent", d.Render.MaxConcurrent)
	v.SetDefault("render.max_wait", d.Render.MaxWait)
	v.SetDefault("render.timeout", d.Render.Timeout)
	v.SetDefault("render.font_path", d.Render.FontPath)
	v.SetDefault("render.saturation", d.Render.Saturation)
	v.SetDefault("render.lightness", d.Render.Lightness)

	v.SetDefault("observe.service_name", d.Observe.ServiceName)
	v.SetDefault("observe.log_level", d.Observe.LogLevel)
	v.SetDefault("observe.tracing", d.Observe.Tracing)
	v.SetDefault("observe.sample_pct", d.Observe.SamplePct)
	v.SetDefault("observe.metrics", d.Observe.Metrics)

	v.SetDefault("auth.api_key_header", d.Auth.APIKeyHeader)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_issuer", d.Auth.JWTIssuer)
	v.SetDefault("auth.jwt_audience", d.Auth.JWTAudience)
}
