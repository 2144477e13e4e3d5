package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/dhivatar/auth"
	"github.com/jonwraymond/dhivatar/avatar"
	"github.com/jonwraymond/dhivatar/cache"
	"github.com/jonwraymond/dhivatar/config"
	"github.com/jonwraymond/dhivatar/health"
	"github.com/jonwraymond/dhivatar/observe"
	"github.com/jonwraymond/dhivatar/resilience"
)

// OpenStore opens the store cfg selects.
func OpenStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return cache.NewMemoryStore(cfg.Buckets), nil
	default:
		return cache.OpenDiskStore(cfg.Dir, cfg.Buckets)
	}
}

// NewRenderer builds the glyph renderer cfg describes, loading a custom font
// when one is configured.
func NewRenderer(cfg config.Config) (*avatar.GlyphRenderer, error) {
	gc := avatar.GlyphConfig{
		DefaultSize: cfg.Server.DefaultSize,
		Saturation:  cfg.Render.Saturation,
		Lightness:   cfg.Render.Lightness,
	}
	if cfg.Render.FontPath != "" {
		data, err := os.ReadFile(cfg.Render.FontPath)
		if err != nil {
			return nil, fmt.Errorf("server: load font: %w", err)
		}
		gc.FontData = data
	}
	return avatar.NewGlyphRenderer(gc)
}

// Build assembles a Server from configuration and an Observer.
func Build(cfg config.Config, obs observe.Observer) (*Server, error) {
	if obs == nil {
		return nil, observe.ErrNilObserver
	}
	mw, metrics, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, err
	}
	logger := obs.Logger()

	renderer, err := NewRenderer(cfg)
	if err != nil {
		return nil, err
	}

	renderGuard := resilience.NewExecutor(
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.Render.MaxConcurrent,
			MaxWait:       cfg.Render.MaxWait,
		})),
		resilience.WithTimeout(cfg.Render.Timeout),
	)

	agg := health.NewAggregator(health.AggregatorConfig{})
	agg.Register(renderChecker(renderGuard.Bulkhead()))
	agg.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))

	svcCfg := avatar.Config{
		Policy:              cfg.Cache.Policy(),
		Renderer:            renderer,
		DisableSingleFlight: !cfg.Cache.SingleFlight,
		MaxNameLength:       cfg.Server.MaxNameLength,
		RenderGuard:         renderGuard,
		Logger:              logger,
		Metrics:             metrics,
		Tracer:              observe.NewTracer(obs.Tracer()),
	}
	if cfg.Cache.Enabled {
		store, err := OpenStore(cfg.Cache)
		if err != nil {
			return nil, err
		}
		svcCfg.Store = store
		if inspector, ok := store.(cache.Inspector); ok {
			agg.Register(health.NewStoreChecker(inspector, health.StoreCheckerConfig{WarnBytes: cfg.Cache.WarnBytes}))
		}
		if writeGuard := newWriteGuard(cfg.Cache, logger); writeGuard != nil {
			svcCfg.WriteGuard = writeGuard
			if breaker := writeGuard.CircuitBreaker(); breaker != nil {
				agg.Register(breakerChecker(breaker))
			}
		}
	}

	svc, err := avatar.NewService(svcCfg)
	if err != nil {
		return nil, err
	}

	authn, err := auth.New(cfg.Auth)
	if err != nil {
		return nil, err
	}

	var limiter *resilience.RateLimiter
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:        rl.Rate,
			Burst:       rl.Burst,
			WaitOnLimit: rl.MaxWait > 0,
			MaxWait:     rl.MaxWait,
		})
	}

	return New(Options{
		Service:        svc,
		Project:        cfg.Project,
		DefaultSize:    cfg.Server.DefaultSize,
		RateLimiter:    limiter,
		Health:         agg,
		Authenticator:  authn,
		Middleware:     mw,
		MetricsHandler: obs.MetricsHandler(),
		Logger:         logger,
	})
}

// newWriteGuard wraps cache writes in the write breaker and write timeout.
// It returns nil when neither is configured.
func newWriteGuard(cfg config.CacheConfig, logger observe.Logger) *resilience.Executor {
	var opts []resilience.ExecutorOption
	if b := cfg.WriteBreaker; b.Enabled {
		opts = append(opts, resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn(context.Background(), "cache write circuit changed",
					observe.Field{Key: "from", Value: from.String()},
					observe.Field{Key: "to", Value: to.String()},
				)
			},
		})))
	}
	if cfg.WriteTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(cfg.WriteTimeout))
	}
	if len(opts) == 0 {
		return nil
	}
	return resilience.NewExecutor(opts...)
}

// renderChecker reports degraded while every render slot is taken.
func renderChecker(b *resilience.Bulkhead) health.Checker {
	return health.NewCheckerFunc("render", func(context.Context) health.Result {
		m := b.Metrics()
		details := map[string]any{
			"active":     m.Active,
			"max_active": m.MaxActive,
			"capacity":   m.MaxConcurrent,
			"rejected":   humanize.Comma(m.Rejected),
		}
		if m.Available <= 0 {
			return health.Degraded("all render slots in use").WithDetails(details)
		}
		return health.Healthy(fmt.Sprintf("%d of %d render slots free", m.Available, m.MaxConcurrent)).WithDetails(details)
	})
}

// breakerChecker reports degraded while cache writes are being skipped.
func breakerChecker(cb *resilience.CircuitBreaker) health.Checker {
	return health.NewCheckerFunc("cache_writes", func(context.Context) health.Result {
		m := cb.Metrics()
		details := map[string]any{
			"state":    m.State.String(),
			"failures": m.Failures,
		}
		if !m.LastFailure.IsZero() {
			details["last_failure"] = humanize.RelTime(m.LastFailure, time.Now(), "ago", "from now")
		}
		if m.State != resilience.StateClosed {
			return health.Degraded("cache writes suspended").WithDetails(details)
		}
		return health.Healthy("cache writes flowing").WithDetails(details)
	})
}
