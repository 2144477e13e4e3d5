package avatar

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonwraymond/dhivatar/cache"
	"github.com/jonwraymond/dhivatar/observe"
	"github.com/jonwraymond/dhivatar/resilience"
)

// DefaultMaxNameLength bounds names, in runes. Thaana spends two runes on a
// letter with its vowel sign, so this leaves room for long full names.
const DefaultMaxNameLength = 256

// Config wires a Service.
type Config struct {
	// Policy decides which requests use the cache. It is copied.
	Policy cache.Policy

	// Store holds cached entries. Required when Policy.Enabled.
	Store cache.Store

	// Renderer produces images. Required.
	Renderer Renderer

	// Keyer derives cache keys. Defaults to cache.MD5Keyer.
	Keyer cache.Keyer

	// DisableSingleFlight lets concurrent misses for one key render
	// independently.
	DisableSingleFlight bool

	// MaxNameLength bounds names in runes. Defaults to DefaultMaxNameLength.
	MaxNameLength int

	// RenderGuard wraps every render, typically a bulkhead plus timeout.
	RenderGuard resilience.Guard

	// WriteGuard wraps every cache write, typically a circuit breaker.
	WriteGuard resilience.Guard

	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer
}

// Service serves avatars through the cache policy.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: validation errors (ErrInvalidName, cache.ErrInvalidSize,
//     cache.ErrSizeTooLarge) are returned before any work. Render failures
//     wrap ErrRender. Cache store failures never fail a request.
type Service struct {
	policy        cache.Policy
	keyer         cache.Keyer
	filler        *cache.Filler
	renderer      Renderer
	renderGuard   resilience.Guard
	maxNameLength int

	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Renderer == nil {
		return nil, ErrNilRenderer
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		policy:        cfg.Policy,
		keyer:         cfg.Keyer,
		renderer:      cfg.Renderer,
		renderGuard:   cfg.RenderGuard,
		maxNameLength: cfg.MaxNameLength,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
	}
	if s.keyer == nil {
		s.keyer = cache.NewMD5Keyer()
	}
	if s.renderGuard == nil {
		s.renderGuard = resilience.NewExecutor()
	}
	if s.maxNameLength <= 0 {
		s.maxNameLength = DefaultMaxNameLength
	}
	if s.logger == nil {
		s.logger = observe.NewNoopLogger()
	}
	s.logger = s.logger.With(observe.Field{Key: "component", Value: "avatar"})
	if s.metrics == nil {
		s.metrics = observe.NewNoopMetrics()
	}
	if s.tracer == nil {
		s.tracer = observe.NewNoopTracer()
	}

	if cfg.Policy.Enabled {
		opts := []cache.FillerOption{
			cache.WithSingleFlight(!cfg.DisableSingleFlight),
			cache.WithErrorHandler(s.cacheDegraded),
		}
		if cfg.WriteGuard != nil {
			opts = append(opts, cache.WithWriteGuard(cfg.WriteGuard))
		}
		f, err := cache.NewFiller(cfg.Store, opts...)
		if err != nil {
			return nil, err
		}
		s.filler = f
	}

	return s, nil
}

// Policy returns the service's cache policy.
func (s *Service) Policy() cache.Policy {
	return s.policy
}

// Avatar serves one avatar.
//
// Cacheable requests are read from the store or rendered and persisted.
// Everything else is rendered directly with the requested colors.
func (s *Service) Avatar(ctx context.Context, req Request) (Result, error) {
	ctx, span := s.tracer.StartSpan(ctx, "avatar.request",
		attribute.Int("avatar.size", req.Size),
		attribute.Bool("avatar.override", req.HasOverride()),
	)

	res, err := s.serve(ctx, req)
	if err == nil {
		status := res.CacheStatus()
		span.SetAttributes(attribute.String("avatar.cache", status))
		s.metrics.RecordOutcome(ctx, status)
		s.logger.Debug(ctx, "avatar served",
			observe.Field{Key: "size", Value: req.Size},
			observe.Field{Key: "cache", Value: status},
			observe.Field{Key: "path", Value: res.Path},
			observe.Field{Key: "bytes", Value: len(res.Data)},
		)
	}
	s.tracer.EndSpan(span, err)
	return res, err
}

func (s *Service) serve(ctx context.Context, req Request) (Result, error) {
	if err := s.validateName(req.Name); err != nil {
		return Result{}, err
	}

	d, err := s.policy.Classify(req.Size, req.HasOverride())
	if err != nil {
		return Result{}, err
	}

	if d.Kind != cache.Cacheable || s.filler == nil {
		data, err := s.render(ctx, req.Name, d.Size, req.Background, req.Foreground)
		if err != nil {
			return Result{}, err
		}
		return Result{Source: SourceGenerated, Data: data, Size: d.Size}, nil
	}

	key := s.keyer.Key(req.Name, d.Size)
	entry, err := s.filler.Fill(ctx, d.Size, key, func(ctx context.Context) ([]byte, error) {
		return s.render(ctx, req.Name, d.Size, nil, nil)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Source: SourceGenerated, Path: entry.Path, Data: entry.Data, Size: d.Size}
	if entry.Hit {
		res.Source = SourceCache
	}
	return res, nil
}

func (s *Service) render(ctx context.Context, name string, size int, bg, fg *RGB) ([]byte, error) {
	ctx, span := s.tracer.StartSpan(ctx, "avatar.render", attribute.Int("avatar.size", size))
	start := time.Now()

	var data []byte
	err := s.renderGuard.Execute(ctx, func(ctx context.Context) error {
		out, err := s.renderer.Render(ctx, name, size, bg, fg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRender, err)
		}
		data = out
		return nil
	})

	s.metrics.RecordRender(ctx, time.Since(start), err)
	s.tracer.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Service) validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidName)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidName)
	case utf8.RuneCountInString(name) > s.maxNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, s.maxNameLength)
	}
	return nil
}

// cacheDegraded is the Filler's error handler.
func (s *Service) cacheDegraded(ctx context.Context, op string, err error) {
	s.metrics.RecordCacheError(ctx, op)
	s.logger.Warn(ctx, "cache degraded",
		observe.Field{Key: "op", Value: op},
		observe.Field{Key: "error", Value: err.Error()},
	)
}
