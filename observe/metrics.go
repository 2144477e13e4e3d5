package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricRequests      = "avatar.http.requests"
	MetricRequestMillis = "avatar.http.duration_ms"
	MetricCacheOutcomes = "avatar.cache.outcomes"
	MetricCacheErrors   = "avatar.cache.errors"
	MetricRenders       = "avatar.render.total"
	MetricRenderErrors  = "avatar.render.errors"
	MetricRenderMillis  = "avatar.render.duration_ms"
)

// Metrics records avatar service metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records one served HTTP request.
	RecordRequest(ctx context.Context, route string, status int, duration time.Duration)

	// RecordOutcome records how a request used the cache: hit, miss or bypass.
	RecordOutcome(ctx context.Context, outcome string)

	// RecordRender records one renderer invocation.
	RecordRender(ctx context.Context, duration time.Duration, err error)

	// RecordCacheError records a degraded cache operation (exists, read, write).
	RecordCacheError(ctx context.Context, op string)
}

type metricsImpl struct {
	requests      metric.Int64Counter
	requestMillis metric.Float64Histogram
	outcomes      metric.Int64Counter
	cacheErrors   metric.Int64Counter
	renders       metric.Int64Counter
	renderErrors  metric.Int64Counter
	renderMillis  metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.requests, err = meter.Int64Counter(MetricRequests,
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.requestMillis, err = meter.Float64Histogram(MetricRequestMillis,
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.outcomes, err = meter.Int64Counter(MetricCacheOutcomes,
		metric.WithDescription("Avatar requests by cache outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.cacheErrors, err = meter.Int64Counter(MetricCacheErrors,
		metric.WithDescription("Cache store failures served around"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.renders, err = meter.Int64Counter(MetricRenders,
		metric.WithDescription("Total number of avatar renders"),
		metric.WithUnit("{render}"),
	); err != nil {
		return nil, err
	}
	if m.renderErrors, err = meter.Int64Counter(MetricRenderErrors,
		metric.WithDescription("Total number of failed avatar renders"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.renderMillis, err = meter.Float64Histogram(MetricRenderMillis,
		metric.WithDescription("Avatar render duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.status_code", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, opt)
	m.requestMillis.Record(ctx, millis(duration), opt)
}

func (m *metricsImpl) RecordOutcome(ctx context.Context, outcome string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.outcome", outcome)))
}

func (m *metricsImpl) RecordRender(ctx context.Context, duration time.Duration, err error) {
	m.renders.Add(ctx, 1)
	if err != nil {
		m.renderErrors.Add(ctx, 1)
	}
	m.renderMillis.Record(ctx, millis(duration))
}

func (m *metricsImpl) RecordCacheError(ctx context.Context, op string) {
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.op", op)))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type noopMetrics struct{}

// NewNoopMetrics returns Metrics that records nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordRequest(context.Context, string, int, time.Duration) {}
func (noopMetrics) RecordOutcome(context.Context, string)                     {}
func (noopMetrics) RecordRender(context.Context, time.Duration, error)        {}
func (noopMetrics) RecordCacheError(context.Context, string)                  {}
