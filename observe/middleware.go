package observe

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// CacheHeader is the response header carrying the cache outcome.
const CacheHeader = "X-Avatar-Cache"

// Middleware wraps HTTP handlers with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap returns a handler safe for concurrent use.
//   - Context: the request context carries the route span.
//   - Errors: responses are passed through unchanged; 5xx marks the span failed.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap instruments next under the given route name.
func (m *Middleware) Wrap(route string, next http.Handler) http.Handler {
	routeLogger := m.logger.With(Field{Key: "route", Value: route})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.tracer.StartSpan(r.Context(), "http "+route,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		duration := time.Since(start)

		var err error
		if rec.status >= http.StatusInternalServerError {
			err = fmt.Errorf("http status %d", rec.status)
		}
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		m.tracer.EndSpan(span, err)

		m.metrics.RecordRequest(ctx, route, rec.status, duration)

		fields := []Field{
			{Key: "method", Value: r.Method},
			{Key: "status", Value: rec.status},
			{Key: "bytes", Value: rec.bytes},
			{Key: "duration_ms", Value: millis(duration)},
		}
		if c := rec.Header().Get(CacheHeader); c != "" {
			fields = append(fields, Field{Key: "cache", Value: c})
		}

		switch {
		case err != nil:
			routeLogger.Error(ctx, "request failed", fields...)
		case rec.status >= http.StatusBadRequest:
			routeLogger.Warn(ctx, "request rejected", fields...)
		default:
			routeLogger.Info(ctx, "request completed", fields...)
		}
	})
}

// MiddlewareFromObserver creates a Middleware from an Observer along with
// the Metrics it records into, so callers can share one instrument set.
func MiddlewareFromObserver(obs Observer) (*Middleware, Metrics, error) {
	if obs == nil {
		return nil, nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), metrics, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
