// Package server exposes the avatar service over HTTP.
//
// Routes:
//
//	GET /        project metadata as JSON
//	GET /api/    the avatar as image/png
//	GET /raw/    the avatar as a text/plain data URI
//	GET /healthz, /readyz, /health
//	GET /metrics Prometheus scrape, when the prometheus exporter is on
//
// /health and /metrics sit behind the configured operator credentials.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/jonwraymond/dhivatar/auth"
	"github.com/jonwraymond/dhivatar/avatar"
	"github.com/jonwraymond/dhivatar/config"
	"github.com/jonwraymond/dhivatar/health"
	"github.com/jonwraymond/dhivatar/observe"
	"github.com/jonwraymond/dhivatar/resilience"
)

// ErrNilService is returned by New without a service.
var ErrNilService = errors.New("server: service is required")

// Options wires a Server. Only Service is required.
type Options struct {
	Service *avatar.Service

	// Project is served at GET /.
	Project config.ProjectConfig

	// DefaultSize applies when the size parameter is absent.
	DefaultSize int

	// RateLimiter throttles /api/ and /raw/.
	RateLimiter *resilience.RateLimiter

	// Health backs the health routes. Nil registers an empty aggregator.
	Health *health.Aggregator

	// Authenticator guards /health and /metrics. Nil leaves them open.
	Authenticator auth.Authenticator

	// Middleware instruments every route.
	Middleware *observe.Middleware

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	Logger observe.Logger
}

// Server routes HTTP requests to the avatar service.
type Server struct {
	svc         *avatar.Service
	project     config.ProjectConfig
	defaultSize int
	limiter     *resilience.RateLimiter
	logger      observe.Logger
	handler     http.Handler
}

// New builds the route table.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, ErrNilService
	}
	s := &Server{
		svc:         opts.Service,
		project:     opts.Project,
		defaultSize: opts.DefaultSize,
		limiter:     opts.RateLimiter,
		logger:      opts.Logger,
	}
	if s.defaultSize <= 0 {
		s.defaultSize = avatar.DefaultSize
	}
	if s.logger == nil {
		s.logger = observe.NewNoopLogger()
	}
	s.logger = s.logger.With(observe.Field{Key: "component", Value: "server"})

	mw := opts.Middleware
	if mw == nil {
		mw = observe.NewMiddleware(observe.NewNoopTracer(), observe.NewNoopMetrics(), observe.NewNoopLogger())
	}
	agg := opts.Health
	if agg == nil {
		agg = health.NewAggregator(health.AggregatorConfig{})
	}
	guard := auth.Require(opts.Authenticator)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", mw.Wrap("/", http.HandlerFunc(s.home)))
	mux.Handle("GET /api/{$}", mw.Wrap("/api/", s.limit(http.HandlerFunc(s.image))))
	mux.Handle("GET /raw/{$}", mw.Wrap("/raw/", s.limit(http.HandlerFunc(s.raw))))
	health.RegisterHandlers(mux, agg, guard)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", guard(opts.MetricsHandler))
	}

	s.handler = s.recovery(mux)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.project)
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	res, ok := s.serve(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *Server) raw(w http.ResponseWriter, r *http.Request) {
	res, ok := s.serve(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(DataURI(res.Data)))
}

// DataURI encodes a PNG as a data: URI.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// serve runs the shared avatar path and writes the error response on
// failure.
func (s *Server) serve(w http.ResponseWriter, r *http.Request) (avatar.Result, bool) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	req, err := s.parseRequest(r)
	if err == nil {
		var res avatar.Result
		res, err = s.svc.Avatar(r.Context(), req)
		if err == nil {
			w.Header().Set(observe.CacheHeader, res.CacheStatus())
			w.Header().Set("Cache-Control", "public, max-age=86400")
			return res, true
		}
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "avatar failed", observe.Field{Key: "error", Value: err.Error()})
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, messageFor(status, err))
	return avatar.Result{}, false
}

func (s *Server) parseRequest(r *http.Request) (avatar.Request, error) {
	q := r.URL.Query()
	req := avatar.Request{Name: q.Get("name"), Size: s.defaultSize}

	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, ErrBadSize
		}
		req.Size = n
	}

	var err error
	if req.Background, err = avatar.ResolveColor(q.Get("background")); err != nil {
		return req, err
	}
	if req.Foreground, err = avatar.ResolveColor(q.Get("color")); err != nil {
		return req, err
	}
	return req, nil
}

// limit admits requests through the rate limiter, queueing them when it is
// configured to wait.
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.limiter.Execute(r.Context(), func(context.Context) error {
			next.ServeHTTP(w, r)
			return nil
		})
		if err != nil {
			w.Header().Set("Retry-After", "1")
			writeError(w, statusFor(resilience.ErrRateLimitExceeded), messageFor(http.StatusTooManyRequests, nil))
		}
	})
}

// recovery turns a handler panic into a 500.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error(r.Context(), "handler panic",
					observe.Field{Key: "path", Value: r.URL.Path},
					observe.Field{Key: "panic", Value: v},
				)
				writeError(w, http.StatusInternalServerError, messageFor(http.StatusInternalServerError, nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
