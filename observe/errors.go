package observe

import (
	"errors"

	"github.com/jonwraymond/dhivatar/observe/exporters"
)

// Configuration errors returned by Config.Validate.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
)

// ErrNilObserver is returned when an Observer is required but nil.
var ErrNilObserver = errors.New("observe: observer is nil")

// ErrEndpointNotConfigured indicates a required exporter endpoint
// environment variable is not set.
var ErrEndpointNotConfigured = exporters.ErrEndpointNotConfigured

type nameSet map[string]struct{}

func newNameSet(names ...string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

var (
	tracingExporters = newNameSet("", "none", "stdout", "otlp", "jaeger")
	metricsExporters = newNameSet("", "none", "stdout", "otlp", "prometheus")
	logLevels        = newNameSet("", "debug", "info", "warn", "error")
)
