// Package observe provides the telemetry primitives used by the avatar
// service: an OpenTelemetry tracer and meter, a structured JSON logger and
// an HTTP middleware that traces, counts and logs every request.
//
// When the Prometheus exporter is selected, the Observer owns a dedicated
// registry and MetricsHandler serves it for the operator /metrics endpoint.
package observe
