// Package health reports whether the avatar service can do its job.
//
// A Checker reports one component's Status. The Aggregator runs a set of
// checkers with a shared deadline and folds them into one Status, and the
// HTTP handlers expose that status for liveness and readiness probes and for
// operators.
//
// # Checkers
//
//   - StoreChecker probes the cache store for writability and reports its
//     usage, degrading once it grows past a configured size.
//   - MemoryChecker reports heap usage against a budget.
//   - NewCheckerFunc adapts any function, which the server uses for the
//     render bulkhead and the cache write circuit.
//
// # HTTP Endpoints
//
//	health.RegisterHandlers(mux, agg, nil)
//
// registers /healthz (always OK while the process serves), /readyz
// (plain-text aggregate) and /health (JSON detail).
package health
