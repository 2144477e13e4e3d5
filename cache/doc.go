// Package cache provides the request-keyed avatar store.
//
// It provides a Store interface with disk (go-billy) and memory
// implementations, MD5-based key derivation, a size Policy that decides which
// requests may be cached, and a Filler that serves hits and fills misses with
// a per-key single-flight guard.
//
// The store is append-only: entries are never updated in place and never
// evicted, so the cache directory grows without bound.
package cache
