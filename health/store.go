package health

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jonwraymond/dhivatar/cache"
)

// StoreCheckerConfig configures the cache store health checker.
type StoreCheckerConfig struct {
	// Name overrides the checker name. Default: "cache".
	Name string

	// WarnBytes reports degraded once the store holds more than this many
	// bytes. Zero disables the size warning.
	WarnBytes int64
}

// StoreChecker probes a cache store and reports its usage.
//
// A store that refuses the probe write is unhealthy. The service still
// answers in that state but every cacheable request renders afresh.
type StoreChecker struct {
	store  cache.Inspector
	config StoreCheckerConfig
}

// NewStoreChecker creates a checker over store.
func NewStoreChecker(store cache.Inspector, config StoreCheckerConfig) *StoreChecker {
	if config.Name == "" {
		config.Name = "cache"
	}
	return &StoreChecker{store: store, config: config}
}

// Name returns the configured checker name.
func (s *StoreChecker) Name() string {
	return s.config.Name
}

// Check probes the store, then totals its entries.
func (s *StoreChecker) Check(ctx context.Context) Result {
	if err := s.store.Probe(ctx); err != nil {
		return Unhealthy("cache store not writable", err)
	}

	usage, err := s.store.Usage(ctx)
	if err != nil {
		return Degraded("cache usage unavailable").WithDetails(map[string]any{
			"error": err.Error(),
		})
	}

	buckets := make(map[string]int, len(usage.Buckets))
	for size, n := range usage.Buckets {
		buckets[strconv.Itoa(size)] = n
	}
	details := map[string]any{
		"entries": humanize.Comma(int64(usage.Entries)),
		"bytes":   humanize.Bytes(uint64(max(usage.Bytes, 0))),
		"buckets": buckets,
	}

	if s.config.WarnBytes > 0 && usage.Bytes > s.config.WarnBytes {
		return Degraded(fmt.Sprintf("cache holds %s, above %s",
			humanize.Bytes(uint64(usage.Bytes)),
			humanize.Bytes(uint64(s.config.WarnBytes)),
		)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("cache holds %d entries", usage.Entries)).WithDetails(details)
}
