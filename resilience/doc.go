// Package resilience guards the avatar service's expensive or fallible work.
//
//   - Bulkhead caps concurrent renders so CPU-bound rasterization cannot
//     starve the server.
//   - Timeout bounds a single render.
//   - CircuitBreaker suspends cache persistence after repeated disk failures
//     and probes again after a cooldown.
//   - RateLimiter is a token bucket applied to the public avatar routes.
//
// Patterns compose through an Executor:
//
//	guard := resilience.NewExecutor(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
//	        MaxConcurrent: 8,
//	        MaxWait:       250 * time.Millisecond,
//	    })),
//	    resilience.WithTimeout(2*time.Second),
//	)
//
//	err := guard.Execute(ctx, func(ctx context.Context) error {
//	    data, err = renderer.Render(ctx, name, size, nil, nil)
//	    return err
//	})
package resilience
