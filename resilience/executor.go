package resilience

import (
	"context"
	"time"
)

// Guard runs an operation under some protection.
// Every pattern in this package, and Executor itself, is a Guard.
type Guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

var (
	_ Guard = (*Executor)(nil)
	_ Guard = (*Bulkhead)(nil)
	_ Guard = (*Timeout)(nil)
	_ Guard = (*CircuitBreaker)(nil)
	_ Guard = (*RateLimiter)(nil)
)

// Executor composes resilience patterns.
type Executor struct {
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
// An Executor with no options runs operations directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithTimeout adds a timeout to the executor. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
		}
	}
}

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead { return e.bulkhead }

// CircuitBreaker returns the configured circuit breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// Execute runs op through the configured patterns, outermost first:
// bulkhead, circuit breaker, timeout.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		execute = wrap(e.timeout, execute)
	}
	if e.circuitBreaker != nil {
		execute = wrap(e.circuitBreaker, execute)
	}
	if e.bulkhead != nil {
		execute = wrap(e.bulkhead, execute)
	}

	return execute(ctx)
}

func wrap(g Guard, inner func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return g.Execute(ctx, inner)
	}
}
