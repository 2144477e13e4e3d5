package cache

import (
	"errors"
	"fmt"
	"slices"
)

// Policy sizing defaults.
const (
	DefaultMaxSize = 1000
)

// DefaultBuckets are the sizes provisioned for caching by default.
var DefaultBuckets = []int{64, 150, 200, 300}

// Sentinel errors for size classification.
var (
	ErrInvalidSize  = errors.New("cache: size must be positive")
	ErrSizeTooLarge = errors.New("cache: size exceeds maximum")

	// ErrInvalidPolicy is returned by Policy.Validate.
	ErrInvalidPolicy = errors.New("cache: invalid policy")
)

// OverflowMode selects what happens to sizes above Policy.MaxSize.
type OverflowMode string

const (
	// OverflowDowngrade renders at the renderer's default size instead.
	OverflowDowngrade OverflowMode = "downgrade"
	// OverflowReject fails classification with ErrSizeTooLarge.
	OverflowReject OverflowMode = "reject"
)

// Kind is the outcome of classifying a request size.
type Kind int

const (
	// Cacheable requests are served from and filled into the store.
	Cacheable Kind = iota
	// GenerateOnly requests are rendered at the requested size and never stored.
	GenerateOnly
	// GenerateDefault requests are rendered at the renderer's default size.
	GenerateDefault
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Cacheable:
		return "cacheable"
	case GenerateOnly:
		return "generate_only"
	case GenerateDefault:
		return "generate_default"
	default:
		return "unknown"
	}
}

// Decision is the result of Policy.Classify.
type Decision struct {
	Kind Kind
	// Size is the bucket for Cacheable, the render size for GenerateOnly,
	// and zero (renderer default) for GenerateDefault.
	Size int
}

// Policy configures which requests are cached and how sizes are bounded.
// A Policy is read-only after construction.
type Policy struct {
	// Enabled turns the store on. When false every request is GenerateOnly.
	Enabled bool

	// Buckets are the declared cacheable sizes.
	Buckets []int

	// MaxSize is the largest size rendered as requested.
	MaxSize int

	// Overflow decides the fate of sizes above MaxSize.
	Overflow OverflowMode
}

// DefaultPolicy returns the default caching policy.
// Enabled, buckets 64/150/200/300, MaxSize 1000, oversize downgraded.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:  true,
		Buckets:  slices.Clone(DefaultBuckets),
		MaxSize:  DefaultMaxSize,
		Overflow: OverflowDowngrade,
	}
}

// NoCachePolicy returns a policy that never caches.
func NoCachePolicy() Policy {
	p := DefaultPolicy()
	p.Enabled = false
	return p
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidPolicy, p.MaxSize)
	}
	for _, b := range p.Buckets {
		if b <= 0 || b > p.MaxSize {
			return fmt.Errorf("%w: bucket %d outside (0, %d]", ErrInvalidPolicy, b, p.MaxSize)
		}
	}
	switch p.Overflow {
	case OverflowDowngrade, OverflowReject, "":
	default:
		return fmt.Errorf("%w: unknown overflow mode %q", ErrInvalidPolicy, p.Overflow)
	}
	return nil
}

// IsBucket reports whether size is a declared bucket.
func (p Policy) IsBucket(size int) bool {
	return slices.Contains(p.Buckets, size)
}

// Classify decides how a request for size is served.
// Requests carrying a color override are never cacheable because colors are
// not part of the cache key.
func (p Policy) Classify(size int, hasOverride bool) (Decision, error) {
	if size <= 0 {
		return Decision{}, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	if p.Enabled && !hasOverride && p.IsBucket(size) {
		return Decision{Kind: Cacheable, Size: size}, nil
	}

	if size <= p.MaxSize {
		return Decision{Kind: GenerateOnly, Size: size}, nil
	}

	if p.Overflow == OverflowReject {
		return Decision{}, fmt.Errorf("%w: %d > %d", ErrSizeTooLarge, size, p.MaxSize)
	}
	return Decision{Kind: GenerateDefault}, nil
}
