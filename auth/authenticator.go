package auth

import (
	"context"
	"net/http"
)

// Authenticator validates credentials and returns an identity.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Authenticate returns (nil, error) for internal errors and
//     (Result, nil) for rejected credentials; check Result.Authenticated.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Supports reports whether the request carries this authenticator's
	// kind of credential.
	Supports(req *http.Request) bool

	// Authenticate validates the request's credentials.
	Authenticate(ctx context.Context, req *http.Request) (*Result, error)
}

// Result is the outcome of an authentication attempt.
type Result struct {
	// Authenticated is true if authentication succeeded.
	Authenticated bool

	// Identity is set when Authenticated is true.
	Identity *Identity

	// Error is set when Authenticated is false.
	Error error

	// Method names the authenticator that decided.
	Method string
}

// Success creates a successful authentication result.
func Success(identity *Identity) *Result {
	return &Result{
		Authenticated: true,
		Identity:      identity,
		Method:        string(identity.Method),
	}
}

// Failure creates a failed authentication result.
func Failure(err error, method string) *Result {
	return &Result{Error: err, Method: method}
}

// Chain tries authenticators in order. The first one that supports the
// request decides; a request no authenticator supports is rejected with
// ErrMissingCredentials.
type Chain []Authenticator

// Name returns "chain".
func (c Chain) Name() string {
	return "chain"
}

// Supports reports whether any authenticator supports the request.
func (c Chain) Supports(req *http.Request) bool {
	for _, a := range c {
		if a.Supports(req) {
			return true
		}
	}
	return false
}

// Authenticate delegates to the first authenticator that supports req.
func (c Chain) Authenticate(ctx context.Context, req *http.Request) (*Result, error) {
	for _, a := range c {
		if a.Supports(req) {
			return a.Authenticate(ctx, req)
		}
	}
	return Failure(ErrMissingCredentials, ""), nil
}

var _ Authenticator = Chain(nil)
