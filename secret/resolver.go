package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const refPrefix = "secretref:"

// Sentinel errors for reference resolution.
var (
	ErrUnknownProvider = errors.New("secret: provider not registered")
	ErrEmptySecret     = errors.New("secret: provider returned empty value")
	ErrMalformedRef    = errors.New("secret: malformed reference")
)

var lookupEnv = os.LookupEnv

// Resolver resolves secret references using registered providers.
//
// Values with the prefix "secretref:" are resolved via providers. Other
// values are returned after strict environment expansion.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver with the given providers.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// DefaultResolver resolves file and env references.
func DefaultResolver() *Resolver {
	return NewResolver(NewFileProvider(nil), NewEnvProvider())
}

// ResolveValue expands environment references in value, then resolves it
// through a provider when it is a secretref. Resolved secrets must be
// non-empty.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(expanded, refPrefix) {
		return expanded, nil
	}

	name, ref, ok := ParseSecretRef(expanded)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedRef, expanded)
	}
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	resolved, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if resolved == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, name)
	}
	return resolved, nil
}

// ResolveMap resolves each value in input.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]string) (map[string]string, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		resolved, err := r.ResolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// ParseSecretRef parses a full secret reference of the form:
//
//	secretref:<provider>:<ref>
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, ok = strings.Cut(rest, ":")
	if !ok || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}
