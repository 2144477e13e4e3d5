package auth

import (
	"slices"
	"time"
)

// Method indicates how a caller was authenticated.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// Identity is an authenticated operator.
type Identity struct {
	// Principal names the caller: the API key's owner or the JWT subject.
	Principal string

	// Roles granted by the token's roles claim.
	Roles []string

	// Method indicates how authentication was performed.
	Method Method

	// Claims holds the raw JWT claims, or key_id for API keys.
	Claims map[string]any

	// ExpiresAt is zero for credentials that never expire.
	ExpiresAt time.Time
}

// HasRole reports whether the identity carries role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// ExpiredAt reports whether the identity has expired at now.
func (id *Identity) ExpiredAt(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}
