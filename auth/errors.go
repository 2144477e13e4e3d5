package auth

import "errors"

// Sentinel errors for authentication.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")

	// ErrWeakSecret is returned by New for an HS256 secret shorter than
	// MinSecretLength.
	ErrWeakSecret = errors.New("auth: jwt secret too short")
)
