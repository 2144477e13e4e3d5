package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/dhivatar/avatar"
	"github.com/jonwraymond/dhivatar/cache"
	"github.com/jonwraymond/dhivatar/resilience"
)

// ErrBadSize is returned for a size parameter that is not an integer.
var ErrBadSize = errors.New("server: size must be an integer")

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, avatar.ErrInvalidName),
		errors.Is(err, avatar.ErrInvalidColor),
		errors.Is(err, cache.ErrInvalidSize),
		errors.Is(err, cache.ErrSizeTooLarge),
		errors.Is(err, ErrBadSize):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, resilience.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing message. Client errors echo the
// cause; server errors stay generic.
func messageFor(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusTooManyRequests:
		return "rate limit exceeded"
	case http.StatusServiceUnavailable:
		return "server busy, retry later"
	case http.StatusGatewayTimeout:
		return "avatar rendering timed out"
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
