package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Require returns middleware that admits only authenticated requests and
// attaches the Identity to the request context. A nil authn admits every
// request.
func Require(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authn == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := authn.Authenticate(r.Context(), r)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			if !result.Authenticated {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dhivatar"`)
				writeError(w, http.StatusUnauthorized, failureMessage(result.Error))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), result.Identity)))
		})
	}
}

func failureMessage(err error) string {
	switch {
	case err == nil:
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrTokenExpired):
		return err.Error()
	default:
		return ErrInvalidCredentials.Error()
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
