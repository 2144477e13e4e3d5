// Package auth guards the operator endpoints of the avatar server.
//
// Avatar routes are public. The detailed health report and the metrics
// scrape endpoint can be restricted to callers presenting either a static API
// key in X-API-Key or an HS256-signed JWT in the Authorization header:
//
//	authn, err := auth.New(cfg)
//	mux.Handle("GET /metrics", auth.Require(authn)(metrics))
//
// New returns a nil Authenticator when no credentials are configured, and
// Require(nil) leaves the handler open.
package auth
