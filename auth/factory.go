package auth

import (
	"fmt"
	"slices"
)

// MinSecretLength is the shortest accepted HS256 secret, in bytes.
const MinSecretLength = 32

// Config selects the operator credentials the server accepts.
type Config struct {
	// APIKeys maps a principal to its plaintext key.
	APIKeys map[string]string `mapstructure:"api_keys"`

	// APIKeyHeader overrides the header carrying the key.
	APIKeyHeader string `mapstructure:"api_key_header"`

	// JWTSecret enables bearer tokens signed with HS256.
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWTIssuer is the required iss claim, if set.
	JWTIssuer string `mapstructure:"jwt_issuer"`

	// JWTAudience is the required aud claim, if set.
	JWTAudience string `mapstructure:"jwt_audience"`
}

// Enabled reports whether any credential is configured.
func (c Config) Enabled() bool {
	return len(c.APIKeys) > 0 || c.JWTSecret != ""
}

// Validate checks the configuration without building authenticators.
func (c Config) Validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < MinSecretLength {
		return fmt.Errorf("%w: %d bytes, need %d", ErrWeakSecret, len(c.JWTSecret), MinSecretLength)
	}
	for principal, key := range c.APIKeys {
		if key == "" {
			return fmt.Errorf("%w: empty api key for %q", ErrInvalidCredentials, principal)
		}
	}
	return nil
}

// New builds the authenticator for cfg: API keys first, then JWT. It returns
// nil when cfg enables nothing.
func New(cfg Config) (Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, nil
	}

	var chain Chain
	if len(cfg.APIKeys) > 0 {
		store := NewMemoryAPIKeyStore()
		principals := make([]string, 0, len(cfg.APIKeys))
		for p := range cfg.APIKeys {
			principals = append(principals, p)
		}
		slices.Sort(principals)
		for _, p := range principals {
			store.AddKey(p, cfg.APIKeys[p])
		}
		chain = append(chain, NewAPIKeyAuthenticator(cfg.APIKeyHeader, store))
	}
	if cfg.JWTSecret != "" {
		chain = append(chain, NewJWTAuthenticator(JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}))
	}
	return chain, nil
}
