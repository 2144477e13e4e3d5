package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultAPIKeyHeader carries the API key.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyInfo describes a registered API key.
type APIKeyInfo struct {
	// ID is a short identifier safe to log, derived from the hash.
	ID string

	// KeyHash is the SHA-256 hex digest of the key.
	KeyHash string

	// Principal owns the key.
	Principal string

	// ExpiresAt is zero for keys that never expire.
	ExpiresAt time.Time
}

// APIKeyStore looks keys up by hash.
type APIKeyStore interface {
	// Lookup returns nil, nil when no key has the hash.
	Lookup(ctx context.Context, keyHash string) (*APIKeyInfo, error)
}

// APIKeyAuthenticator validates API keys.
type APIKeyAuthenticator struct {
	header string
	store  APIKeyStore
	now    func() time.Time
}

// NewAPIKeyAuthenticator creates an API key authenticator reading header.
// An empty header means DefaultAPIKeyHeader.
func NewAPIKeyAuthenticator(header string, store APIKeyStore) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{header: header, store: store, now: time.Now}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string {
	return string(MethodAPIKey)
}

// Supports returns true if the request carries the API key header.
func (a *APIKeyAuthenticator) Supports(req *http.Request) bool {
	return req.Header.Get(a.header) != ""
}

// Authenticate hashes the presented key and looks it up.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req *http.Request) (*Result, error) {
	key := strings.TrimSpace(req.Header.Get(a.header))
	if key == "" {
		return Failure(ErrMissingCredentials, a.Name()), nil
	}

	info, err := a.store.Lookup(ctx, HashAPIKey(key))
	if err != nil {
		return nil, err
	}
	if info == nil {
		return Failure(ErrInvalidCredentials, a.Name()), nil
	}

	id := &Identity{
		Principal: info.Principal,
		Method:    MethodAPIKey,
		ExpiresAt: info.ExpiresAt,
		Claims:    map[string]any{"key_id": info.ID},
	}
	if id.ExpiredAt(a.now()) {
		return Failure(ErrTokenExpired, a.Name()), nil
	}
	return Success(id), nil
}

// HashAPIKey hashes an API key using SHA-256 for storage.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MemoryAPIKeyStore is an in-memory API key store.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyInfo
}

// NewMemoryAPIKeyStore creates an empty in-memory API key store.
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]*APIKeyInfo)}
}

// Lookup retrieves an API key by its hash.
func (s *MemoryAPIKeyStore) Lookup(_ context.Context, keyHash string) (*APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[keyHash], nil
}

// AddKey registers a plaintext key for principal. Only its hash is kept.
func (s *MemoryAPIKeyStore) AddKey(principal, key string) *APIKeyInfo {
	hash := HashAPIKey(key)
	info := &APIKeyInfo{ID: hash[:8], KeyHash: hash, Principal: principal}
	s.Add(info)
	return info
}

// Add stores info under its KeyHash.
func (s *MemoryAPIKeyStore) Add(info *APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[info.KeyHash] = info
}

// Len returns the number of registered keys.
func (s *MemoryAPIKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

var (
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ APIKeyStore   = (*MemoryAPIKeyStore)(nil)
)
