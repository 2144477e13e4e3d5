package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// Keyer derives deterministic cache keys from a display name and a size.
//
// Contract:
// - Determinism: same inputs must produce the same key across processes.
// - Concurrency: implementations must be safe for concurrent use.
// - Output: keys must satisfy ValidateKey.
type Keyer interface {
	// Key derives the cache key for name rendered at size pixels.
	Key(name string, size int) string
}

// MD5Keyer derives keys as hex(MD5(name + decimal(size))).
//
// Name and size are joined without a separator, so distinct pairs such as
// ("a", 11) and ("a1", 1) share a key. Colliding pairs always differ in size,
// and entries are stored per size bucket, so two names never share a file.
// The raw key is still ambiguous and the layout is kept for compatibility
// with existing caches.
type MD5Keyer struct{}

// NewMD5Keyer creates a new MD5 keyer.
func NewMD5Keyer() *MD5Keyer {
	return &MD5Keyer{}
}

// Key derives the cache key for name at size.
func (k *MD5Keyer) Key(name string, size int) string {
	sum := md5.Sum([]byte(name + strconv.Itoa(size)))
	return hex.EncodeToString(sum[:])
}

// Ensure MD5Keyer implements Keyer
var _ Keyer = (*MD5Keyer)(nil)
