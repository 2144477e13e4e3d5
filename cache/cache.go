package cache

import (
	"context"
	"errors"
	"strconv"
)

// KeyLength is the length of a valid cache key (hex-encoded MD5).
const KeyLength = 32

// FileExt is the extension of every cached entry.
const FileExt = ".png"

// Sentinel errors for cache operations.
var (
	ErrNilStore      = errors.New("cache: store is nil")
	ErrInvalidKey    = errors.New("cache: key is invalid")
	ErrNotFound      = errors.New("cache: entry not found")
	ErrUnknownBucket = errors.New("cache: bucket is not declared")
)

// Store is the interface for persisting generated avatars.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Atomicity: a reader must never observe a partially written entry;
//     Exists reports true only once Write has fully published the entry.
//   - Errors: Read returns ErrNotFound (possibly wrapped) on a miss.
type Store interface {
	// Exists reports whether an entry is published for bucket and key.
	Exists(ctx context.Context, bucket int, key string) (bool, error)

	// Read returns the bytes stored for bucket and key.
	Read(ctx context.Context, bucket int, key string) ([]byte, error)

	// Write publishes data for bucket and key. Last writer wins.
	Write(ctx context.Context, bucket int, key string, data []byte) error

	// Path returns the location of the entry relative to the store root.
	Path(bucket int, key string) string
}

// Inspector reports on a store for operators.
type Inspector interface {
	// Usage totals the published entries.
	Usage(ctx context.Context) (Usage, error)

	// Probe checks that the store accepts writes.
	Probe(ctx context.Context) error
}

var (
	_ Inspector = (*DiskStore)(nil)
	_ Inspector = (*MemoryStore)(nil)
)

// ValidateKey checks that key is a lowercase hex digest of KeyLength characters.
// Keys become file names, so anything else is rejected.
func ValidateKey(key string) error {
	if len(key) != KeyLength {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ErrInvalidKey
		}
	}
	return nil
}

// EntryPath returns "<bucket>/<key>.png".
func EntryPath(bucket int, key string) string {
	return strconv.Itoa(bucket) + "/" + key + FileExt
}
