package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
// Entries are copied on write and on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[entryID][]byte
	buckets map[int]struct{}
}

type entryID struct {
	bucket int
	key    string
}

// NewMemoryStore creates a new in-memory store for the given buckets.
func NewMemoryStore(buckets []int) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[entryID][]byte),
		buckets: make(map[int]struct{}, len(buckets)),
	}
	for _, b := range buckets {
		s.buckets[b] = struct{}{}
	}
	return s
}

// Path returns "<bucket>/<key>.png".
func (s *MemoryStore) Path(bucket int, key string) string {
	return EntryPath(bucket, key)
}

func (s *MemoryStore) check(bucket int, key string) error {
	if _, ok := s.buckets[bucket]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBucket, bucket)
	}
	return ValidateKey(key)
}

// Exists reports whether an entry is stored for bucket and key.
func (s *MemoryStore) Exists(_ context.Context, bucket int, key string) (bool, error) {
	if err := s.check(bucket, key); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.entries[entryID{bucket, key}]
	s.mu.RUnlock()
	return ok, nil
}

// Read returns a copy of the stored entry, or ErrNotFound.
func (s *MemoryStore) Read(_ context.Context, bucket int, key string) ([]byte, error) {
	if err := s.check(bucket, key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.entries[entryID{bucket, key}]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path(bucket, key))
	}
	return bytes.Clone(data), nil
}

// Write stores a copy of data. Last writer wins.
func (s *MemoryStore) Write(_ context.Context, bucket int, key string, data []byte) error {
	if err := s.check(bucket, key); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[entryID{bucket, key}] = bytes.Clone(data)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Usage totals the stored entries.
func (s *MemoryStore) Usage(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := Usage{Buckets: make(map[int]int, len(s.buckets))}
	for id, data := range s.entries {
		u.Entries++
		u.Bytes += int64(len(data))
		u.Buckets[id.bucket]++
	}
	return u, nil
}

// Probe always succeeds unless ctx is done.
func (s *MemoryStore) Probe(ctx context.Context) error {
	return ctx.Err()
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
