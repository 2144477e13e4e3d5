package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// tempPrefix marks in-progress writes inside a bucket directory.
// Entries carrying it are never reported by Exists or Usage.
const tempPrefix = ".tmp-"

// DiskStore is a Store backed by a go-billy filesystem.
//
// Layout: <root>/<bucket>/<key>.png. Writes go to a temp file in the same
// bucket directory and are published with a rename, so readers see either
// nothing or the complete file.
type DiskStore struct {
	fs      billy.Filesystem
	buckets map[int]struct{}
}

// OpenDiskStore opens a DiskStore rooted at dir on the local filesystem.
func OpenDiskStore(dir string, buckets []int) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("cache: directory cannot be empty")
	}
	return NewDiskStore(osfs.New(dir), buckets)
}

// NewDiskStore creates a DiskStore over bfs, provisioning one directory per
// bucket. Provisioning is idempotent. Temp files orphaned by an earlier crash
// are removed.
func NewDiskStore(bfs billy.Filesystem, buckets []int) (*DiskStore, error) {
	if bfs == nil {
		return nil, errors.New("cache: filesystem cannot be nil")
	}

	s := &DiskStore{
		fs:      bfs,
		buckets: make(map[int]struct{}, len(buckets)),
	}

	for _, b := range buckets {
		if b <= 0 {
			return nil, fmt.Errorf("cache: invalid bucket %d", b)
		}
		dir := strconv.Itoa(b)
		if err := bfs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: failed to create bucket directory %q: %w", dir, err)
		}
		if err := s.sweep(dir); err != nil {
			return nil, err
		}
		s.buckets[b] = struct{}{}
	}

	return s, nil
}

// sweep removes leftover temp files from dir.
func (s *DiskStore) sweep(dir string) error {
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cache: failed to list %q: %w", dir, err)
	}
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), tempPrefix) {
			_ = s.fs.Remove(s.fs.Join(dir, info.Name()))
		}
	}
	return nil
}

// Root returns the root of the underlying filesystem.
func (s *DiskStore) Root() string {
	return s.fs.Root()
}

// Filesystem returns the underlying filesystem.
func (s *DiskStore) Filesystem() billy.Filesystem {
	return s.fs
}

// Path returns "<bucket>/<key>.png".
func (s *DiskStore) Path(bucket int, key string) string {
	return EntryPath(bucket, key)
}

func (s *DiskStore) check(bucket int, key string) error {
	if _, ok := s.buckets[bucket]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBucket, bucket)
	}
	return ValidateKey(key)
}

// Exists reports whether the entry for bucket and key has been published.
func (s *DiskStore) Exists(ctx context.Context, bucket int, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.check(bucket, key); err != nil {
		return false, err
	}

	info, err := s.fs.Stat(s.Path(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("cache: failed to stat entry: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Read returns the entry bytes, or ErrNotFound if it is not published.
func (s *DiskStore) Read(ctx context.Context, bucket int, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check(bucket, key); err != nil {
		return nil, err
	}

	data, err := util.ReadFile(s.fs, s.Path(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path(bucket, key))
		}
		return nil, fmt.Errorf("cache: failed to read entry: %w", err)
	}
	return data, nil
}

// Write publishes data atomically: temp file in the bucket directory, then rename.
// The temp file is removed if any step fails.
func (s *DiskStore) Write(ctx context.Context, bucket int, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(bucket, key); err != nil {
		return err
	}

	tmp, err := s.fs.TempFile(strconv.Itoa(bucket), tempPrefix+key+"-")
	if err != nil {
		return fmt.Errorf("cache: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	if werr == nil {
		if syncer, ok := tmp.(interface{ Sync() error }); ok {
			werr = syncer.Sync()
		}
	}
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("cache: failed to write temp file: %w", errors.Join(werr, cerr))
	}

	if err := s.fs.Rename(tmpName, s.Path(bucket, key)); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("cache: failed to publish entry: %w", err)
	}
	return nil
}

// Usage summarizes the published entries of every bucket.
type Usage struct {
	Entries int
	Bytes   int64
	Buckets map[int]int
}

// Usage walks the bucket directories and totals published entries.
func (s *DiskStore) Usage(ctx context.Context) (Usage, error) {
	u := Usage{Buckets: make(map[int]int, len(s.buckets))}
	for b := range s.buckets {
		if err := ctx.Err(); err != nil {
			return u, err
		}
		infos, err := s.fs.ReadDir(strconv.Itoa(b))
		if err != nil {
			return u, fmt.Errorf("cache: failed to list bucket %d: %w", b, err)
		}
		for _, info := range infos {
			name := info.Name()
			if !info.Mode().IsRegular() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, FileExt) {
				continue
			}
			u.Entries++
			u.Bytes += info.Size()
			u.Buckets[b]++
		}
	}
	return u, nil
}

// Probe checks that the store can create and remove a file in every bucket.
func (s *DiskStore) Probe(ctx context.Context) error {
	for b := range s.buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := s.fs.TempFile(strconv.Itoa(b), tempPrefix+"probe-")
		if err != nil {
			return fmt.Errorf("cache: bucket %d not writable: %w", b, err)
		}
		name := f.Name()
		_ = f.Close()
		if err := s.fs.Remove(name); err != nil {
			return fmt.Errorf("cache: bucket %d cleanup failed: %w", b, err)
		}
	}
	return nil
}

// Ensure DiskStore implements Store
var _ Store = (*DiskStore)(nil)
