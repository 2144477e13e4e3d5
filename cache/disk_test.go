package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

const testKey = "ce8ad643c92762b58d78e441d14de087"

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func newTestDiskStore(t *testing.T, bfs billy.Filesystem) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(bfs, []int{64, 150})
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	return s
}

func TestNewDiskStore_ProvisionsBuckets(t *testing.T) {
	bfs := memfs.New()
	newTestDiskStore(t, bfs)

	for _, dir := range []string{"64", "150"} {
		info, err := bfs.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%q) error = %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%q is not a directory", dir)
		}
	}

	// Provisioning again over existing directories is not an error.
	if _, err := NewDiskStore(bfs, []int{64, 150}); err != nil {
		t.Errorf("second NewDiskStore() error = %v", err)
	}
}

func TestNewDiskStore_Errors(t *testing.T) {
	if _, err := NewDiskStore(nil, []int{64}); err == nil {
		t.Error("expected error for nil filesystem")
	}
	if _, err := NewDiskStore(memfs.New(), []int{0}); err == nil {
		t.Error("expected error for zero bucket")
	}
	if _, err := OpenDiskStore("", []int{64}); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestNewDiskStore_SweepsOrphanedTempFiles(t *testing.T) {
	bfs := memfs.New()
	if err := util.WriteFile(bfs, "150/"+tempPrefix+testKey+"-123", []byte("half"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := util.WriteFile(bfs, "150/"+testKey+".png", pngHeader, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	newTestDiskStore(t, bfs)

	infos, err := bfs.ReadDir("150")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(infos) != 1 || infos[0].Name() != testKey+".png" {
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name())
		}
		t.Errorf("bucket contents = %v, want only the published entry", names)
	}
}

func TestDiskStore_WriteThenRead(t *testing.T) {
	s := newTestDiskStore(t, memfs.New())
	ctx := context.Background()

	ok, err := s.Exists(ctx, 150, testKey)
	if err != nil || ok {
		t.Fatalf("Exists() before write = %v, %v; want false, nil", ok, err)
	}

	data := append(bytes.Clone(pngHeader), []byte("body")...)
	if err := s.Write(ctx, 150, testKey, data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	ok, err = s.Exists(ctx, 150, testKey)
	if err != nil || !ok {
		t.Fatalf("Exists() after write = %v, %v; want true, nil", ok, err)
	}

	got, err := s.Read(ctx, 150, testKey)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read() = %v, want %v", got, data)
	}
}

func TestDiskStore_ReadMissing(t *testing.T) {
	s := newTestDiskStore(t, memfs.New())

	_, err := s.Read(context.Background(), 150, testKey)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestDiskStore_RejectsUnknownBucketAndBadKey(t *testing.T) {
	s := newTestDiskStore(t, memfs.New())
	ctx := context.Background()

	if err := s.Write(ctx, 300, testKey, pngHeader); !errors.Is(err, ErrUnknownBucket) {
		t.Errorf("Write(300) error = %v, want ErrUnknownBucket", err)
	}
	if _, err := s.Exists(ctx, 150, "../escape"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Exists(bad key) error = %v, want ErrInvalidKey", err)
	}
}

func TestDiskStore_LastWriterWins(t *testing.T) {
	s := newTestDiskStore(t, memfs.New())
	ctx := context.Background()

	_ = s.Write(ctx, 64, testKey, []byte("first"))
	_ = s.Write(ctx, 64, testKey, []byte("second"))

	got, err := s.Read(ctx, 64, testKey)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Read() = %q, want %q", got, "second")
	}
}

func TestDiskStore_TempFileIsNotAnEntry(t *testing.T) {
	bfs := memfs.New()
	s := newTestDiskStore(t, bfs)

	// An in-progress write sits beside the entry under a different name.
	if err := util.WriteFile(bfs, "150/"+tempPrefix+testKey+"-1", []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ok, err := s.Exists(context.Background(), 150, testKey)
	if err != nil || ok {
		t.Errorf("Exists() = %v, %v; want false, nil", ok, err)
	}

	u, err := s.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if u.Entries != 0 {
		t.Errorf("Usage().Entries = %d, want 0", u.Entries)
	}
}

// failingWriteFS hands out temp files that fail half way through a write.
type failingWriteFS struct {
	billy.Filesystem
}

func (f failingWriteFS) TempFile(dir, prefix string) (billy.File, error) {
	file, err := f.Filesystem.TempFile(dir, prefix)
	if err != nil {
		return nil, err
	}
	return failingFile{File: file}, nil
}

type failingFile struct {
	billy.File
}

func (f failingFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, errors.New("no space left on device")
}

// failingRenameFS refuses to publish.
type failingRenameFS struct {
	billy.Filesystem
}

func (f failingRenameFS) Rename(_, _ string) error {
	return errors.New("permission denied")
}

func TestDiskStore_FailedWriteLeavesNothing(t *testing.T) {
	tests := []struct {
		name string
		wrap func(billy.Filesystem) billy.Filesystem
	}{
		{"write fails", func(b billy.Filesystem) billy.Filesystem { return failingWriteFS{b} }},
		{"rename fails", func(b billy.Filesystem) billy.Filesystem { return failingRenameFS{b} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := memfs.New()
			s := newTestDiskStore(t, tt.wrap(base))
			ctx := context.Background()

			if err := s.Write(ctx, 150, testKey, append(bytes.Clone(pngHeader), make([]byte, 64)...)); err == nil {
				t.Fatal("Write() error = nil, want failure")
			}

			ok, err := s.Exists(ctx, 150, testKey)
			if err != nil || ok {
				t.Errorf("Exists() = %v, %v; want false, nil", ok, err)
			}

			infos, err := base.ReadDir("150")
			if err != nil {
				t.Fatalf("ReadDir() error = %v", err)
			}
			if len(infos) != 0 {
				t.Errorf("bucket holds %d files after failed write, want 0", len(infos))
			}
		})
	}
}

func TestDiskStore_Usage(t *testing.T) {
	s := newTestDiskStore(t, memfs.New())
	ctx := context.Background()
	keyer := NewMD5Keyer()

	_ = s.Write(ctx, 64, keyer.Key("a", 64), []byte("1234"))
	_ = s.Write(ctx, 150, keyer.Key("a", 150), []byte("123456"))
	_ = s.Write(ctx, 150, keyer.Key("b", 150), []byte("12"))

	u, err := s.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if u.Entries != 3 {
		t.Errorf("Entries = %d, want 3", u.Entries)
	}
	if u.Bytes != 12 {
		t.Errorf("Bytes = %d, want 12", u.Bytes)
	}
	if u.Buckets[150] != 2 || u.Buckets[64] != 1 {
		t.Errorf("Buckets = %v, want 64:1 150:2", u.Buckets)
	}
}

func TestDiskStore_Probe(t *testing.T) {
	bfs := memfs.New()
	s := newTestDiskStore(t, bfs)

	if err := s.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	infos, _ := bfs.ReadDir("64")
	if len(infos) != 0 {
		t.Errorf("Probe left %d files behind", len(infos))
	}
}

func TestDiskStore_CancelledContext(t *testing.T) {
	s := newTestDiskStore(t, memfs.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, 150, testKey, pngHeader); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
	if _, err := s.Read(ctx, 150, testKey); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestOpenDiskStore_LocalLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDiskStore(dir, []int{150})
	if err != nil {
		t.Fatalf("OpenDiskStore() error = %v", err)
	}

	if err := s.Write(context.Background(), 150, testKey, pngHeader); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "150", testKey+".png"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, pngHeader) {
		t.Errorf("file content = %v, want %v", got, pngHeader)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "150"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}
