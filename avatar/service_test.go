package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/dhivatar/cache"
	"github.com/jonwraymond/dhivatar/observe"
	"github.com/jonwraymond/dhivatar/resilience"
)

// md5("test150")
const test150Key = "ce8ad643c92762b58d78e441d14de087"

// fakeRenderer records calls and returns a description of its inputs.
type fakeRenderer struct {
	mu    sync.Mutex
	calls atomic.Int32
	last  struct {
		size   int
		bg, fg *RGB
	}
	err   error
	delay time.Duration
}

func (f *fakeRenderer) Render(_ context.Context, name string, size int, bg, fg *RGB) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last.size, f.last.bg, f.last.fg = size, bg, fg
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("png:%s:%d", name, size)), nil
}

func (f *fakeRenderer) lastSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.size
}

func newDiskService(t *testing.T, r Renderer, mutate func(*Config)) (*Service, *cache.DiskStore) {
	t.Helper()
	fs := memfs.New()
	store, err := cache.NewDiskStore(fs, cache.DefaultBuckets)
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	cfg := Config{Policy: cache.DefaultPolicy(), Store: store, Renderer: r}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, store
}

func TestService_MissThenHit(t *testing.T) {
	r := &fakeRenderer{}
	svc, store := newDiskService(t, r, nil)
	ctx := context.Background()

	first, err := svc.Avatar(ctx, Request{Name: "test", Size: 150})
	if err != nil {
		t.Fatalf("first Avatar() error = %v", err)
	}
	wantPath := "150/" + test150Key + ".png"
	if first.Source != SourceGenerated || first.Path != wantPath || first.CacheStatus() != OutcomeMiss {
		t.Errorf("first = %+v, want generated miss at %s", first, wantPath)
	}

	onDisk, err := util.ReadFile(store.Filesystem(), wantPath)
	if err != nil {
		t.Fatalf("entry not persisted: %v", err)
	}
	if !bytes.Equal(onDisk, first.Data) {
		t.Error("persisted bytes differ from served bytes")
	}

	second, err := svc.Avatar(ctx, Request{Name: "test", Size: 150})
	if err != nil {
		t.Fatalf("second Avatar() error = %v", err)
	}
	if second.Source != SourceCache || second.CacheStatus() != OutcomeHit || second.Path != wantPath {
		t.Errorf("second = %+v, want cache hit", second)
	}
	if !bytes.Equal(second.Data, first.Data) {
		t.Error("hit returned different bytes")
	}
	if r.calls.Load() != 1 {
		t.Errorf("renderer calls = %d, want 1", r.calls.Load())
	}
}

func TestService_ColorOverrideBypassesCache(t *testing.T) {
	r := &fakeRenderer{}
	svc, store := newDiskService(t, r, nil)
	ctx := context.Background()
	red, _ := ResolveColor("ff0000")

	for i := 0; i < 2; i++ {
		res, err := svc.Avatar(ctx, Request{Name: "test", Size: 150, Background: red})
		if err != nil {
			t.Fatalf("Avatar() error = %v", err)
		}
		if res.CacheStatus() != OutcomeBypass || res.Path != "" {
			t.Errorf("res = %+v, want bypass", res)
		}
	}

	u, _ := store.Usage(ctx)
	if u.Entries != 0 {
		t.Errorf("store has %d entries, want 0", u.Entries)
	}
	if r.calls.Load() != 2 {
		t.Errorf("renderer calls = %d, want 2", r.calls.Load())
	}
	if r.last.bg == nil || *r.last.bg != *red {
		t.Errorf("renderer bg = %v, want %v", r.last.bg, red)
	}
}

func TestService_ForegroundOverrideBypassesCache(t *testing.T) {
	r := &fakeRenderer{}
	svc, _ := newDiskService(t, r, nil)
	blue, _ := ResolveColor("0000ff")

	res, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 64, Foreground: blue})
	if err != nil {
		t.Fatalf("Avatar() error = %v", err)
	}
	if res.CacheStatus() != OutcomeBypass {
		t.Errorf("status = %s, want bypass", res.CacheStatus())
	}
}

func TestService_SizeClassification(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		overflow   cache.OverflowMode
		wantStatus string
		wantRender int
		wantErr    error
	}{
		{name: "bucket", size: 64, wantStatus: OutcomeMiss, wantRender: 64},
		{name: "non bucket", size: 100, wantStatus: OutcomeBypass, wantRender: 100},
		{name: "max size", size: 1000, wantStatus: OutcomeBypass, wantRender: 1000},
		{name: "oversize downgraded", size: 9999, wantStatus: OutcomeBypass, wantRender: 0},
		{name: "oversize rejected", size: 9999, overflow: cache.OverflowReject, wantErr: cache.ErrSizeTooLarge},
		{name: "zero", size: 0, wantErr: cache.ErrInvalidSize},
		{name: "negative", size: -5, wantErr: cache.ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRenderer{}
			svc, _ := newDiskService(t, r, func(c *Config) {
				if tt.overflow != "" {
					c.Policy.Overflow = tt.overflow
				}
			})

			res, err := svc.Avatar(context.Background(), Request{Name: "test", Size: tt.size})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if r.calls.Load() != 0 {
					t.Error("rejected request should not render")
				}
				return
			}
			if err != nil {
				t.Fatalf("Avatar() error = %v", err)
			}
			if res.CacheStatus() != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.CacheStatus(), tt.wantStatus)
			}
			if r.lastSize() != tt.wantRender {
				t.Errorf("rendered size = %d, want %d", r.lastSize(), tt.wantRender)
			}
		})
	}
}

func TestService_InvalidNames(t *testing.T) {
	r := &fakeRenderer{}
	svc, _ := newDiskService(t, r, func(c *Config) { c.MaxNameLength = 8 })

	for _, name := range []string{"", "   ", "\xff\xfe", "ninechars"} {
		_, err := svc.Avatar(context.Background(), Request{Name: name, Size: 150})
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("Avatar(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
	if _, err := svc.Avatar(context.Background(), Request{Name: "ބައިވަރު", Size: 150}); err != nil {
		t.Errorf("8-rune Thaana name rejected: %v", err)
	}
	if r.calls.Load() != 1 {
		t.Errorf("renderer calls = %d, want 1", r.calls.Load())
	}
}

func TestService_DefaultNameLength(t *testing.T) {
	svc, _ := newDiskService(t, &fakeRenderer{}, nil)
	ctx := context.Background()

	// Twelve Thaana words of eight runes each.
	long := strings.TrimSpace(strings.Repeat("ބައިވަރު ", 12))
	if _, err := svc.Avatar(ctx, Request{Name: long, Size: 150}); err != nil {
		t.Errorf("%d-rune name rejected: %v", utf8.RuneCountInString(long), err)
	}

	tooLong := strings.Repeat("a", DefaultMaxNameLength+1)
	if _, err := svc.Avatar(ctx, Request{Name: tooLong, Size: 150}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Avatar(%d runes) error = %v, want ErrInvalidName", DefaultMaxNameLength+1, err)
	}
}

func TestService_RenderErrorNotCached(t *testing.T) {
	r := &fakeRenderer{err: errors.New("font face")}
	svc, store := newDiskService(t, r, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Avatar(ctx, Request{Name: "test", Size: 150}); !errors.Is(err, ErrRender) {
			t.Fatalf("Avatar() error = %v, want ErrRender", err)
		}
	}
	if ok, _ := store.Exists(ctx, 150, test150Key); ok {
		t.Error("failed render was cached")
	}
	if r.calls.Load() != 2 {
		t.Errorf("renderer calls = %d, want 2", r.calls.Load())
	}
}

func TestService_RenderGuardErrorsPassThrough(t *testing.T) {
	full := resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 1})
	_ = full.Acquire(context.Background())

	r := &fakeRenderer{}
	svc, _ := newDiskService(t, r, func(c *Config) {
		c.RenderGuard = resilience.NewExecutor(resilience.WithBulkhead(full))
	})

	_, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 150})
	if !errors.Is(err, resilience.ErrBulkheadFull) {
		t.Fatalf("error = %v, want ErrBulkheadFull", err)
	}
	if errors.Is(err, ErrRender) {
		t.Error("guard rejection should not be reported as a render failure")
	}
}

func TestService_RenderTimeout(t *testing.T) {
	r := &fakeRenderer{delay: 200 * time.Millisecond}
	svc, _ := newDiskService(t, r, func(c *Config) {
		c.RenderGuard = resilience.NewExecutor(resilience.WithTimeout(10 * time.Millisecond))
	})

	_, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 100})
	if !errors.Is(err, resilience.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

// failingStore reports every entry missing and refuses writes.
type failingStore struct{ cache.Store }

func (failingStore) Exists(context.Context, int, string) (bool, error) {
	return false, errors.New("stat: input/output error")
}

func (failingStore) Write(context.Context, int, string, []byte) error {
	return errors.New("write: no space left on device")
}

func (failingStore) Path(bucket int, key string) string { return cache.EntryPath(bucket, key) }

func TestService_StoreFailuresDegrade(t *testing.T) {
	var logs bytes.Buffer
	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	svc, err := NewService(Config{
		Policy:   cache.DefaultPolicy(),
		Store:    failingStore{},
		Renderer: &fakeRenderer{},
		Logger:   observe.NewLoggerWithWriter("warn", &logs),
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	res, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 150})
	if err != nil {
		t.Fatalf("Avatar() error = %v", err)
	}
	if res.CacheStatus() != OutcomeMiss || len(res.Data) == 0 {
		t.Errorf("res = %+v, want served miss", res)
	}

	out := logs.String()
	if strings.Count(out, `"msg":"cache degraded"`) != 3 {
		t.Errorf("expected exists, exists (in flight) and write warnings, got:\n%s", out)
	}
	if !strings.Contains(out, `"op":"write"`) || !strings.Contains(out, `"component":"avatar"`) {
		t.Errorf("unexpected log output:\n%s", out)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var cacheErrors int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != observe.MetricCacheErrors {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				cacheErrors += dp.Value
			}
		}
	}
	if cacheErrors != 3 {
		t.Errorf("cache errors = %d, want 3", cacheErrors)
	}
}

func TestService_WriteGuardOpenStillServes(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("disk") })

	r := &fakeRenderer{}
	svc, store := newDiskService(t, r, func(c *Config) { c.WriteGuard = cb })

	res, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 150})
	if err != nil {
		t.Fatalf("Avatar() error = %v", err)
	}
	if res.CacheStatus() != OutcomeMiss {
		t.Errorf("status = %s, want miss", res.CacheStatus())
	}
	if ok, _ := store.Exists(context.Background(), 150, test150Key); ok {
		t.Error("write went through an open circuit")
	}
}

func TestService_CacheDisabled(t *testing.T) {
	r := &fakeRenderer{}
	svc, err := NewService(Config{Policy: cache.NoCachePolicy(), Renderer: r})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	res, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 150})
	if err != nil {
		t.Fatalf("Avatar() error = %v", err)
	}
	if res.CacheStatus() != OutcomeBypass {
		t.Errorf("status = %s, want bypass", res.CacheStatus())
	}
}

func TestNewService_Errors(t *testing.T) {
	if _, err := NewService(Config{Policy: cache.DefaultPolicy(), Store: cache.NewMemoryStore(cache.DefaultBuckets)}); !errors.Is(err, ErrNilRenderer) {
		t.Errorf("nil renderer error = %v", err)
	}
	if _, err := NewService(Config{Policy: cache.DefaultPolicy(), Renderer: &fakeRenderer{}}); !errors.Is(err, cache.ErrNilStore) {
		t.Errorf("nil store error = %v", err)
	}
	bad := cache.DefaultPolicy()
	bad.MaxSize = 0
	if _, err := NewService(Config{Policy: bad, Renderer: &fakeRenderer{}}); err == nil {
		t.Error("invalid policy accepted")
	}
}

func TestService_ConcurrentMissesRenderOnce(t *testing.T) {
	r := &fakeRenderer{delay: 20 * time.Millisecond}
	svc, _ := newDiskService(t, r, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 150})
			if err == nil && string(res.Data) != "png:test:150" {
				err = fmt.Errorf("unexpected data %q", res.Data)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if r.calls.Load() != 1 {
		t.Errorf("renderer calls = %d, want 1", r.calls.Load())
	}
}

func TestService_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc, _ := newDiskService(t, &fakeRenderer{}, func(c *Config) {
		c.Tracer = observe.NewTracer(tp.Tracer("test"))
	})

	if _, err := svc.Avatar(context.Background(), Request{Name: "test", Size: 150}); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != "avatar.render,avatar.request" {
		t.Errorf("spans = %v, want [avatar.render avatar.request]", names)
	}
}
