package cache

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// GenerateFunc produces the bytes for a missing entry.
type GenerateFunc func(ctx context.Context) ([]byte, error)

// ErrorHandler observes store failures that were degraded into misses.
// op is one of "exists", "read" or "write".
type ErrorHandler func(ctx context.Context, op string, err error)

// Entry is the result of Filler.Fill.
type Entry struct {
	// Data is the entry content. It may be shared between callers that
	// joined the same flight and must be treated as read-only.
	Data []byte

	// Path is the entry location relative to the store root.
	Path string

	// Hit is true when Data was read from the store.
	Hit bool

	// Persisted is true when a miss was successfully written back.
	Persisted bool

	// Shared is true when the result came from another caller's flight.
	Shared bool
}

// Filler serves entries from a Store and fills misses by generating them.
//
// Contract:
//   - Ordering: the store is checked before generating, and generation
//     completes before persisting.
//   - Errors: store failures never fail a fill; they are reported to the
//     ErrorHandler and treated as misses. Generation errors are returned
//     and nothing is written.
//   - Concurrency: with single-flight enabled (the default) concurrent misses
//     for one entry share one generation. Without it every caller generates
//     and the last rename wins.
type Filler struct {
	store      Store
	group      *singleflight.Group
	onError    ErrorHandler
	writeGuard Guard
}

// Guard runs an operation under some protection, such as a circuit breaker.
type Guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// FillerOption configures a Filler.
type FillerOption func(*Filler)

// WithSingleFlight toggles the per-entry in-flight guard.
func WithSingleFlight(enabled bool) FillerOption {
	return func(f *Filler) {
		if enabled {
			f.group = &singleflight.Group{}
		} else {
			f.group = nil
		}
	}
}

// WithErrorHandler sets the handler for degraded store failures.
func WithErrorHandler(h ErrorHandler) FillerOption {
	return func(f *Filler) {
		if h != nil {
			f.onError = h
		}
	}
}

// WithWriteGuard routes every persist through g. A guard that refuses the
// write leaves the miss unpersisted and reports the refusal as a "write" error.
func WithWriteGuard(g Guard) FillerOption {
	return func(f *Filler) {
		f.writeGuard = g
	}
}

// NewFiller creates a Filler over store. Single-flight is on by default.
func NewFiller(store Store, opts ...FillerOption) (*Filler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	f := &Filler{
		store:   store,
		group:   &singleflight.Group{},
		onError: func(context.Context, string, error) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fill returns the entry for bucket and key, generating and persisting it on a miss.
func (f *Filler) Fill(ctx context.Context, bucket int, key string, gen GenerateFunc) (Entry, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, err
	}

	if data, ok := f.lookup(ctx, bucket, key); ok {
		return Entry{Data: data, Path: f.store.Path(bucket, key), Hit: true}, nil
	}

	if f.group == nil {
		return f.fill(ctx, bucket, key, gen)
	}

	// The flight outlives any single caller, so it must not inherit the
	// leader's cancellation. A caller whose context ends stops waiting and
	// the flight completes for the rest.
	flightCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(strconv.Itoa(bucket)+"/"+key, func() (any, error) {
		if data, ok := f.lookup(flightCtx, bucket, key); ok {
			return Entry{Data: data, Path: f.store.Path(bucket, key), Hit: true}, nil
		}
		return f.fill(flightCtx, bucket, key, gen)
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		entry := res.Val.(Entry)
		entry.Shared = res.Shared
		return entry, nil
	}
}

func (f *Filler) lookup(ctx context.Context, bucket int, key string) ([]byte, bool) {
	ok, err := f.store.Exists(ctx, bucket, key)
	if err != nil {
		f.onError(ctx, "exists", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	data, err := f.store.Read(ctx, bucket, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.onError(ctx, "read", err)
		}
		return nil, false
	}
	return data, true
}

func (f *Filler) fill(ctx context.Context, bucket int, key string, gen GenerateFunc) (Entry, error) {
	data, err := gen(ctx)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{Data: data, Path: f.store.Path(bucket, key)}

	// Persist even if the requester has gone away; the bytes are already paid for.
	if err := f.persist(context.WithoutCancel(ctx), bucket, key, data); err != nil {
		f.onError(ctx, "write", err)
		return entry, nil
	}
	entry.Persisted = true
	return entry, nil
}

func (f *Filler) persist(ctx context.Context, bucket int, key string, data []byte) error {
	write := func(ctx context.Context) error {
		return f.store.Write(ctx, bucket, key, data)
	}
	if f.writeGuard == nil {
		return write(ctx)
	}
	return f.writeGuard.Execute(ctx, write)
}
