package metadata

import (
	"context"
	"time"

	"github.com/fretlog/fretlog/internal/cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Status describes the outcome of a consumer-facing lookup.
type Status string

const (
	// StatusFound carries a catalog value.
	StatusFound Status = "found"
	// StatusNotFound means no metadata is available: the catalog had no match
	// or could not be reached.
	StatusNotFound Status = "not_found"
	// StatusPending means no value is known yet and a fetch is underway.
	StatusPending Status = "pending"
	// StatusDisabled means the lookup was not attempted because a name was
	// empty.
	StatusDisabled Status = "disabled"
)

// Policy holds the two windows governing cached entries. An entry younger than
// Freshness is served as is. Between Freshness and Retention it is served and
// refreshed in the background. From Retention onwards it is discarded.
type Policy struct {
	Freshness time.Duration
	Retention time.Duration
}

// DefaultPolicy serves entries for a day and keeps them for a week.
var DefaultPolicy = Policy{
	Freshness: 24 * time.Hour,
	Retention: 7 * 24 * time.Hour,
}

// Entry is the stored form of a lookup outcome. Entries with Found false are
// negative results and are kept under the same policy as positive ones.
type Entry[T any] struct {
	Value     T         `json:"value"`
	Found     bool      `json:"found"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Lookup is the answer handed to presentation code. Stale is set when the
// value is older than the freshness window and a refresh has been scheduled.
type Lookup[T any] struct {
	Value     T
	Status    Status
	FetchedAt time.Time
	Stale     bool
}

func (l Lookup[T]) Found() bool {
	return l.Status == StatusFound
}

func lookupFrom[T any](entry Entry[T], stale bool) Lookup[T] {
	status := StatusNotFound
	if entry.Found {
		status = StatusFound
	}

	return Lookup[T]{
		Value:     entry.Value,
		Status:    status,
		FetchedAt: entry.FetchedAt,
		Stale:     stale,
	}
}

type freshnessOptions struct {
	now     func() time.Time
	execute func(func())
}

// FreshnessOption customizes a Freshness layer.
type FreshnessOption func(*freshnessOptions)

// WithClock replaces the time source used to age entries.
func WithClock(now func() time.Time) FreshnessOption {
	return func(o *freshnessOptions) {
		o.now = now
	}
}

// WithExecutor replaces the function used to run background refreshes. The
// default starts a goroutine.
func WithExecutor(execute func(func())) FreshnessOption {
	return func(o *freshnessOptions) {
		o.execute = execute
	}
}

// Freshness serves cached lookups according to a Policy. Fetch failures never
// reach the caller: a failed synchronous fetch is recorded as a negative
// entry, and a failed background refresh leaves the stale entry in place.
type Freshness[T any] struct {
	store   cache.Store[Entry[T]]
	policy  Policy
	group   singleflight.Group
	now     func() time.Time
	execute func(func())
}

// NewFreshness creates a layer over store. The store should retain entries
// for at least policy.Retention.
func NewFreshness[T any](store cache.Store[Entry[T]], policy Policy, opts ...FreshnessOption) *Freshness[T] {
	o := freshnessOptions{
		now:     time.Now,
		execute: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Freshness[T]{
		store:   store,
		policy:  policy,
		now:     o.now,
		execute: o.execute,
	}
}

// Get returns the best known value for key, fetching synchronously only when
// there is no entry or the entry has passed the retention window.
func (f *Freshness[T]) Get(ctx context.Context, key Key, fetch FetchFunc[T]) Lookup[T] {
	entry, ok := f.current(ctx, key)
	if ok {
		if f.age(entry) >= f.policy.Freshness {
			f.revalidate(ctx, key, fetch)
			return lookupFrom(entry, true)
		}
		return lookupFrom(entry, false)
	}

	return lookupFrom(f.fill(ctx, key, fetch), false)
}

// fill loads a missing entry. A failed fetch is stored as a negative entry so
// an unreachable catalog is not retried until the entry goes stale.
func (f *Freshness[T]) fill(ctx context.Context, key Key, fetch FetchFunc[T]) Entry[T] {
	entry, err := f.load(ctx, key, fetch)
	if err != nil {
		if ctx.Err() != nil {
			// the caller left before the fetch finished; record nothing
			return Entry[T]{FetchedAt: f.now()}
		}

		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("key", key.String()).
			Msg("metadata fetch failed, recording as not found")

		entry = Entry[T]{FetchedAt: f.now()}
		f.put(ctx, key, entry)
	}

	return entry
}

// Peek never waits on the catalog. Without a usable entry it starts a
// background load and reports StatusPending.
func (f *Freshness[T]) Peek(ctx context.Context, key Key, fetch FetchFunc[T]) Lookup[T] {
	entry, ok := f.current(ctx, key)
	if !ok {
		bg := context.WithoutCancel(ctx)
		f.execute(func() { f.fill(bg, key, fetch) })
		return Lookup[T]{Status: StatusPending}
	}

	if f.age(entry) >= f.policy.Freshness {
		f.revalidate(ctx, key, fetch)
		return lookupFrom(entry, true)
	}

	return lookupFrom(entry, false)
}

func (f *Freshness[T]) age(entry Entry[T]) time.Duration {
	return f.now().Sub(entry.FetchedAt)
}

// current returns the stored entry for key if it is inside the retention
// window, discarding it otherwise. Store failures are treated as a miss.
func (f *Freshness[T]) current(ctx context.Context, key Key) (Entry[T], bool) {
	entry, found, err := f.store.Get(ctx, key.String())
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key.String()).Msg("metadata cache read failed")
		return Entry[T]{}, false
	}
	if !found {
		return Entry[T]{}, false
	}

	if f.age(entry) >= f.policy.Retention {
		if err := f.store.Invalidate(ctx, key.String()); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key.String()).Msg("metadata cache invalidation failed")
		}
		return Entry[T]{}, false
	}

	return entry, true
}

// load runs fetch at most once at a time per key and stores a successful
// outcome. Synchronous loads and background refreshes share the same call,
// which runs detached from ctx: a caller that is cancelled stops waiting but
// the fetch completes for everyone else.
func (f *Freshness[T]) load(ctx context.Context, key Key, fetch FetchFunc[T]) (Entry[T], error) {
	shared := context.WithoutCancel(ctx)

	ch := f.group.DoChan(key.String(), func() (any, error) {
		value, found, err := fetch(shared)
		if err != nil {
			return Entry[T]{}, err
		}

		entry := Entry[T]{Value: value, Found: found, FetchedAt: f.now()}
		f.put(shared, key, entry)

		return entry, nil
	})

	select {
	case res := <-ch:
		entry, _ := res.Val.(Entry[T])
		return entry, res.Err
	case <-ctx.Done():
		return Entry[T]{}, ctx.Err()
	}
}

func (f *Freshness[T]) revalidate(ctx context.Context, key Key, fetch FetchFunc[T]) {
	// the refresh outlives the request that triggered it
	bg := context.WithoutCancel(ctx)

	f.execute(func() {
		if _, err := f.load(bg, key, fetch); err != nil {
			zerolog.Ctx(bg).Warn().
				Err(err).
				Str("key", key.String()).
				Msg("background metadata refresh failed, keeping cached value")
		}
	})
}

func (f *Freshness[T]) put(ctx context.Context, key Key, entry Entry[T]) {
	if err := f.store.Set(ctx, key.String(), entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key.String()).Msg("metadata cache write failed")
	}
}
