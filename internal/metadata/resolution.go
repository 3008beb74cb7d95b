package metadata

import (
	"context"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Result is a memoized resolution outcome. Found is false for a catalog
// lookup that completed without a match.
type Result[T any] struct {
	Value T
	Found bool
}

// FetchFunc performs one catalog lookup. A false found with a nil error is a
// definitive "no match".
type FetchFunc[T any] func(ctx context.Context) (value T, found bool, err error)

// Resolution memoizes catalog lookups for the lifetime of the process.
// Concurrent callers for the same key share one in-flight fetch. Successful
// outcomes, including "no match", are kept forever; failed fetches are not
// remembered.
type Resolution[T any] struct {
	cache   *otter.Cache[Key, Result[T]]
	counter *stats.Counter
}

// NewResolution creates an empty memo.
func NewResolution[T any]() *Resolution[T] {
	counter := stats.NewCounter()

	return &Resolution[T]{
		// no MaximumSize and no expiry: entries live as long as the process
		cache: otter.Must(&otter.Options[Key, Result[T]]{
			StatsRecorder: counter,
		}),
		counter: counter,
	}
}

// Resolve returns the memoized outcome for key, running fetch when there is
// none. Errors from fetch are returned to every caller sharing the call.
func (r *Resolution[T]) Resolve(ctx context.Context, key Key, fetch FetchFunc[T]) (T, bool, error) {
	result, err := r.cache.Get(ctx, key, otter.LoaderFunc[Key, Result[T]](func(ctx context.Context, _ Key) (Result[T], error) {
		value, found, err := fetch(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{Value: value, Found: found}, nil
	}))
	if err != nil {
		var zero T
		return zero, false, err
	}

	return result.Value, result.Found, nil
}

// Stats returns the memo's hit and miss counters.
func (r *Resolution[T]) Stats() stats.Stats {
	return r.counter.Snapshot()
}
