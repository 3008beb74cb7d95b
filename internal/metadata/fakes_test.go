package metadata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errCatalogDown = errors.New("catalog unavailable")

// fakeSearcher answers from fixed maps and counts calls. Names absent from the
// map are not found; names in failing return errCatalogDown.
type fakeSearcher struct {
	artists map[string]ArtistMetadata
	tracks  map[string]TrackMetadata
	failing map[string]bool

	artistCalls atomic.Int32
	trackCalls  atomic.Int32
}

func (f *fakeSearcher) SearchArtist(_ context.Context, name string) (ArtistMetadata, bool, error) {
	f.artistCalls.Add(1)
	if f.failing[name] {
		return ArtistMetadata{}, false, errCatalogDown
	}
	artist, ok := f.artists[name]
	return artist, ok, nil
}

func (f *fakeSearcher) SearchTrack(_ context.Context, title, artist string) (TrackMetadata, bool, error) {
	f.trackCalls.Add(1)
	if f.failing[title] {
		return TrackMetadata{}, false, errCatalogDown
	}
	track, ok := f.tracks[title]
	if ok && track.ArtistName == "" {
		track.ArtistName = artist
	}
	return track, ok, nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// deferredExecutor queues background work until the test runs it.
type deferredExecutor struct {
	mu    sync.Mutex
	queue []func()
}

func (e *deferredExecutor) Execute(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, fn)
}

func (e *deferredExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *deferredExecutor) RunAll() {
	e.mu.Lock()
	queue := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}
