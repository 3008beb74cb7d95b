package metadata

import (
	"context"

	"github.com/fretlog/fretlog/internal/cache"
	"go.opentelemetry.io/otel"
)

// Searcher looks names up in the music catalog. A false found with a nil
// error means the catalog answered with no match.
type Searcher interface {
	SearchArtist(ctx context.Context, name string) (ArtistMetadata, bool, error)
	SearchTrack(ctx context.Context, title, artist string) (TrackMetadata, bool, error)
}

// Service is the entry point for presentation code. Each lookup passes
// through the freshness layer, then the resolution memo, and only then
// reaches the catalog.
type Service struct {
	searcher Searcher

	artistMemo *Resolution[ArtistMetadata]
	trackMemo  *Resolution[TrackMetadata]

	artists *Freshness[ArtistMetadata]
	tracks  *Freshness[TrackMetadata]
}

// NewService assembles the lookup layers over searcher. The stores hold the
// freshness entries for artists and tracks respectively.
func NewService(
	searcher Searcher,
	artistStore cache.Store[Entry[ArtistMetadata]],
	trackStore cache.Store[Entry[TrackMetadata]],
	policy Policy,
	opts ...FreshnessOption,
) *Service {
	s := &Service{
		searcher:   searcher,
		artistMemo: NewResolution[ArtistMetadata](),
		trackMemo:  NewResolution[TrackMetadata](),
		artists:    NewFreshness(artistStore, policy, opts...),
		tracks:     NewFreshness(trackStore, policy, opts...),
	}

	if _, err := cache.ObserveStats("artist_memo", s.artistMemo); err != nil {
		otel.Handle(err)
	}
	if _, err := cache.ObserveStats("track_memo", s.trackMemo); err != nil {
		otel.Handle(err)
	}

	return s
}

// Artist returns the best known metadata for an artist, waiting for the
// catalog only when nothing usable is cached.
func (s *Service) Artist(ctx context.Context, name string) Lookup[ArtistMetadata] {
	key, err := ArtistKey(name)
	if err != nil {
		return Lookup[ArtistMetadata]{Status: StatusDisabled}
	}

	return s.artists.Get(ctx, key, s.memoArtist(key, name))
}

// PeekArtist is Artist without waiting: a lookup with nothing cached reports
// StatusPending and completes in the background.
func (s *Service) PeekArtist(ctx context.Context, name string) Lookup[ArtistMetadata] {
	key, err := ArtistKey(name)
	if err != nil {
		return Lookup[ArtistMetadata]{Status: StatusDisabled}
	}

	return s.artists.Peek(ctx, key, s.memoArtist(key, name))
}

// Track returns the best known metadata for a track by an artist.
func (s *Service) Track(ctx context.Context, title, artist string) Lookup[TrackMetadata] {
	key, err := TrackKey(title, artist)
	if err != nil {
		return Lookup[TrackMetadata]{Status: StatusDisabled}
	}

	return s.tracks.Get(ctx, key, func(ctx context.Context) (TrackMetadata, bool, error) {
		return s.trackMemo.Resolve(ctx, key, s.fetchTrack(title, artist))
	})
}

func (s *Service) memoArtist(key Key, name string) FetchFunc[ArtistMetadata] {
	return func(ctx context.Context) (ArtistMetadata, bool, error) {
		return s.artistMemo.Resolve(ctx, key, s.fetchArtist(name))
	}
}

func (s *Service) fetchArtist(name string) FetchFunc[ArtistMetadata] {
	return func(ctx context.Context) (ArtistMetadata, bool, error) {
		return s.searcher.SearchArtist(ctx, name)
	}
}

func (s *Service) fetchTrack(title, artist string) FetchFunc[TrackMetadata] {
	return func(ctx context.Context) (TrackMetadata, bool, error) {
		return s.searcher.SearchTrack(ctx, title, artist)
	}
}
