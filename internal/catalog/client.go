package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fretlog/fretlog/internal/config"
	"github.com/fretlog/fretlog/internal/metadata"
	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// LookupError reports a search request that failed at the transport or HTTP
// status level, or whose response could not be decoded.
type LookupError struct {
	Query string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("catalog search for %q failed: %v", e.Query, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func (e *LookupError) Status() (int, string) {
	return http.StatusBadGateway, "catalog search failed"
}

// Client searches the catalog for artists and tracks, authenticating every
// request with the tokens it is given.
type Client struct {
	api *spotify.Client
}

var _ metadata.Searcher = (*Client)(nil)

// NewClient creates a catalog client. Requests pass through the rate limiter
// and then base, which is typically the instrumented outbound transport.
func NewClient(cfg config.CatalogConfig, tokens oauth2.TokenSource, base http.RoundTripper) *Client {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: tokens,
			Base:   NewRateLimitedTransport(base, cfg.RequestsPerSecond, cfg.RequestBurst),
		},
		Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
	}

	apiURL := cfg.APIURL
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	return &Client{
		api: spotify.New(httpClient,
			spotify.WithRetry(cfg.RetryRateLimited),
			spotify.WithBaseURL(apiURL),
		),
	}
}

// SearchArtist returns the catalog's best match for name. found is false when
// the catalog has no match.
func (c *Client) SearchArtist(ctx context.Context, name string) (metadata.ArtistMetadata, bool, error) {
	res, err := c.api.Search(ctx, name, spotify.SearchTypeArtist, spotify.Limit(1))
	if err != nil {
		return metadata.ArtistMetadata{}, false, searchError(name, err)
	}

	if res.Artists == nil || len(res.Artists.Artists) == 0 {
		zerolog.Ctx(ctx).Debug().Str("artist", name).Msg("no catalog match for artist")
		return metadata.ArtistMetadata{}, false, nil
	}

	return normalizeArtist(res.Artists.Artists[0]), true, nil
}

// SearchTrack returns the catalog's best match for a title by an artist.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (metadata.TrackMetadata, bool, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)

	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return metadata.TrackMetadata{}, false, searchError(query, err)
	}

	if res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		zerolog.Ctx(ctx).Debug().Str("title", title).Str("artist", artist).Msg("no catalog match for track")
		return metadata.TrackMetadata{}, false, nil
	}

	return normalizeTrack(res.Tracks.Tracks[0], artist), true, nil
}

// searchError keeps token failures distinguishable from search failures.
func searchError(query string, err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &LookupError{Query: query, Err: err}
}

func normalizeArtist(a spotify.FullArtist) metadata.ArtistMetadata {
	images := make([]metadata.Image, 0, len(a.Images))
	for _, img := range a.Images {
		images = append(images, metadata.Image{
			URL:    img.URL,
			Width:  int(img.Width),
			Height: int(img.Height),
		})
	}

	genres := a.Genres
	if genres == nil {
		genres = []string{}
	}

	return metadata.ArtistMetadata{
		ID:        string(a.ID),
		Name:      a.Name,
		Images:    images,
		Genres:    genres,
		Followers: int(a.Followers.Count),
	}
}

func normalizeTrack(t spotify.FullTrack, requestedArtist string) metadata.TrackMetadata {
	track := metadata.TrackMetadata{
		ID:         string(t.ID),
		Name:       t.Name,
		AlbumName:  t.Album.Name,
		ArtistName: requestedArtist,
	}

	if len(t.Album.Images) > 0 {
		track.AlbumImageURL = t.Album.Images[0].URL
	}

	if len(t.Artists) > 0 && t.Artists[0].Name != "" {
		track.ArtistName = t.Artists[0].Name
	}

	return track
}
