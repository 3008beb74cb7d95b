package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fretlog/fretlog/internal/cache"
	"github.com/fretlog/fretlog/internal/metadata"
	"github.com/fretlog/fretlog/internal/songs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCatalogDown = errors.New("catalog unavailable")

// stubSearcher answers artists by name ignoring case and tracks by exact
// title.
type stubSearcher struct {
	artists map[string]metadata.ArtistMetadata
	tracks  map[string]metadata.TrackMetadata
	failing bool
	calls   atomic.Int32
}

func (s *stubSearcher) SearchArtist(_ context.Context, name string) (metadata.ArtistMetadata, bool, error) {
	s.calls.Add(1)
	if s.failing {
		return metadata.ArtistMetadata{}, false, errCatalogDown
	}
	for known, a := range s.artists {
		if strings.EqualFold(known, name) {
			return a, true, nil
		}
	}
	return metadata.ArtistMetadata{}, false, nil
}

func (s *stubSearcher) SearchTrack(_ context.Context, title, artist string) (metadata.TrackMetadata, bool, error) {
	s.calls.Add(1)
	if s.failing {
		return metadata.TrackMetadata{}, false, errCatalogDown
	}
	t, ok := s.tracks[title]
	if ok && t.ArtistName == "" {
		t.ArtistName = artist
	}
	return t, ok, nil
}

func radiohead() metadata.ArtistMetadata {
	return metadata.ArtistMetadata{
		ID:   "4Z8W4fKeB5YxbusRsdQVPb",
		Name: "Radiohead",
		Images: []metadata.Image{
			{URL: "https://i.scdn.co/image/640", Width: 640, Height: 640},
			{URL: "https://i.scdn.co/image/320", Width: 320, Height: 320},
			{URL: "https://i.scdn.co/image/160", Width: 160, Height: 160},
		},
		Genres:    []string{"art rock", "alternative", "permanent wave", "rock"},
		Followers: 9_000_000,
	}
}

type testAPI struct {
	handler  http.Handler
	store    *songs.MemoryStore
	searcher *stubSearcher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	searcher := &stubSearcher{
		artists: map[string]metadata.ArtistMetadata{"Radiohead": radiohead()},
		tracks: map[string]metadata.TrackMetadata{
			"Creep": {ID: "70LcF31zb1H0PyJoS1Sx1r", Name: "Creep", AlbumName: "Pablo Honey", AlbumImageURL: "https://i.scdn.co/image/album"},
		},
	}

	artists, err := cache.NewMemory[metadata.Entry[metadata.ArtistMetadata]](time.Hour, 100)
	require.NoError(t, err)
	tracks, err := cache.NewMemory[metadata.Entry[metadata.TrackMetadata]](time.Hour, 100)
	require.NoError(t, err)

	svc := metadata.NewService(searcher, artists, tracks, metadata.DefaultPolicy)
	store := songs.NewMemoryStore()

	return &testAPI{
		handler:  configureServerRoutes(svc, store),
		store:    store,
		searcher: searcher,
	}
}

func (api *testAPI) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)
	return rr
}

func (api *testAPI) addSong(t *testing.T, user, title, artist string) songs.Song {
	t.Helper()

	song, err := api.store.Create(context.Background(), user, songs.Song{Title: title, Artist: artist})
	require.NoError(t, err)
	return song
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHandleGetArtist_Found(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/artists/Radiohead", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	res := decode[artistResponse](t, rr)
	assert.Equal(t, metadata.StatusFound, res.Status)
	assert.False(t, res.Stale)
	assert.NotNil(t, res.FetchedAt)
	require.NotNil(t, res.Artist)
	assert.Equal(t, "Radiohead", res.Artist.Name)
	assert.Equal(t, imageVariants{
		Large:  "https://i.scdn.co/image/640",
		Medium: "https://i.scdn.co/image/320",
		Small:  "https://i.scdn.co/image/160",
	}, res.Images)
}

func TestHandleGetArtist_CaseInsensitiveLookupsShareFetch(t *testing.T) {
	api := newTestAPI(t)

	api.do(t, http.MethodGet, "/artists/Radiohead", nil)
	rr := api.do(t, http.MethodGet, "/artists/RADIOHEAD", nil)

	res := decode[artistResponse](t, rr)
	assert.Equal(t, metadata.StatusFound, res.Status)
	assert.Equal(t, int32(1), api.searcher.calls.Load())
}

func TestHandleGetArtist_NotFoundIsNotAnError(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/artists/Nobody", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	res := decode[artistResponse](t, rr)
	assert.Equal(t, metadata.StatusNotFound, res.Status)
	assert.Nil(t, res.Artist)
	assert.Equal(t, imageVariants{}, res.Images)
}

func TestHandleGetArtist_CatalogOutageIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.searcher.failing = true

	rr := api.do(t, http.MethodGet, "/artists/Radiohead", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, metadata.StatusNotFound, decode[artistResponse](t, rr).Status)
}

func TestHandleGetTrack(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/tracks?title=Creep&artist=Radiohead", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	res := decode[trackResponse](t, rr)
	assert.Equal(t, metadata.StatusFound, res.Status)
	require.NotNil(t, res.Track)
	assert.Equal(t, "Pablo Honey", res.Track.AlbumName)
	assert.Equal(t, "Radiohead", res.Track.ArtistName)
}

func TestHandleGetTrack_MissingParametersAreDisabled(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/tracks?title=Creep", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	res := decode[trackResponse](t, rr)
	assert.Equal(t, metadata.StatusDisabled, res.Status)
	assert.Nil(t, res.FetchedAt)
	assert.Zero(t, api.searcher.calls.Load())
}

func TestHandleGetCategories(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/categories", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	res := decode[map[string][]songs.Category](t, rr)
	assert.Equal(t, songs.Categories(), res["categories"])
}

func TestHandleSongs_CreateListUpdateDelete(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/users/ada/songs",
		strings.NewReader(`{"title":"Creep","artist":"Radiohead","progress":45,"song_link_youtube":"https://youtu.be/XFkzRNyygfk"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	created := decode[songResponse](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, songs.DefaultCategory().ID, created.Category)
	assert.Equal(t, songs.ProgressMedium, created.ProgressBand)

	rr = api.do(t, http.MethodPatch, "/users/ada/songs/"+created.ID, strings.NewReader(`{"progress":90,"category":"learned"}`))
	require.Equal(t, http.StatusOK, rr.Code)

	updated := decode[songResponse](t, rr)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 90, updated.Progress)
	assert.Equal(t, songs.ProgressHigh, updated.ProgressBand)
	assert.Equal(t, "Creep", updated.Title)

	rr = api.do(t, http.MethodGet, "/users/ada/songs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decode[songsResponse](t, rr)
	require.Len(t, listed.Songs, 1)
	assert.Equal(t, "learned", listed.Songs[0].Category)

	rr = api.do(t, http.MethodDelete, "/users/ada/songs/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(t, http.MethodGet, "/users/ada/songs", nil)
	assert.Empty(t, decode[songsResponse](t, rr).Songs)
}

func TestHandleListSongs_NewestFirstAndCategoryFilter(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	first := api.addSong(t, "ada", "Creep", "Radiohead")
	_, err := api.store.Create(ctx, "ada", songs.Song{Title: "Blackbird", Artist: "The Beatles", Category: "learned"})
	require.NoError(t, err)

	rr := api.do(t, http.MethodGet, "/users/ada/songs", nil)
	listed := decode[songsResponse](t, rr)
	require.Len(t, listed.Songs, 2)
	assert.Equal(t, "Blackbird", listed.Songs[0].Title)
	assert.Equal(t, first.ID, listed.Songs[1].ID)

	rr = api.do(t, http.MethodGet, "/users/ada/songs?category=learned", nil)
	filtered := decode[songsResponse](t, rr)
	require.Len(t, filtered.Songs, 1)
	assert.Equal(t, "Blackbird", filtered.Songs[0].Title)
}

func TestHandleListSongs_UnknownCategory(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/users/ada/songs?category=someday", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrorResponse{Error: "unknown category"}, decode[ErrorResponse](t, rr))
}

func TestHandleCreateSong_Failures(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{
			name:    "malformed JSON",
			body:    `{"title":`,
			status:  http.StatusBadRequest,
			message: "invalid request body",
		},
		{
			name:    "unknown field",
			body:    `{"title":"Creep","artist":"Radiohead","rating":5}`,
			status:  http.StatusBadRequest,
			message: "invalid request body",
		},
		{
			name:    "missing title",
			body:    `{"artist":"Radiohead"}`,
			status:  http.StatusBadRequest,
			message: "invalid title: must not be empty",
		},
		{
			name:   "invalid link",
			body:   `{"title":"Creep","artist":"Radiohead","tabs_link":"not a url"}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)

			rr := api.do(t, http.MethodPost, "/users/ada/songs", strings.NewReader(tc.body))

			assert.Equal(t, tc.status, rr.Code)
			res := decode[ErrorResponse](t, rr)
			if tc.message != "" {
				assert.Equal(t, tc.message, res.Error)
			} else {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestHandleUpdateSong_NotFound(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPatch, "/users/ada/songs/missing", strings.NewReader(`{"progress":10}`))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "song not found", decode[ErrorResponse](t, rr).Error)
}

func TestHandleDeleteSong_OtherUsersSongsAreNotVisible(t *testing.T) {
	api := newTestAPI(t)
	song := api.addSong(t, "ada", "Creep", "Radiohead")

	rr := api.do(t, http.MethodDelete, "/users/grace/songs/"+song.ID, nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleListArtists(t *testing.T) {
	api := newTestAPI(t)
	api.addSong(t, "ada", "Demo", "Unknown Band")
	api.addSong(t, "ada", "Karma Police", "radiohead")
	api.addSong(t, "ada", "Creep", "Radiohead")

	rr := api.do(t, http.MethodGet, "/users/ada/artists", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	res := decode[artistIndexResponse](t, rr)
	assert.Equal(t, []artistIndexEntry{
		{
			Name:      "Radiohead",
			SongCount: 2,
			Status:    metadata.StatusFound,
			ImageURL:  "https://i.scdn.co/image/320",
			Genre:     "art rock",
		},
		{
			Name:      "Unknown Band",
			SongCount: 1,
			Status:    metadata.StatusNotFound,
		},
	}, res.Artists)
}

func TestHandleListArtists_NoWaitReportsPending(t *testing.T) {
	api := newTestAPI(t)
	api.addSong(t, "ada", "Creep", "Radiohead")

	rr := api.do(t, http.MethodGet, "/users/ada/artists?wait=false", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	res := decode[artistIndexResponse](t, rr)
	require.Len(t, res.Artists, 1)
	assert.Equal(t, metadata.StatusPending, res.Artists[0].Status)

	// the background fill completes and later requests see the value
	require.Eventually(t, func() bool {
		rr := api.do(t, http.MethodGet, "/users/ada/artists?wait=false", nil)
		res := decode[artistIndexResponse](t, rr)
		return len(res.Artists) == 1 && res.Artists[0].Status == metadata.StatusFound
	}, time.Second, 5*time.Millisecond)
}

func TestHandleListArtists_Empty(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/users/ada/artists", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"artists":[]}`, rr.Body.String())
}

func TestHandleGetArtistPage(t *testing.T) {
	api := newTestAPI(t)
	api.addSong(t, "ada", "Creep", "Radiohead")
	api.addSong(t, "ada", "Blackbird", "The Beatles")
	api.addSong(t, "ada", "No Surprises", "RADIOHEAD")

	rr := api.do(t, http.MethodGet, "/users/ada/artists/radiohead", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	page := decode[artistPageResponse](t, rr)
	assert.Equal(t, "radiohead", page.Name)
	assert.Equal(t, metadata.StatusFound, page.Status)
	assert.Equal(t, "https://i.scdn.co/image/640", page.ImageURL)
	assert.Equal(t, []string{"art rock", "alternative", "permanent wave"}, page.Genres)

	require.Len(t, page.Songs, 2)
	assert.Equal(t, "No Surprises", page.Songs[0].Title)
	assert.Equal(t, "Creep", page.Songs[1].Title)
}

func TestHandleGetArtistPage_UnknownArtist(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/users/ada/artists/Nobody", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	page := decode[artistPageResponse](t, rr)
	assert.Equal(t, metadata.StatusNotFound, page.Status)
	assert.Empty(t, page.ImageURL)
	assert.Equal(t, []string{}, page.Genres)
	assert.Equal(t, []songResponse{}, page.Songs)
}

func TestHandleHealthCheck_Success(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/healthcheck", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "OK", rr.Body.String())
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "unauthenticated",
			err:     &songs.PersistenceError{Op: "list", Err: songs.ErrUnauthenticated},
			status:  http.StatusUnauthorized,
			message: "not authenticated",
		},
		{
			name:    "wrapped validation",
			err:     &songs.PersistenceError{Op: "create", Err: songs.ValidationError{Field: "progress", Reason: "must be between 0 and 100"}},
			status:  http.StatusBadRequest,
			message: "invalid progress: must be between 0 and 100",
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			message: "Internal Server Error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := errorStatus(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, message)
		})
	}
}

func TestMaxRequestSizeMiddleware(t *testing.T) {
	mw := maxRequestSize(10)

	var readError error
	var readBytes int64

	innerHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readBytes, readError = io.CopyN(io.Discard, r.Body, 5*1024*1024)

		status := http.StatusOK
		if readError != nil {
			status = http.StatusBadRequest
		}

		w.WriteHeader(status)
	})

	handler := mw(innerHandler)

	body := bytes.NewBufferString("0123456789n123456789")
	req, err := http.NewRequest("POST", "/users/ada/songs", body)
	require.NoError(t, err)

	rr := httptest.NewRecorder()

	// act
	handler.ServeHTTP(rr, req)

	// assert
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.ErrorContains(t, readError, "http: request body too large")
	assert.Equal(t, int64(10), readBytes)
	assert.Equal(t, "", rr.Body.String())
}

func TestMaxRequestSizeMiddleware_NilBody(t *testing.T) {
	handler := maxRequestSize(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	req, err := http.NewRequest(http.MethodGet, "/artists/radiohead", nil)
	require.NoError(t, err)
	require.Nil(t, req.Body)

	rr := httptest.NewRecorder()

	assert.NotPanics(t, func() { handler.ServeHTTP(rr, req) })
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleGetArtist_RequestWithoutBody(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, "/artists/Radiohead", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleCreateSong_BodyTooLarge(t *testing.T) {
	api := newTestAPI(t)

	notes := strings.Repeat("x", 21<<10)
	body := `{"title":"Creep","artist":"Radiohead","notes":"` + notes + `"}`

	rr := api.do(t, http.MethodPost, "/users/ada/songs", strings.NewReader(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
