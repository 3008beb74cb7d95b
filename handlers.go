package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fretlog/fretlog/internal/audit"
	"github.com/fretlog/fretlog/internal/metadata"
	"github.com/fretlog/fretlog/internal/songs"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// MetadataLookup is the part of metadata.Service the handlers depend on.
type MetadataLookup interface {
	Artist(ctx context.Context, name string) metadata.Lookup[metadata.ArtistMetadata]
	PeekArtist(ctx context.Context, name string) metadata.Lookup[metadata.ArtistMetadata]
	Track(ctx context.Context, title, artist string) metadata.Lookup[metadata.TrackMetadata]
}

// artistIndexConcurrency bounds the metadata lookups made for one artist
// index request.
const artistIndexConcurrency = 8

type imageVariants struct {
	Large  string `json:"large,omitempty"`
	Medium string `json:"medium,omitempty"`
	Small  string `json:"small,omitempty"`
}

type artistResponse struct {
	Status    metadata.Status          `json:"status"`
	Stale     bool                     `json:"stale,omitempty"`
	FetchedAt *time.Time               `json:"fetched_at,omitempty"`
	Artist    *metadata.ArtistMetadata `json:"artist,omitempty"`
	Images    imageVariants            `json:"images"`
}

type trackResponse struct {
	Status    metadata.Status         `json:"status"`
	Stale     bool                    `json:"stale,omitempty"`
	FetchedAt *time.Time              `json:"fetched_at,omitempty"`
	Track     *metadata.TrackMetadata `json:"track,omitempty"`
}

type songResponse struct {
	songs.Song
	ProgressBand songs.ProgressBand `json:"progress_band"`
}

type songsResponse struct {
	Songs []songResponse `json:"songs"`
}

type artistIndexEntry struct {
	Name      string          `json:"name"`
	SongCount int             `json:"song_count"`
	Status    metadata.Status `json:"status"`
	ImageURL  string          `json:"image_url,omitempty"`
	Genre     string          `json:"genre,omitempty"`
}

type artistIndexResponse struct {
	Artists []artistIndexEntry `json:"artists"`
}

type artistPageResponse struct {
	Name     string          `json:"name"`
	Status   metadata.Status `json:"status"`
	ImageURL string          `json:"image_url,omitempty"`
	Genres   []string        `json:"genres"`
	Songs    []songResponse  `json:"songs"`
}

func fetchedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newArtistResponse(lookup metadata.Lookup[metadata.ArtistMetadata]) artistResponse {
	res := artistResponse{
		Status:    lookup.Status,
		Stale:     lookup.Stale,
		FetchedAt: fetchedAt(lookup.FetchedAt),
	}

	if lookup.Found() {
		artist := lookup.Value
		res.Artist = &artist
		res.Images.Large, _ = artist.ImageURL(metadata.ImageLarge)
		res.Images.Medium, _ = artist.ImageURL(metadata.ImageMedium)
		res.Images.Small, _ = artist.ImageURL(metadata.ImageSmall)
	}

	return res
}

func newSongResponses(list []songs.Song) []songResponse {
	out := make([]songResponse, 0, len(list))
	for _, song := range list {
		out = append(out, songResponse{Song: song, ProgressBand: songs.BandFor(song.Progress)})
	}
	return out
}

func handleGetArtist(lookup MetadataLookup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		name := r.PathValue("artist")
		artist := lookup.Artist(r.Context(), name)
		auditArtist(r.Context(), name, artist)

		writeJSON(w, http.StatusOK, newArtistResponse(artist))
	})
}

func handleGetTrack(lookup MetadataLookup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		q := r.URL.Query()
		track := lookup.Track(r.Context(), q.Get("title"), q.Get("artist"))
		audit.Log(r.Context()).AddLookup("track", q.Get("title")+" / "+q.Get("artist"), string(track.Status), track.Stale)

		res := trackResponse{
			Status:    track.Status,
			Stale:     track.Stale,
			FetchedAt: fetchedAt(track.FetchedAt),
		}
		if track.Found() {
			res.Track = &track.Value
		}

		writeJSON(w, http.StatusOK, res)
	})
}

func handleGetCategories() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		writeJSON(w, http.StatusOK, map[string][]songs.Category{
			"categories": songs.Categories(),
		})
	})
}

func handleListSongs(store songs.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		user := r.PathValue("user")
		audit.Log(r.Context()).Song(user, "list", "")

		list, err := store.List(r.Context(), user)
		if err != nil {
			storeFailure(w, r, err)
			return
		}

		if slug := r.URL.Query().Get("category"); slug != "" {
			category, ok := songs.CategoryBySlug(slug)
			if !ok {
				writeJSONError(w, http.StatusBadRequest, "unknown category")
				return
			}
			list = songs.InCategory(list, category.ID)
		}

		writeJSON(w, http.StatusOK, songsResponse{Songs: newSongResponses(list)})
	})
}

func handleCreateSong(store songs.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		var song songs.Song
		if err := decodeBody(r, &song); err != nil {
			log.Info().Err(err).Msg("invalid song in request")
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user := r.PathValue("user")
		entry := audit.Log(r.Context())
		entry.Song(user, "create", "")

		created, err := store.Create(r.Context(), user, song)
		if err != nil {
			storeFailure(w, r, err)
			return
		}
		entry.Song(user, "create", created.ID)

		writeJSON(w, http.StatusCreated, songResponse{Song: created, ProgressBand: songs.BandFor(created.Progress)})
	})
}

func handleUpdateSong(store songs.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		var update songs.SongUpdate
		if err := decodeBody(r, &update); err != nil {
			log.Info().Err(err).Msg("invalid song update in request")
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, id := r.PathValue("user"), r.PathValue("id")
		audit.Log(r.Context()).Song(user, "update", id)

		updated, err := store.Update(r.Context(), user, id, update)
		if err != nil {
			storeFailure(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, songResponse{Song: updated, ProgressBand: songs.BandFor(updated.Progress)})
	})
}

func handleDeleteSong(store songs.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		user, id := r.PathValue("user"), r.PathValue("id")
		audit.Log(r.Context()).Song(user, "delete", id)

		err := store.Delete(r.Context(), user, id)
		if err != nil {
			storeFailure(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// handleListArtists builds the user's artist index. With wait=false, artists
// with nothing cached are reported as pending rather than fetched inline.
func handleListArtists(store songs.Store, lookup MetadataLookup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		user := r.PathValue("user")
		audit.Log(r.Context()).Song(user, "list", "")

		list, err := store.List(r.Context(), user)
		if err != nil {
			storeFailure(w, r, err)
			return
		}

		find := lookup.Artist
		if r.URL.Query().Get("wait") == "false" {
			find = lookup.PeekArtist
		}

		summaries := songs.ArtistSummaries(list)
		entries := make([]artistIndexEntry, len(summaries))

		var g errgroup.Group
		g.SetLimit(artistIndexConcurrency)
		for i, summary := range summaries {
			g.Go(func() error {
				artist := find(r.Context(), summary.Name)
				auditArtist(r.Context(), summary.Name, artist)

				entry := artistIndexEntry{
					Name:      summary.Name,
					SongCount: summary.SongCount,
					Status:    artist.Status,
				}
				if artist.Found() {
					entry.ImageURL, _ = artist.Value.ImageURL(metadata.ImageMedium)
					if genres := artist.Value.TopGenres(1); len(genres) > 0 {
						entry.Genre = genres[0]
					}
				}

				entries[i] = entry
				return nil
			})
		}
		_ = g.Wait()

		writeJSON(w, http.StatusOK, artistIndexResponse{Artists: entries})
	})
}

func handleGetArtistPage(store songs.Store, lookup MetadataLookup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		user := r.PathValue("user")
		audit.Log(r.Context()).Song(user, "list", "")

		list, err := store.List(r.Context(), user)
		if err != nil {
			storeFailure(w, r, err)
			return
		}

		name := r.PathValue("artist")
		artist := lookup.Artist(r.Context(), name)
		auditArtist(r.Context(), name, artist)

		page := artistPageResponse{
			Name:   name,
			Status: artist.Status,
			Genres: []string{},
			Songs:  newSongResponses(songs.SongsByArtist(list, name)),
		}
		if artist.Found() {
			page.ImageURL, _ = artist.Value.ImageURL(metadata.ImageLarge)
			page.Genres = artist.Value.TopGenres(3)
		}

		writeJSON(w, http.StatusOK, page)
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := http.MaxBytesHandler(next, limit)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// a limited nil body panics on read
			if r.Body == nil {
				r.Body = http.NoBody
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// decodeBody reads a single JSON document from the request. Unknown fields
// are rejected so misspelled song fields are not silently dropped.
func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// storeFailure records a song store error and writes the status it maps to.
func storeFailure(w http.ResponseWriter, r *http.Request, err error) {
	audit.Log(r.Context()).Fail(err)

	status, message := errorStatus(err)
	log.Info().Err(err).Int("status", status).Msg("song store request failed")
	writeJSONError(w, status, message)
}

func auditArtist(ctx context.Context, name string, artist metadata.Lookup[metadata.ArtistMetadata]) {
	audit.Log(ctx).AddLookup("artist", name, string(artist.Status), artist.Stale)
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes payload as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	marshalled, err := json.Marshal(payload)
	if err != nil {
		log.Info().Err(err).Msg("failed to marshal response")
		requestError(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(marshalled); err != nil {
		// record failure to log: trying to respond to the client at this
		// point will likely fail
		log.Info().Msgf("failed to write response: %v", err)
	}
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5MB max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
