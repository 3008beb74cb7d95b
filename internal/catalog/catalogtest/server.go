// Package catalogtest provides a fake music catalog for tests: a client
// credentials token endpoint and a search endpoint returning Web API shaped
// responses.
package catalogtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	ClientID     = "test-client-id"
	ClientSecret = "test-client-secret"
)

// Artist is the fixture form of a catalog artist.
type Artist struct {
	ID        string
	Name      string
	Genres    []string
	Followers int
	Images    []Image
}

type Image struct {
	URL    string
	Width  int
	Height int
}

// Track is the fixture form of a catalog track.
type Track struct {
	ID          string
	Name        string
	AlbumName   string
	AlbumImages []Image
	Artists     []string
}

// Server is a configurable fake catalog. Fields may be changed between
// requests; counters are safe for concurrent use.
type Server struct {
	Server *httptest.Server

	// AccessToken and ExpiresIn shape the token response.
	AccessToken string
	ExpiresIn   int

	// TokenStatus and SearchStatus override the response status when not 200.
	TokenStatus  int
	SearchStatus int

	// Artists and Tracks map the exact search query to the result.
	Artists map[string]Artist
	Tracks  map[string]Track

	TokenRequests  atomic.Int32
	SearchRequests atomic.Int32

	mu         sync.Mutex
	lastQuery  string
	lastType   string
	lastLimit  string
	lastBearer string
}

// URLs for wiring a catalog client at the fake.
func (s *Server) TokenURL() string { return s.Server.URL + "/api/token" }
func (s *Server) APIURL() string   { return s.Server.URL + "/v1/" }

// LastSearch returns the q, type and limit parameters of the latest search
// together with the bearer token it carried.
func (s *Server) LastSearch() (query, searchType, limit, bearer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery, s.lastType, s.lastLimit, s.lastBearer
}

// NewServer starts a fake catalog that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()

	mock := &Server{
		AccessToken:  "test-access-token",
		ExpiresIn:    3600,
		TokenStatus:  http.StatusOK,
		SearchStatus: http.StatusOK,
		Artists:      map[string]Artist{},
		Tracks:       map[string]Track{},
	}

	router := http.NewServeMux()
	router.HandleFunc("POST /api/token", mock.handleToken)
	router.HandleFunc("GET /v1/search", mock.handleSearch)

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)

	return mock
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	n := s.TokenRequests.Add(1)

	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		writeStatusJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeStatusJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	if s.TokenStatus != http.StatusOK {
		writeStatusJSON(w, s.TokenStatus, map[string]string{"error": "server_error"})
		return
	}

	WriteJSON(w, map[string]any{
		"access_token": fmt.Sprintf("%s-%d", s.AccessToken, n),
		"token_type":   "Bearer",
		"expires_in":   s.ExpiresIn,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.SearchRequests.Add(1)

	q := r.URL.Query()
	s.mu.Lock()
	s.lastQuery = q.Get("q")
	s.lastType = q.Get("type")
	s.lastLimit = q.Get("limit")
	s.lastBearer = r.Header.Get("Authorization")
	s.mu.Unlock()

	if s.SearchStatus != http.StatusOK {
		writeStatusJSON(w, s.SearchStatus, map[string]any{
			"error": map[string]any{"status": s.SearchStatus, "message": "search failed"},
		})
		return
	}

	switch q.Get("type") {
	case "artist":
		items := []any{}
		if a, ok := s.Artists[q.Get("q")]; ok {
			items = append(items, artistJSON(a))
		}
		WriteJSON(w, map[string]any{"artists": page(items)})

	case "track":
		items := []any{}
		if t, ok := s.Tracks[q.Get("q")]; ok {
			items = append(items, trackJSON(t))
		}
		WriteJSON(w, map[string]any{"tracks": page(items)})

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func page(items []any) map[string]any {
	return map[string]any{
		"href":   "https://api.spotify.com/v1/search",
		"items":  items,
		"limit":  1,
		"offset": 0,
		"total":  len(items),
	}
}

func imagesJSON(images []Image) []any {
	out := make([]any, 0, len(images))
	for _, img := range images {
		out = append(out, map[string]any{"url": img.URL, "width": img.Width, "height": img.Height})
	}
	return out
}

func artistJSON(a Artist) map[string]any {
	body := map[string]any{
		"id":        a.ID,
		"name":      a.Name,
		"type":      "artist",
		"followers": map[string]any{"href": nil, "total": a.Followers},
		"images":    imagesJSON(a.Images),
	}
	// the Web API omits empty genre lists for some artists
	if a.Genres != nil {
		body["genres"] = a.Genres
	}
	return body
}

func trackJSON(t Track) map[string]any {
	artists := make([]any, 0, len(t.Artists))
	for _, name := range t.Artists {
		artists = append(artists, map[string]any{"name": name, "type": "artist"})
	}

	return map[string]any{
		"id":      t.ID,
		"name":    t.Name,
		"type":    "track",
		"artists": artists,
		"album": map[string]any{
			"name":   t.AlbumName,
			"images": imagesJSON(t.AlbumImages),
		},
	}
}

func writeStatusJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteJSON encodes payload as the response body.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
