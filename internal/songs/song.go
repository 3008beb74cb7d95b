// Package songs holds the song-tracking model and the persistence capability
// the service depends on, along with an in-memory store for development.
package songs

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Link is a labelled external resource such as a lesson video or tab.
type Link struct {
	URL   string `json:"url" yaml:"url"`
	Label string `json:"label" yaml:"label"`
}

// Song is one entry in a user's learning list. Category holds a category ID.
type Song struct {
	ID              string    `json:"id" yaml:"id"`
	Title           string    `json:"title" yaml:"title"`
	Artist          string    `json:"artist" yaml:"artist"`
	LessonLink      string    `json:"lesson_link,omitempty" yaml:"lesson_link"`
	LessonLinks     []Link    `json:"lesson_links,omitempty" yaml:"lesson_links"`
	SongLinkYoutube string    `json:"song_link_youtube,omitempty" yaml:"song_link_youtube"`
	SongLinkSpotify string    `json:"song_link_spotify,omitempty" yaml:"song_link_spotify"`
	TabsLink        string    `json:"tabs_link,omitempty" yaml:"tabs_link"`
	TabsLinks       []Link    `json:"tabs_links,omitempty" yaml:"tabs_links"`
	TabsPDFURL      string    `json:"tabs_pdf_url,omitempty" yaml:"tabs_pdf_url"`
	Notes           string    `json:"notes,omitempty" yaml:"notes"`
	Progress        int       `json:"progress" yaml:"progress"`
	Category        string    `json:"category" yaml:"category"`
	Tuning          string    `json:"tuning,omitempty" yaml:"tuning"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// SongUpdate is a partial change to a song. Nil fields are left unchanged.
type SongUpdate struct {
	Title           *string `json:"title,omitempty"`
	Artist          *string `json:"artist,omitempty"`
	LessonLink      *string `json:"lesson_link,omitempty"`
	LessonLinks     *[]Link `json:"lesson_links,omitempty"`
	SongLinkYoutube *string `json:"song_link_youtube,omitempty"`
	SongLinkSpotify *string `json:"song_link_spotify,omitempty"`
	TabsLink        *string `json:"tabs_link,omitempty"`
	TabsLinks       *[]Link `json:"tabs_links,omitempty"`
	TabsPDFURL      *string `json:"tabs_pdf_url,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	Progress        *int    `json:"progress,omitempty"`
	Category        *string `json:"category,omitempty"`
	Tuning          *string `json:"tuning,omitempty"`
}

// Apply returns a copy of song with the update applied.
func (u SongUpdate) Apply(song Song) Song {
	set(&song.Title, u.Title)
	set(&song.Artist, u.Artist)
	set(&song.LessonLink, u.LessonLink)
	set(&song.LessonLinks, u.LessonLinks)
	set(&song.SongLinkYoutube, u.SongLinkYoutube)
	set(&song.SongLinkSpotify, u.SongLinkSpotify)
	set(&song.TabsLink, u.TabsLink)
	set(&song.TabsLinks, u.TabsLinks)
	set(&song.TabsPDFURL, u.TabsPDFURL)
	set(&song.Notes, u.Notes)
	set(&song.Progress, u.Progress)
	set(&song.Category, u.Category)
	set(&song.Tuning, u.Tuning)
	return song
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ValidationError reports a song field that cannot be stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Status() (int, string) {
	return http.StatusBadRequest, e.Error()
}

// Normalize fills defaults and checks the song can be stored. An empty
// category becomes the default category.
func (s *Song) Normalize() error {
	if s.Title == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}

	if s.Artist == "" {
		return ValidationError{Field: "artist", Reason: "must not be empty"}
	}

	if s.Progress < 0 || s.Progress > 100 {
		return ValidationError{Field: "progress", Reason: "must be between 0 and 100"}
	}

	if s.Category == "" {
		s.Category = DefaultCategory().ID
	}
	if _, ok := CategoryByID(s.Category); !ok {
		return ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s.Category)}
	}

	urls := []struct{ field, value string }{
		{"lesson_link", s.LessonLink},
		{"song_link_youtube", s.SongLinkYoutube},
		{"song_link_spotify", s.SongLinkSpotify},
		{"tabs_link", s.TabsLink},
		{"tabs_pdf_url", s.TabsPDFURL},
	}
	for _, u := range urls {
		if u.value != "" && !ValidURL(u.value) {
			return ValidationError{Field: u.field, Reason: "must be an absolute URL"}
		}
	}

	for _, link := range append(append([]Link{}, s.LessonLinks...), s.TabsLinks...) {
		if !ValidURL(link.URL) {
			return ValidationError{Field: "links", Reason: fmt.Sprintf("%q is not an absolute URL", link.URL)}
		}
	}

	return nil
}

// ValidURL reports whether raw parses as an absolute URL.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && (u.Host != "" || u.Opaque != "")
}

// ProgressBand groups a progress percentage for display.
type ProgressBand string

const (
	ProgressLow    ProgressBand = "low"
	ProgressMedium ProgressBand = "medium"
	ProgressHigh   ProgressBand = "high"
)

func BandFor(progress int) ProgressBand {
	switch {
	case progress < 30:
		return ProgressLow
	case progress < 70:
		return ProgressMedium
	default:
		return ProgressHigh
	}
}
