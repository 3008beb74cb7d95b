// Package metadata resolves artist and track names to catalog metadata and
// caches the outcome at two levels: a process-lifetime resolution memo and a
// freshness layer that serves stale values while revalidating them.
package metadata

import "slices"

// Image is one rendition of an artwork image.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ArtistMetadata is the normalized catalog record for an artist. Images are
// ordered largest first.
type ArtistMetadata struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Images    []Image  `json:"images"`
	Genres    []string `json:"genres"`
	Followers int      `json:"followers"`
}

// ImageSize names a display variant of an artist image.
type ImageSize string

const (
	ImageLarge  ImageSize = "large"
	ImageMedium ImageSize = "medium"
	ImageSmall  ImageSize = "small"
)

// ImageURL picks the URL for the requested size. Catalog image lists are not
// always complete, so smaller sizes fall back towards the largest image. The
// second return is false when the artist has no images.
func (a ArtistMetadata) ImageURL(size ImageSize) (string, bool) {
	var order []int
	switch size {
	case ImageLarge:
		order = []int{0}
	case ImageMedium:
		order = []int{1, 0}
	case ImageSmall:
		order = []int{2, 1, 0}
	default:
		return "", false
	}

	for _, i := range order {
		if i < len(a.Images) {
			return a.Images[i].URL, true
		}
	}

	return "", false
}

// TopGenres returns at most n genres in catalog order.
func (a ArtistMetadata) TopGenres(n int) []string {
	if len(a.Genres) <= n {
		return slices.Clone(a.Genres)
	}
	return slices.Clone(a.Genres[:n])
}

// TrackMetadata is the normalized catalog record for a track. AlbumImageURL
// is empty when the album has no artwork. ArtistName is the catalog's primary
// artist, or the requested artist when the catalog lists none.
type TrackMetadata struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AlbumImageURL string `json:"album_image_url,omitempty"`
	AlbumName     string `json:"album_name"`
	ArtistName    string `json:"artist_name"`
}
