package songs

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// ArtistSummary is one artist in a user's song list.
type ArtistSummary struct {
	Name      string `json:"name"`
	SongCount int    `json:"song_count"`
}

// ArtistSummaries groups songs by artist, ignoring case, and sorts the result
// by name. The first spelling encountered is the one reported.
func ArtistSummaries(songs []Song) []ArtistSummary {
	fold := cases.Fold()

	index := map[string]int{}
	var summaries []ArtistSummary
	for _, song := range songs {
		key := fold.String(song.Artist)
		i, ok := index[key]
		if !ok {
			i = len(summaries)
			index[key] = i
			summaries = append(summaries, ArtistSummary{Name: song.Artist})
		}
		summaries[i].SongCount++
	}

	slices.SortStableFunc(summaries, func(a, b ArtistSummary) int {
		return strings.Compare(fold.String(a.Name), fold.String(b.Name))
	})

	return summaries
}

// SongsByArtist returns the songs whose artist matches artist, ignoring case.
func SongsByArtist(songs []Song, artist string) []Song {
	matched := []Song{}
	for _, song := range songs {
		if strings.EqualFold(song.Artist, artist) {
			matched = append(matched, song)
		}
	}
	return matched
}

// InCategory returns the songs stored under the given category ID.
func InCategory(songs []Song, categoryID string) []Song {
	matched := []Song{}
	for _, song := range songs {
		if song.Category == categoryID {
			matched = append(matched, song)
		}
	}
	return matched
}
