package metadata

import (
	"errors"

	"golang.org/x/text/cases"
)

// ErrEmptyKey reports a lookup with an empty name component. Such lookups
// are disabled rather than sent to the catalog.
var ErrEmptyKey = errors.New("lookup key has an empty component")

// trackSeparator is the ASCII unit separator, which does not occur in typed
// titles or artist names.
const trackSeparator = "\x1f"

// Key identifies one logical lookup. Names differing only by case share a
// key.
type Key string

func fold(s string) string {
	// cases.Caser is stateful and not safe for concurrent use.
	return cases.Fold().String(s)
}

// ArtistKey builds the key for an artist lookup.
func ArtistKey(name string) (Key, error) {
	if name == "" {
		return "", ErrEmptyKey
	}
	return Key("artist:" + fold(name)), nil
}

// TrackKey builds the key for a track lookup. The artist participates in the
// key, so the same title by different artists resolves separately.
func TrackKey(title, artist string) (Key, error) {
	if title == "" || artist == "" {
		return "", ErrEmptyKey
	}
	return Key("track:" + fold(title) + trackSeparator + fold(artist)), nil
}

func (k Key) String() string {
	return string(k)
}
