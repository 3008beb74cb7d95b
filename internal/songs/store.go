package songs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Store is the persistence capability for songs, scoped per user. Songs are
// listed newest first.
type Store interface {
	List(ctx context.Context, userID string) ([]Song, error)
	Create(ctx context.Context, userID string, song Song) (Song, error)
	Update(ctx context.Context, userID, songID string, update SongUpdate) (Song, error)
	Delete(ctx context.Context, userID, songID string) error
}

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrSongNotFound    = errors.New("song not found")
)

// PersistenceError reports a store operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("song %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Status() (int, string) {
	switch {
	case errors.Is(e.Err, ErrUnauthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(e.Err, ErrSongNotFound):
		return http.StatusNotFound, "song not found"
	}

	var invalid ValidationError
	if errors.As(e.Err, &invalid) {
		return invalid.Status()
	}

	return http.StatusInternalServerError, "song storage failed"
}
