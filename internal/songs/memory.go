package songs

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type storedSong struct {
	song Song
	seq  uint64
}

// MemoryStore keeps songs in process memory. It stands in for the external
// persistence backend during development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]storedSong
	seq   uint64
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// StoreOption customizes a MemoryStore.
type StoreOption func(*MemoryStore)

// WithClock replaces the time source used for song timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		users: map[string]map[string]storedSong{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]Song, error) {
	if userID == "" {
		return nil, &PersistenceError{Op: "list", Err: ErrUnauthenticated}
	}

	s.mu.RLock()
	stored := make([]storedSong, 0, len(s.users[userID]))
	for _, st := range s.users[userID] {
		stored = append(stored, st)
	}
	s.mu.RUnlock()

	// newest first; insertion order breaks timestamp ties
	slices.SortFunc(stored, func(a, b storedSong) int {
		if c := b.song.CreatedAt.Compare(a.song.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	songs := make([]Song, len(stored))
	for i, st := range stored {
		songs[i] = st.song
	}
	return songs, nil
}

func (s *MemoryStore) Create(ctx context.Context, userID string, song Song) (Song, error) {
	if userID == "" {
		return Song{}, &PersistenceError{Op: "create", Err: ErrUnauthenticated}
	}

	if err := song.Normalize(); err != nil {
		return Song{}, &PersistenceError{Op: "create", Err: err}
	}

	now := s.now()
	song.ID = uuid.NewString()
	if song.CreatedAt.IsZero() {
		song.CreatedAt = now
	}
	song.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insert(userID, song)

	return song, nil
}

func (s *MemoryStore) insert(userID string, song Song) {
	if s.users[userID] == nil {
		s.users[userID] = map[string]storedSong{}
	}
	s.seq++
	s.users[userID][song.ID] = storedSong{song: song, seq: s.seq}
}

func (s *MemoryStore) Update(ctx context.Context, userID, songID string, update SongUpdate) (Song, error) {
	if userID == "" {
		return Song{}, &PersistenceError{Op: "update", Err: ErrUnauthenticated}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.users[userID][songID]
	if !ok {
		return Song{}, &PersistenceError{Op: "update", Err: ErrSongNotFound}
	}

	song := update.Apply(st.song)
	if err := song.Normalize(); err != nil {
		return Song{}, &PersistenceError{Op: "update", Err: err}
	}
	song.ID = songID
	song.CreatedAt = st.song.CreatedAt
	song.UpdatedAt = s.now()

	s.users[userID][songID] = storedSong{song: song, seq: st.seq}

	return song, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, songID string) error {
	if userID == "" {
		return &PersistenceError{Op: "delete", Err: ErrUnauthenticated}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID][songID]; !ok {
		return &PersistenceError{Op: "delete", Err: ErrSongNotFound}
	}
	delete(s.users[userID], songID)

	return nil
}

// Fixture is the YAML layout used to seed a MemoryStore: songs keyed by user.
type Fixture struct {
	Users map[string][]Song `yaml:"users"`
}

// LoadFixture reads a fixture file and adds its songs to the store. Songs
// without an ID are given one; songs without timestamps are stamped now.
func (s *MemoryStore) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading song fixture: %w", err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("parsing song fixture %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for userID, songs := range fixture.Users {
		for _, song := range songs {
			if err := song.Normalize(); err != nil {
				return fmt.Errorf("song fixture %s, user %s, %q: %w", path, userID, song.Title, err)
			}
			if song.ID == "" {
				song.ID = uuid.NewString()
			}
			if song.CreatedAt.IsZero() {
				song.CreatedAt = s.now()
			}
			if song.UpdatedAt.IsZero() {
				song.UpdatedAt = song.CreatedAt
			}
			s.insert(userID, song)
			count++
		}
	}

	log.Info().
		Str("path", path).
		Int("users", len(fixture.Users)).
		Int("songs", count).
		Msg("song fixture loaded")

	return nil
}
