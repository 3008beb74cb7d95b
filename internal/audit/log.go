// Package audit writes one structured log entry per API request, recording
// the request, the song operation it performed and the metadata lookups made
// while serving it.
package audit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
)

// Level is the level audit entries are written at.
const Level = zerolog.InfoLevel

// Message is the message of every audit entry.
const Message = "audit"

// Lookup records one metadata lookup made while serving a request.
type Lookup struct {
	Kind   string
	Name   string
	Status string
	Stale  bool
}

func (l Lookup) MarshalZerologObject(e *zerolog.Event) {
	e.Str("kind", l.Kind).
		Str("name", l.Name).
		Str("status", l.Status).
		Bool("stale", l.Stale)
}

// Entry is the audit record for a single request. Handlers annotate the entry
// found in the request context; the middleware writes it when the request
// completes.
type Entry struct {
	Method    string
	Path      string
	Route     string
	Status    int
	SourceIP  string
	UserAgent string
	Duration  time.Duration
	Written   int64

	User          string
	SongID        string
	SongOperation string

	Lookups []Lookup

	Error string

	mu sync.Mutex
}

// Song records the song operation performed by the request.
func (e *Entry) Song(user, operation, songID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.User = user
	e.SongOperation = operation
	e.SongID = songID
}

// AddLookup appends a metadata lookup. It is safe to call from concurrent
// lookups serving the same request.
func (e *Entry) AddLookup(kind, name, status string, stale bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Lookups = append(e.Lookups, Lookup{Kind: kind, Name: name, Status: status, Stale: stale})
}

// Fail records an error message for the request.
func (e *Entry) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Error = err.Error()
}

// Begin captures the request details.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.Route = r.Pattern
	e.SourceIP = r.RemoteAddr
	e.UserAgent = r.UserAgent()
}

// End returns a function, intended to be deferred, that writes the entry. A
// panic in the handler is recorded on the entry and then re-raised.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if r := recover(); r != nil {
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)
			if e.Status == 0 {
				e.Status = http.StatusInternalServerError
			}

			e.write(ctx)
			panic(r)
		}

		if e.Status == 0 {
			e.Status = http.StatusOK
		}
		e.write(ctx)
	}
}

func (e *Entry) write(ctx context.Context) {
	zerolog.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg(Message)
}

func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	request := zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent)
	if e.Route != "" {
		request.Str("route", e.Route)
	}
	if e.Duration > 0 {
		request.Dur("duration", e.Duration)
	}
	if e.Written > 0 {
		request.Int64("written", e.Written)
	}
	ev.Dict("request", request)

	NewOptionalEvent(nil).
		Str("user", e.User).
		Str("operation", e.SongOperation).
		Str("id", e.SongID).
		Set(ev, "song")

	NewOptionalEvent(nil).
		Arr("lookups", arr(e.Lookups)).
		Set(ev, "metadata")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

type key struct{}

// Context returns the entry stored in ctx, adding a new one when absent.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(key{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, key{}, e), e
}

// Log returns the entry for the request. Outside the middleware it returns a
// detached entry that is never written.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware writes an audit entry for every request passing through it.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)
			defer entry.End(ctx)()

			m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

			entry.Status = m.Code
			entry.Duration = m.Duration
			entry.Written = m.Written
		})
	}
}
