package server

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

type hookDefinition struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks runs cleanup in registration order once the HTTP server has
// stopped accepting requests. A failing hook is logged and the rest still run.
type ShutdownHooks struct {
	hooks []hookDefinition
}

// AddContext registers a hook that honours the shutdown deadline. Nil hooks
// are ignored.
func (s *ShutdownHooks) AddContext(name string, hook func(context.Context) error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hookDefinition{name: name, fn: hook})
}

// Add registers a hook that has no use for the shutdown context.
func (s *ShutdownHooks) Add(name string, hook func() error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return hook()
	})
}

// AddCloser registers a resource such as a cache store or client factory.
func (s *ShutdownHooks) AddCloser(name string, closer io.Closer) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.Add(name, closer.Close)
}

// Len reports the number of registered hooks.
func (s *ShutdownHooks) Len() int {
	return len(s.hooks)
}

// Execute runs every hook with ctx and reports how many failed.
func (s *ShutdownHooks) Execute(ctx context.Context) int {
	l := log.Ctx(ctx)
	failed := 0

	for _, hook := range s.hooks {
		hookLog := l.With().Str("hook", hook.name).Logger()
		start := time.Now()

		hookLog.Info().Msg("shutdown started")
		if err := hook.fn(ctx); err != nil {
			failed++
			hookLog.Warn().Err(err).Dur("duration", time.Since(start)).Msg("shutdown failed")
		} else {
			hookLog.Info().Dur("duration", time.Since(start)).Msg("shutdown complete")
		}
	}

	return failed
}
