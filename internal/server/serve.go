package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Serve runs srv until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts the server down gracefully and executes hooks within
// the same timeout. A listener failure is returned immediately and hooks
// still run.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, hooks *ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	var serveErr error
	select {
	case err := <-listenErr:
		serveErr = fmt.Errorf("listen failed: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if serveErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	if hooks != nil {
		if failed := hooks.Execute(shutdownCtx); failed > 0 {
			log.Warn().Int("failed", failed).Msg("some shutdown hooks failed")
		}
	}

	return serveErr
}
