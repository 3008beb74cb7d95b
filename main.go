package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fretlog/fretlog/internal/audit"
	"github.com/fretlog/fretlog/internal/cache"
	"github.com/fretlog/fretlog/internal/catalog"
	"github.com/fretlog/fretlog/internal/config"
	"github.com/fretlog/fretlog/internal/metadata"
	"github.com/fretlog/fretlog/internal/observe"
	"github.com/fretlog/fretlog/internal/server"
	"github.com/fretlog/fretlog/internal/songs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinas/alice"
)

func configureServerRoutes(lookup MetadataLookup, store songs.Store) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	auditor := audit.Middleware()

	// Song documents are small: the limit guards against accidental or
	// deliberate abuse and is not configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	apiRouteMiddleware := alice.New(requestLimiter, auditor)
	standardRouteMiddleware := alice.New(requestLimiter)

	mux.Handle("GET /artists/{artist}", apiRouteMiddleware.Then(handleGetArtist(lookup)))
	mux.Handle("GET /tracks", apiRouteMiddleware.Then(handleGetTrack(lookup)))
	mux.Handle("GET /categories", standardRouteMiddleware.Then(handleGetCategories()))

	mux.Handle("GET /users/{user}/songs", apiRouteMiddleware.Then(handleListSongs(store)))
	mux.Handle("POST /users/{user}/songs", apiRouteMiddleware.Then(handleCreateSong(store)))
	mux.Handle("PATCH /users/{user}/songs/{id}", apiRouteMiddleware.Then(handleUpdateSong(store)))
	mux.Handle("DELETE /users/{user}/songs/{id}", apiRouteMiddleware.Then(handleDeleteSong(store)))

	mux.Handle("GET /users/{user}/artists", apiRouteMiddleware.Then(handleListArtists(store, lookup)))
	mux.Handle("GET /users/{user}/artists/{artist}", apiRouteMiddleware.Then(handleGetArtistPage(store, lookup)))

	// healthchecks are not included in telemetry or auditing
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	hooks := &server.ShutdownHooks{}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	svc, cacheFactory, err := configureMetadata(ctx, cfg)
	if err != nil {
		return err
	}
	hooks.AddCloser("cache", cacheFactory)

	store := songs.NewMemoryStore()
	if cfg.Songs.FixturePath != "" {
		if err := store.LoadFixture(cfg.Songs.FixturePath); err != nil {
			return fmt.Errorf("song store configuration failed: %w", err)
		}
	}

	// telemetry is flushed last so the shutdown of other resources is recorded
	hooks.AddContext("telemetry", shutdownTelemetry)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           configureServerRoutes(svc, store),
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	err = server.Serve(ctx, srv, shutdownTimeout, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// configureMetadata builds the catalog client and the metadata service over
// the configured freshness stores. The returned factory owns any shared cache
// connection and must be closed on shutdown.
func configureMetadata(ctx context.Context, cfg config.Config) (*metadata.Service, *cache.Factory, error) {
	var decrypter catalog.Decrypter
	if cfg.Catalog.ClientSecretKMSCiphertext != "" {
		kms, err := catalog.NewKMSDecrypter(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog secret decryption setup failed: %w", err)
		}
		decrypter = kms
	}

	secret, err := catalog.ResolveClientSecret(ctx, cfg.Catalog, decrypter)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog secret resolution failed: %w", err)
	}

	tokens := catalog.NewTokenManager(cfg.Catalog, secret, http.DefaultClient)

	// an unavailable catalog degrades lookups to not_found; it does not stop
	// the service starting
	if cred, err := tokens.Credential(); err != nil {
		log.Warn().Err(err).Msg("catalog token exchange failed at startup")
	} else {
		log.Info().Time("expires_at", cred.ExpiresAt).Msg("catalog credential acquired")
	}
	client := catalog.NewClient(cfg.Catalog, tokens, http.DefaultTransport)

	factory, err := cache.NewFactory(cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("cache configuration failed: %w", err)
	}

	// stores keep entries for the retention window; the freshness layer
	// decides what is still servable
	retention := cfg.Metadata.Retention()

	artistStore, err := cache.NewStore[metadata.Entry[metadata.ArtistMetadata]](factory, "artists", retention)
	if err != nil {
		_ = factory.Close()
		return nil, nil, fmt.Errorf("artist cache configuration failed: %w", err)
	}

	trackStore, err := cache.NewStore[metadata.Entry[metadata.TrackMetadata]](factory, "tracks", retention)
	if err != nil {
		_ = factory.Close()
		return nil, nil, fmt.Errorf("track cache configuration failed: %w", err)
	}

	policy := metadata.Policy{
		Freshness: cfg.Metadata.Freshness(),
		Retention: retention,
	}

	log.Info().
		Str("cache", cfg.Cache.Type).
		Dur("freshness", policy.Freshness).
		Dur("retention", policy.Retention).
		Msg("metadata service configured")

	return metadata.NewService(client, artistStore, trackStore, policy), factory, nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
