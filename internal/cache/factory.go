package cache

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/fretlog/fretlog/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel"
)

// NewValkeyClient creates a Valkey client from the supplied configuration. A
// single client is shared by every distributed store in the process.
func NewValkeyClient(cfg config.ValkeyConfig) (valkey.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required when cache type is valkey")
	}

	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Username:    cfg.Username,
		Password:    cfg.Password,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return client, nil
}

// Factory builds stores of any entry type from one cache configuration.
// Valkey stores share the factory's client; closing the factory closes it.
type Factory struct {
	cfg    config.CacheConfig
	client valkey.Client
}

// NewFactory validates the configuration and connects to Valkey if
// required.
func NewFactory(cfg config.CacheConfig) (*Factory, error) {
	switch cfg.Type {
	case "valkey":
		log.Info().
			Str("cache_type", "valkey").
			Str("address", cfg.Valkey.Address).
			Bool("tls", cfg.Valkey.TLS).
			Msg("initializing distributed cache")

		client, err := NewValkeyClient(cfg.Valkey)
		if err != nil {
			return nil, err
		}

		return &Factory{cfg: cfg, client: client}, nil

	case "memory":
		log.Info().
			Str("cache_type", "memory").
			Int("max_entries", cfg.MaxMemoryEntries).
			Msg("initializing in-memory cache")

		return &Factory{cfg: cfg}, nil

	default:
		return nil, fmt.Errorf("invalid cache type %q: must be either \"memory\" or \"valkey\"", cfg.Type)
	}
}

// Close releases the shared Valkey client, if any.
func (f *Factory) Close() error {
	if f.client != nil {
		f.client.Close()
	}
	return nil
}

// NewStore creates an instrumented store named name whose entries are kept for
// ttl after each write.
func NewStore[T any](f *Factory, name string, ttl time.Duration) (Store[T], error) {
	if f.client != nil {
		distributed, err := NewDistributed[T](
			nonClosingClient{f.client},
			ttl,
			f.cfg.KeyPrefix+name+":",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create distributed cache: %w", err)
		}

		return NewInstrumented[T](distributed, "distributed", name), nil
	}

	memory, err := NewMemory[T](ttl, f.cfg.MaxMemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	if _, err := ObserveStats(name, memory); err != nil {
		otel.Handle(err)
	}

	return NewInstrumented[T](memory, "memory", name), nil
}

// nonClosingClient keeps the shared client open when an individual store is
// closed.
type nonClosingClient struct {
	valkey.Client
}

func (nonClosingClient) Close() {}
