package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// MinimumTokenExpiryMargin is the smallest safety margin allowed between the
// provider's reported token expiry and the moment the token stops being handed
// to callers.
const MinimumTokenExpiryMargin = 60 * time.Second

type Config struct {
	Cache    CacheConfig
	Catalog  CatalogConfig
	Metadata MetadataConfig
	Observe  ObserveConfig
	Server   ServerConfig
	Songs    SongsConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// CacheConfig specifies where freshness entries are stored.
type CacheConfig struct {
	// Type selects the cache implementation: "memory" (default) or "valkey"
	Type string `env:"CACHE_TYPE, default=memory"`

	// MaxMemoryEntries bounds each in-memory freshness store.
	MaxMemoryEntries int `env:"CACHE_MAX_MEMORY_ENTRIES, default=10000"`

	// KeyPrefix namespaces keys written to a shared valkey instance.
	KeyPrefix string `env:"CACHE_KEY_PREFIX, default=fretlog:"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	// Username for Valkey authentication.
	Username string `env:"VALKEY_USERNAME"`

	// Password for Valkey authentication.
	Password string `env:"VALKEY_PASSWORD"`
}

// CatalogConfig configures access to the music catalog API and its token
// endpoint.
type CatalogConfig struct {
	ClientID string `env:"CATALOG_CLIENT_ID, required"`

	// Exactly one of the secret sources must be supplied. The ciphertext is
	// base64 encoded and decrypted with AWS KMS at startup.
	ClientSecret              string `env:"CATALOG_CLIENT_SECRET"`
	ClientSecretKMSCiphertext string `env:"CATALOG_CLIENT_SECRET_KMS_CIPHERTEXT"`

	TokenURL string `env:"CATALOG_TOKEN_URL, default=https://accounts.spotify.com/api/token"`
	APIURL   string `env:"CATALOG_API_URL, default=https://api.spotify.com/v1/"`

	TokenExpiryMarginSeconds int     `env:"CATALOG_TOKEN_EXPIRY_MARGIN_SECS, default=60"`
	HTTPTimeoutSeconds       int     `env:"CATALOG_HTTP_TIMEOUT_SECS, default=10"`
	RequestsPerSecond        float64 `env:"CATALOG_REQUESTS_PER_SECOND, default=10"`
	RequestBurst             int     `env:"CATALOG_REQUEST_BURST, default=5"`
	RetryRateLimited         bool    `env:"CATALOG_RETRY_RATE_LIMITED, default=true"`
}

// TokenExpiryMargin returns the configured margin as a duration.
func (c CatalogConfig) TokenExpiryMargin() time.Duration {
	return time.Duration(c.TokenExpiryMarginSeconds) * time.Second
}

// Validate checks that the catalog configuration is usable.
func (c *CatalogConfig) Validate() error {
	if c.ClientSecret == "" && c.ClientSecretKMSCiphertext == "" {
		return fmt.Errorf("one of CATALOG_CLIENT_SECRET or CATALOG_CLIENT_SECRET_KMS_CIPHERTEXT is required")
	}

	if c.ClientSecret != "" && c.ClientSecretKMSCiphertext != "" {
		return fmt.Errorf("CATALOG_CLIENT_SECRET and CATALOG_CLIENT_SECRET_KMS_CIPHERTEXT are mutually exclusive")
	}

	if c.TokenExpiryMargin() < MinimumTokenExpiryMargin {
		return fmt.Errorf("CATALOG_TOKEN_EXPIRY_MARGIN_SECS must be at least %d", int(MinimumTokenExpiryMargin.Seconds()))
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("CATALOG_REQUESTS_PER_SECOND must not be negative")
	}

	return nil
}

// MetadataConfig holds the freshness policy applied to catalog metadata.
type MetadataConfig struct {
	// FreshnessSeconds is the age below which a cached value is served without
	// revalidation.
	FreshnessSeconds int `env:"METADATA_FRESHNESS_SECS, default=86400"`

	// RetentionSeconds is the age at which a cached value is discarded and must
	// be refetched before answering.
	RetentionSeconds int `env:"METADATA_RETENTION_SECS, default=604800"`
}

func (c MetadataConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessSeconds) * time.Second
}

func (c MetadataConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// Validate checks that the freshness window fits inside the retention window.
func (c *MetadataConfig) Validate() error {
	if c.FreshnessSeconds <= 0 {
		return fmt.Errorf("METADATA_FRESHNESS_SECS must be positive")
	}

	if c.RetentionSeconds <= c.FreshnessSeconds {
		return fmt.Errorf("METADATA_RETENTION_SECS must be greater than METADATA_FRESHNESS_SECS")
	}

	return nil
}

// SongsConfig configures the development song store.
type SongsConfig struct {
	// FixturePath optionally points at a YAML file used to seed the store.
	FixturePath string `env:"SONGS_FIXTURE_PATH"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=fretlog"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	err = cfg.Catalog.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid catalog configuration: %w", err)
	}

	err = cfg.Metadata.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid metadata configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.Type != "memory" && c.Type != "valkey" {
		return fmt.Errorf("CACHE_TYPE must be either \"memory\" or \"valkey\", got %q", c.Type)
	}

	// Valkey requires address
	if c.Type == "valkey" && c.Valkey.Address == "" {
		return fmt.Errorf("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
	}

	if c.MaxMemoryEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_MEMORY_ENTRIES must be positive")
	}

	return nil
}
