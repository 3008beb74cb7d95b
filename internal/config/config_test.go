package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv(extra map[string]string) envconfig.Lookuper {
	env := map[string]string{
		"CATALOG_CLIENT_ID":     "client-id",
		"CATALOG_CLIENT_SECRET": "client-secret",
	}
	for k, v := range extra {
		env[k] = v
	}
	return envconfig.MapLookuper(env)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), requiredEnv(nil))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "fretlog:", cfg.Cache.KeyPrefix)
	assert.Equal(t, 10_000, cfg.Cache.MaxMemoryEntries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://accounts.spotify.com/api/token", cfg.Catalog.TokenURL)
	assert.Equal(t, "https://api.spotify.com/v1/", cfg.Catalog.APIURL)
	assert.Equal(t, 60*time.Second, cfg.Catalog.TokenExpiryMargin())
	assert.True(t, cfg.Catalog.RetryRateLimited)
	assert.Equal(t, 24*time.Hour, cfg.Metadata.Freshness())
	assert.Equal(t, 7*24*time.Hour, cfg.Metadata.Retention())
	assert.Equal(t, "fretlog", cfg.Observe.ServiceName)
}

func TestLoad_FromOSEnvironment(t *testing.T) {
	t.Setenv("CATALOG_CLIENT_ID", "client-id")
	t.Setenv("CATALOG_CLIENT_SECRET", "client-secret")
	t.Setenv("CACHE_TYPE", "valkey")
	t.Setenv("VALKEY_ADDRESS", "localhost:6379")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "valkey", cfg.Cache.Type)
	assert.Equal(t, ValkeyConfig{
		Address: "localhost:6379",
		TLS:     true, // default
	}, cfg.Cache.Valkey)
}

func TestLoad_RequiresClientID(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"CATALOG_CLIENT_SECRET": "client-secret",
	}))
	assert.ErrorContains(t, err, "CATALOG_CLIENT_ID")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "valkey without address",
			env:      map[string]string{"CACHE_TYPE": "valkey"},
			expected: "VALKEY_ADDRESS required",
		},
		{
			name:     "unknown cache type",
			env:      map[string]string{"CACHE_TYPE": "redis"},
			expected: "CACHE_TYPE must be either",
		},
		{
			name:     "margin below minimum",
			env:      map[string]string{"CATALOG_TOKEN_EXPIRY_MARGIN_SECS": "30"},
			expected: "at least 60",
		},
		{
			name:     "both secret sources",
			env:      map[string]string{"CATALOG_CLIENT_SECRET_KMS_CIPHERTEXT": "Y2lwaGVy"},
			expected: "mutually exclusive",
		},
		{
			name:     "retention inside freshness",
			env:      map[string]string{"METADATA_FRESHNESS_SECS": "100", "METADATA_RETENTION_SECS": "100"},
			expected: "METADATA_RETENTION_SECS must be greater",
		},
		{
			name:     "zero freshness",
			env:      map[string]string{"METADATA_FRESHNESS_SECS": "0"},
			expected: "METADATA_FRESHNESS_SECS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(context.Background(), requiredEnv(tt.env))
			assert.ErrorContains(t, err, tt.expected)
		})
	}
}

func TestCatalogConfig_RequiresSecretSource(t *testing.T) {
	cfg := CatalogConfig{
		ClientID:                 "client-id",
		TokenExpiryMarginSeconds: 60,
	}

	err := cfg.Validate()
	assert.ErrorContains(t, err, "one of CATALOG_CLIENT_SECRET")

	cfg.ClientSecretKMSCiphertext = "Y2lwaGVy"
	assert.NoError(t, cfg.Validate())
}
