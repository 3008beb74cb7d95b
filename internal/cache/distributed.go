package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Distributed implements Store using Valkey with server-assisted
// client-side caching. Values are stored as JSON under a namespaced key, so
// several instances of the service can share revalidated entries.
type Distributed[T any] struct {
	client valkey.Client
	ttl    time.Duration
	prefix string
}

// NewDistributed creates a new Valkey-backed store. The ttl parameter
// specifies how long entries remain in Valkey after each write; prefix is
// prepended to every key.
func NewDistributed[T any](valkeyClient valkey.Client, ttl time.Duration, prefix string) (*Distributed[T], error) {
	if ttl < time.Second {
		return nil, fmt.Errorf("distributed cache ttl must be at least one second, got %s", ttl)
	}

	return &Distributed[T]{
		client: valkeyClient,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (d *Distributed[T]) storageKey(key string) string {
	return d.prefix + key
}

// Get retrieves an entry using server-assisted client-side caching.
// Entries that cannot be decoded are removed on a best-effort basis and
// reported as errors.
func (d *Distributed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	storageKey := d.storageKey(key)

	cmd := d.client.B().Get().Key(storageKey).Cache()
	result := d.client.DoCache(ctx, cmd, d.ttl)

	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("failed to get cached value: %w", err)
	}

	val, err := result.ToString()
	if err != nil {
		return zero, false, fmt.Errorf("failed to convert cached value to string: %w", err)
	}

	var value T
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		_ = d.client.Do(ctx, d.client.B().Del().Key(storageKey).Build()).Error()

		return zero, false, fmt.Errorf("failed to unmarshal cached value for key %q: %w", key, err)
	}

	return value, true, nil
}

// Set stores an entry with the configured TTL.
func (d *Distributed[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	cmd := d.client.B().Set().Key(d.storageKey(key)).Value(string(data)).ExSeconds(int64(d.ttl.Seconds())).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cached value: %w", err)
	}
	return nil
}

// Invalidate removes an entry from the store.
func (d *Distributed[T]) Invalidate(ctx context.Context, key string) error {
	cmd := d.client.B().Del().Key(d.storageKey(key)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Close releases the Valkey client.
func (d *Distributed[T]) Close() error {
	d.client.Close()
	return nil
}
