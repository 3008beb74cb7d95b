package cache

import (
	"context"

	"github.com/maypok86/otter/v2/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StatsSource reports cumulative otter counters.
type StatsSource interface {
	Stats() stats.Stats
}

// ObserveStats publishes the hit, miss and eviction counters of source as
// observable otel counters tagged with cache.name. The counters are read at
// each metric collection.
func ObserveStats(name string, source StatsSource) (metric.Registration, error) {
	meter := otel.Meter("github.com/fretlog/fretlog/internal/cache")

	hits, err := meter.Int64ObservableCounter(
		"cache.hits",
		metric.WithDescription("Cache lookups answered from the cache"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64ObservableCounter(
		"cache.misses",
		metric.WithDescription("Cache lookups not answered from the cache"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64ObservableCounter(
		"cache.evictions",
		metric.WithDescription("Entries removed to respect the size bound or expiry"),
	)
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(attribute.String("cache.name", name))

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snapshot := source.Stats()
		o.ObserveInt64(hits, int64(snapshot.Hits), attrs)
		o.ObserveInt64(misses, int64(snapshot.Misses), attrs)
		o.ObserveInt64(evictions, int64(snapshot.Evictions), attrs)
		return nil
	}, hits, misses, evictions)
}
