package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/fretlog/fretlog/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"cache.operations",
			metric.WithDescription("Total cache operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"cache.operation.duration",
			metric.WithDescription("Cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a Store with metrics instrumentation and records the
// outcome of each operation on the active span.
type Instrumented[T any] struct {
	wrapped   Store[T]
	cacheType string
	name      string
}

// NewInstrumented creates an instrumented store wrapper. cacheType is the
// backing implementation ("memory", "distributed") and name distinguishes
// stores of the same type, e.g. "artist" and "track".
func NewInstrumented[T any](store Store[T], cacheType, name string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{
		wrapped:   store,
		cacheType: cacheType,
		name:      name,
	}
}

func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()

	value, found, err := i.wrapped.Get(ctx, key)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.observe(ctx, "get", status, time.Since(start))

	return value, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()

	err := i.wrapped.Set(ctx, key, value)

	i.observe(ctx, "set", outcome(err), time.Since(start))

	return err
}

func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()

	err := i.wrapped.Invalidate(ctx, key)

	i.observe(ctx, "invalidate", outcome(err), time.Since(start))

	return err
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (i *Instrumented[T]) observe(ctx context.Context, operation, status string, duration time.Duration) {
	common := []attribute.KeyValue{
		attribute.String("cache.type", i.cacheType),
		attribute.String("cache.name", i.name),
		attribute.String("cache.operation", operation),
	}

	if cacheDuration != nil {
		cacheDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(common...))
	}

	if cacheOperations != nil {
		cacheOperations.Add(ctx, 1,
			metric.WithAttributes(append(common, attribute.String("cache.status", status))...),
		)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cache."+i.name+"."+operation+".status", status),
		attribute.Float64("cache."+i.name+"."+operation+".duration", duration.Seconds()),
	)
}
