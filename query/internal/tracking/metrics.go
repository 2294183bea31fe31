// Package tracking records OpenTelemetry metrics for the query cache.
// Only the metric API is used; exporter wiring belongs to the embedding
// application.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Meter name for query cache metrics instrumentation
	queryMeterName = "harborloop-sync/query"

	metricFetchDuration = "cache.fetch.duration" // Histogram in seconds

	metricCacheHit      = "cache.hit"       // Counter for fresh cache hits
	metricCacheStaleHit = "cache.stale_hit" // Counter for stale-while-revalidate hits
	metricCacheMiss     = "cache.miss"      // Counter for misses (blocking fetch)
	metricRevalidation  = "cache.revalidation"
	metricEviction      = "cache.eviction"

	metricMutation        = "cache.mutation"
	metricRollback        = "cache.mutation.rollback"
	metricRollbackDropped = "cache.mutation.rollback_dropped"

	// Attribute keys
	attrEntityKind = "entity.kind"
	attrErrorKind  = "error.kind"
	attrOutcome    = "outcome"
)

var (
	meterOnce sync.Once

	fetchDuration          metric.Float64Histogram
	hitCounter             metric.Int64Counter
	staleHitCounter        metric.Int64Counter
	missCounter            metric.Int64Counter
	revalidationCounter    metric.Int64Counter
	evictionCounter        metric.Int64Counter
	mutationCounter        metric.Int64Counter
	rollbackCounter        metric.Int64Counter
	rollbackDroppedCounter metric.Int64Counter
)

// logMetricError logs a metric initialization error to stderr.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize query metric %s: %v\n", metricName, err)
	}
}

func initMeter() {
	meter := otel.Meter(queryMeterName)

	var err error

	fetchDuration, err = meter.Float64Histogram(
		metricFetchDuration,
		metric.WithDescription("Duration of entity fetches"),
		metric.WithUnit("s"),
	)
	logMetricError(metricFetchDuration, err)

	counters := []struct {
		name string
		desc string
		dst  *metric.Int64Counter
	}{
		{metricCacheHit, "Fresh cache hits", &hitCounter},
		{metricCacheStaleHit, "Stale cache hits served while revalidating", &staleHitCounter},
		{metricCacheMiss, "Cache misses requiring a blocking fetch", &missCounter},
		{metricRevalidation, "Background revalidations issued", &revalidationCounter},
		{metricEviction, "Entries evicted by GC", &evictionCounter},
		{metricMutation, "Mutations executed", &mutationCounter},
		{metricRollback, "Optimistic updates rolled back", &rollbackCounter},
		{metricRollbackDropped, "Rollbacks dropped as superseded", &rollbackDroppedCounter},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		logMetricError(c.name, err)
	}
}

func ensureMeter() {
	meterOnce.Do(initMeter)
}

func kindAttrs(entityKind string) []attribute.KeyValue {
	if entityKind == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String(attrEntityKind, entityKind)}
}

func add(ctx context.Context, counter metric.Int64Counter, attrs []attribute.KeyValue) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordLookup records the outcome of a cache read: "hit", "stale_hit" or "miss".
func RecordLookup(ctx context.Context, entityKind, outcome string) {
	ensureMeter()

	attrs := kindAttrs(entityKind)
	switch outcome {
	case "hit":
		add(ctx, hitCounter, attrs)
	case "stale_hit":
		add(ctx, staleHitCounter, attrs)
	case "miss":
		add(ctx, missCounter, attrs)
	}
}

// RecordFetch records the duration and outcome of one network fetch.
func RecordFetch(ctx context.Context, entityKind string, duration time.Duration, err error) {
	ensureMeter()

	attrs := kindAttrs(entityKind)
	if err != nil {
		attrs = append(attrs, attribute.String(attrOutcome, "error"))
	} else {
		attrs = append(attrs, attribute.String(attrOutcome, "success"))
	}

	if fetchDuration != nil {
		fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// RecordRevalidation records a background revalidation being issued.
func RecordRevalidation(ctx context.Context, entityKind string) {
	ensureMeter()
	add(ctx, revalidationCounter, kindAttrs(entityKind))
}

// RecordEviction records an entry evicted by the GC sweep.
func RecordEviction(ctx context.Context, entityKind string) {
	ensureMeter()
	add(ctx, evictionCounter, kindAttrs(entityKind))
}

// RecordMutation records a mutation and its terminal outcome:
// "committed", "rolled_back" or "rollback_dropped".
func RecordMutation(ctx context.Context, entityKind, outcome string) {
	ensureMeter()

	attrs := kindAttrs(entityKind)
	add(ctx, mutationCounter, append(attrs, attribute.String(attrOutcome, outcome)))

	switch outcome {
	case "rolled_back":
		add(ctx, rollbackCounter, attrs)
	case "rollback_dropped":
		add(ctx, rollbackDroppedCounter, attrs)
	}
}
