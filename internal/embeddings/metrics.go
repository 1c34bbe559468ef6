package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/embedpipe/internal/embeddings"

// Metrics holds all embedding-related metrics.
type Metrics struct {
	logger     *zap.Logger
	duration   metric.Float64Histogram
	batchSize  metric.Int64Histogram
	errors     metric.Int64Counter
	retries    metric.Int64Counter
	bulkGroups metric.Int64Counter
	fallbacks  metric.Int64Counter
	shrinks    metric.Int64Counter
}

// NewMetrics creates the embedding instruments on meter.
// Instruments that fail to register are logged and skipped.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{logger: logger}
	var err error

	m.duration, err = meter.Float64Histogram(
		"embedpipe.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of embedding generation in seconds, labeled by model, provider and operation (embed, embed_batch)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	m.warn("duration histogram", err)

	m.batchSize, err = meter.Int64Histogram(
		"embedpipe.embedding.batch_size",
		metric.WithDescription("Number of texts per EmbedBatch call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	m.warn("batch size histogram", err)

	m.errors, err = m.counter(meter, "embedpipe.embedding.errors_total",
		"Embedding calls that failed after retries and shrinking, by error kind", "{error}")
	m.warn("errors counter", err)

	m.retries, err = m.counter(meter, "embedpipe.embedding.retries_total",
		"Retries of a single-text request after a transient failure", "{retry}")
	m.warn("retries counter", err)

	m.bulkGroups, err = m.counter(meter, "embedpipe.embedding.bulk_groups_total",
		"Batch groups embedded with one bulk request", "{group}")
	m.warn("bulk groups counter", err)

	m.fallbacks, err = m.counter(meter, "embedpipe.embedding.fallbacks_total",
		"Batch groups embedded text by text because bulk was unsupported", "{group}")
	m.warn("fallbacks counter", err)

	m.shrinks, err = m.counter(meter, "embedpipe.embedding.shrinks_total",
		"Texts halved after a context-length rejection", "{shrink}")
	m.warn("shrinks counter", err)

	return m
}

func (m *Metrics) counter(meter metric.Meter, name, desc, unit string) (metric.Int64Counter, error) {
	return meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
}

func (m *Metrics) warn(what string, err error) {
	if err != nil {
		m.logger.Warn("failed to create "+what, zap.Error(err))
	}
}

// RecordGeneration records one Embed or EmbedBatch call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, kind Kind, operation string, duration time.Duration, batchSize int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("provider", string(kind)),
		attribute.String("operation", operation),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), metric.WithAttributes(attrs...))
	}

	if err != nil && m.errors != nil {
		attrs = append(attrs, attribute.String("kind", KindOf(err).String()))
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRetry records a transient retry.
func (m *Metrics) RecordRetry(ctx context.Context, model string, kind Kind) {
	add(ctx, m.retries, model, kind)
}

// RecordBulk records a group served by the bulk endpoint.
func (m *Metrics) RecordBulk(ctx context.Context, model string, kind Kind) {
	add(ctx, m.bulkGroups, model, kind)
}

// RecordFallback records a group that fell back to per-text requests.
func (m *Metrics) RecordFallback(ctx context.Context, model string, kind Kind) {
	add(ctx, m.fallbacks, model, kind)
}

// RecordShrink records a text halved after a context-length rejection.
func (m *Metrics) RecordShrink(ctx context.Context, model string, kind Kind) {
	add(ctx, m.shrinks, model, kind)
}

func add(ctx context.Context, c metric.Int64Counter, model string, kind Kind) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("provider", string(kind)),
	))
}
