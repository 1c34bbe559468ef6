package embeddings

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/embedpipe/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Pipeline turns text into embedding vectors against local providers.
// It is bound to one settings snapshot and is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	http    *transport
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMeterProvider sets where metrics are recorded. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Pipeline) {
		p.meterProvider = mp
	}
}

// WithTracerProvider sets where spans are recorded. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		p.tracerProvider = tp
	}
}

// New creates a Pipeline bound to cfg. Start from DefaultConfig or
// ConfigFromSettings; zero hosts, timeouts and sizes take defaults, while
// zero retry policies mean no retries.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.meterProvider == nil {
		p.meterProvider = otel.GetMeterProvider()
	}
	if p.tracerProvider == nil {
		p.tracerProvider = otel.GetTracerProvider()
	}

	p.http = newTransport(cfg)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)
	p.metrics = NewMetrics(p.meterProvider.Meter(instrumentationName), p.logger)
	return p, nil
}

// Config returns the settings snapshot the pipeline is bound to.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// DetectEmbeddingProvider probes Ollama, then the OpenAI-compatible server,
// and returns the first that answers its health check within ProbeTimeout.
// ok is false when neither is reachable.
func (p *Pipeline) DetectEmbeddingProvider(ctx context.Context) (ProviderInfo, bool) {
	ctx, span := p.tracer.Start(ctx, "embeddings.detect")
	defer span.End()

	candidates := []ProviderInfo{
		{Kind: KindOllama, BaseURL: p.cfg.OllamaHost},
		{Kind: KindOpenAI, BaseURL: p.cfg.OpenAIHost},
	}
	for _, info := range candidates {
		prov, err := newProvider(info, p.http)
		if err != nil {
			continue
		}
		if err := p.probe(ctx, prov); err != nil {
			p.logger.Debug("embedding provider not reachable",
				append(logging.ContextFields(ctx),
					zap.String("provider", string(info.Kind)),
					zap.String("base_url", info.BaseURL),
					zap.Error(err))...)
			continue
		}
		span.SetAttributes(
			attribute.String("provider.kind", string(info.Kind)),
			attribute.String("provider.base_url", info.BaseURL),
		)
		p.logger.Info("embedding provider detected",
			append(logging.ContextFields(ctx),
				zap.String("provider", string(info.Kind)),
				zap.String("base_url", info.BaseURL))...)
		return info, true
	}

	span.SetAttributes(attribute.String("provider.kind", "none"))
	p.logger.Warn("no embedding provider reachable",
		append(logging.ContextFields(ctx),
			zap.String("ollama_host", p.cfg.OllamaHost),
			zap.String("openai_host", p.cfg.OpenAIHost))...)
	return ProviderInfo{}, false
}

func (p *Pipeline) probe(ctx context.Context, prov Provider) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()
	return prov.Ping(ctx)
}

// Embed returns the embedding of one text. The text is capped at
// MaxInputChars characters, and transient failures are retried per the
// Retry policy. A context-length rejection is returned immediately.
func (p *Pipeline) Embed(ctx context.Context, info ProviderInfo, text string) (vec Vector, err error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	prov, err := newProvider(info, p.http)
	if err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "embeddings.embed", trace.WithAttributes(
		attribute.String("provider.kind", string(info.Kind)),
		attribute.String("model", p.cfg.Model),
		attribute.Int("text.length", utf8.RuneCountInString(text)),
	))
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.cfg.Model, info.Kind, "embed", time.Since(start), 0, err)
		endSpan(span, err)
	}()

	return p.embedOne(ctx, prov, truncate(text, p.cfg.MaxInputChars))
}

// EmbedBatch returns one embedding per text, in input order.
//
// Texts are capped at MaxInputChars and processed in sequential groups of
// BatchSize. Each group is first tried as one bulk request; if the provider
// cannot serve it, every text in the group is embedded on its own, halving
// texts the model rejects as too long. The first unrecoverable error aborts
// the whole batch and no partial result is returned. Between groups the
// pipeline pauses for GroupPause. An empty text anywhere in the batch fails
// it with ErrEmptyInput before any request is made.
func (p *Pipeline) EmbedBatch(ctx context.Context, info ProviderInfo, texts []string) (vecs []Vector, err error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmptyInput, i)
		}
	}
	prov, err := newProvider(info, p.http)
	if err != nil {
		return nil, err
	}

	groups := (len(texts) + p.cfg.BatchSize - 1) / p.cfg.BatchSize
	ctx, span := p.tracer.Start(ctx, "embeddings.embed_batch", trace.WithAttributes(
		attribute.String("provider.kind", string(info.Kind)),
		attribute.String("model", p.cfg.Model),
		attribute.Int("batch.size", len(texts)),
		attribute.Int("batch.groups", groups),
	))
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.cfg.Model, info.Kind, "embed_batch", time.Since(start), len(texts), err)
		endSpan(span, err)
	}()

	capped := make([]string, len(texts))
	for i, t := range texts {
		capped[i] = truncate(t, p.cfg.MaxInputChars)
	}

	out := make([]Vector, 0, len(capped))
	for first := 0; first < len(capped); first += p.cfg.BatchSize {
		last := min(first+p.cfg.BatchSize, len(capped))
		group := capped[first:last]

		if bulk, ok := prov.EmbedMany(ctx, p.cfg.Model, group); ok {
			p.metrics.RecordBulk(ctx, p.cfg.Model, info.Kind)
			out = append(out, bulk...)
		} else {
			p.metrics.RecordFallback(ctx, p.cfg.Model, info.Kind)
			p.logger.Debug("bulk embedding unavailable, embedding texts individually",
				append(logging.ContextFields(ctx),
					zap.String("provider", string(info.Kind)),
					zap.Int("group_start", first),
					zap.Int("group_size", len(group)))...)
			for i, text := range group {
				vec, err := p.embedShrinking(ctx, prov, text)
				if err != nil {
					return nil, fmt.Errorf("embedding text %d: %w", first+i, err)
				}
				out = append(out, vec)
			}
		}

		if last < len(capped) {
			if err := pause(ctx, p.cfg.GroupPause); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// EnsureModel makes sure the configured model is available on the provider,
// pulling it if missing. Failures are logged and reported as false.
func (p *Pipeline) EnsureModel(ctx context.Context, info ProviderInfo) bool {
	prov, err := newProvider(info, p.http)
	if err == nil {
		err = prov.EnsureModel(ctx, p.cfg.Model)
	}
	if err != nil {
		p.logger.Warn("embedding model not available",
			append(logging.ContextFields(ctx),
				zap.String("provider", string(info.Kind)),
				zap.String("model", p.cfg.Model),
				zap.Error(err))...)
		return false
	}
	return true
}

// embedOne embeds text, retrying transient failures.
func (p *Pipeline) embedOne(ctx context.Context, prov Provider, text string) (Vector, error) {
	kind := prov.Info().Kind
	var vec Vector
	err := p.cfg.Retry.Do(ctx, IsTransient, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			p.metrics.RecordRetry(ctx, p.cfg.Model, kind)
			p.logger.Warn("retrying embedding after transient failure",
				append(logging.ContextFields(ctx),
					zap.String("provider", string(kind)),
					zap.Int("attempt", attempt+1))...)
		}
		v, err := prov.EmbedOne(ctx, p.cfg.Model, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// embedShrinking embeds text, halving it after each context-length
// rejection. Every shrunken attempt gets the full transient retry budget.
// A single rejected character is not halved further; its rejection is
// returned as is.
func (p *Pipeline) embedShrinking(ctx context.Context, prov Provider, text string) (Vector, error) {
	kind := prov.Info().Kind
	current := text
	shrinkable := func(err error) bool {
		return IsContextTooLong(err) && utf8.RuneCountInString(current) > 1
	}
	var vec Vector
	err := p.cfg.Shrink.Do(ctx, shrinkable, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			current = halve(current)
			p.metrics.RecordShrink(ctx, p.cfg.Model, kind)
			p.logger.Info("text exceeds model context, retrying with half the text",
				append(logging.ContextFields(ctx),
					zap.String("provider", string(kind)),
					zap.Int("shrink", attempt),
					zap.Int("length", utf8.RuneCountInString(current)))...)
		}
		v, err := p.embedOne(ctx, prov, current)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// truncate caps s at limit characters without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// halve keeps the first floor(n/2) characters of s.
func halve(s string) string {
	return truncate(s, utf8.RuneCountInString(s)/2)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
