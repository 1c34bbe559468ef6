package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/embedpipe/internal/http"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

// HTTPMetrics records request metrics to the OTEL meter and to a local
// Prometheus registry served on /metrics.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	responseSize   metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter

	registry     *prometheus.Registry
	promRequests *prometheus.CounterVec
	promDuration *prometheus.HistogramVec
	promActive   prometheus.Gauge
}

// MetricsOption configures HTTPMetrics.
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	meterProvider metric.MeterProvider
	registry      *prometheus.Registry
}

// WithMeterProvider sets the OTEL meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) MetricsOption {
	return func(o *metricsOptions) {
		o.meterProvider = mp
	}
}

// WithRegistry sets the Prometheus registry. Defaults to a fresh registry
// with Go and process collectors.
func WithRegistry(reg *prometheus.Registry) MetricsOption {
	return func(o *metricsOptions) {
		o.registry = reg
	}
}

// NewHTTPMetrics creates a new HTTPMetrics instance.
func NewHTTPMetrics(logger *zap.Logger, opts ...MetricsOption) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &metricsOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &HTTPMetrics{
		meter:    o.meterProvider.Meter(httpInstrumentationName),
		logger:   logger,
		registry: o.registry,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"embedpipe.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, endpoint and status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Embedding requests can spend tens of seconds in backend retries.
	m.requestDur, err = m.meter.Float64Histogram(
		"embedpipe.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, endpoint and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.responseSize, err = m.meter.Int64Histogram(
		"embedpipe.http.response_size_bytes",
		metric.WithDescription("HTTP response body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 1000, 10000, 100000, 1000000, 10000000),
	)
	if err != nil {
		m.logger.Warn("failed to create response size histogram", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"embedpipe.http.active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}

	m.promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embedpipe",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests labeled by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})
	m.promDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "embedpipe",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   durationBuckets,
	}, []string{"method", "endpoint"})
	m.promActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "embedpipe",
		Subsystem: "http",
		Name:      "active_requests",
		Help:      "Number of currently active HTTP requests.",
	})
	for _, c := range []prometheus.Collector{m.promRequests, m.promDuration, m.promActive} {
		if err := m.registry.Register(c); err != nil {
			m.logger.Warn("failed to register prometheus collector", zap.Error(err))
		}
	}
}

// Handler serves the Prometheus registry.
func (m *HTTPMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
			}
			m.promActive.Inc()

			err := next(c)
			if err != nil {
				// Let echo write the error so the recorded status is final.
				c.Error(err)
			}

			duration := time.Since(start)
			status := c.Response().Status
			endpoint := normalizePath(c.Path())

			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("endpoint", endpoint),
				attribute.Int("status", status),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, duration.Seconds(), attrs)
			}
			if m.responseSize != nil {
				m.responseSize.Record(ctx, c.Response().Size, attrs)
			}
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, -1)
			}

			m.promRequests.WithLabelValues(req.Method, endpoint, strconv.Itoa(status)).Inc()
			m.promDuration.WithLabelValues(req.Method, endpoint).Observe(duration.Seconds())
			m.promActive.Dec()

			return nil
		}
	}
}

// normalizePath maps the matched route to a metric label. Unmatched paths
// collapse to one label to keep cardinality bounded.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
