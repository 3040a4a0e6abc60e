// Package telemetry wires up the Prometheus exporter and the optional OTLP
// trace pipeline.
package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"advoid/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "advoid"

// Telemetry holds the metrics registry, the exporter HTTP server and the
// tracer provider.
type Telemetry struct {
	registry       *prometheus.Registry
	exporterServer *http.Server
	tracerProvider trace.TracerProvider
	sdkProvider    *sdktrace.TracerProvider
	logger         *logging.Logger
}

// Metrics holds the resolver's counters. The three request counters obey
// requests_total = requests_block + requests_forward over any interval.
type Metrics struct {
	RequestsTotal     prometheus.Counter
	RequestsBlocked   prometheus.Counter
	RequestsForwarded prometheus.Counter

	CacheEntries  prometheus.Gauge
	EventsDropped prometheus.Counter
}

// New creates a Telemetry instance, binds the exporter listener and starts
// serving /metrics. A bind failure is returned synchronously so startup can
// fail fast.
func New(ctx context.Context, exporterAddr, otelEndpoint, version string, logger *logging.Logger) (*Telemetry, error) {
	t := &Telemetry{
		registry:       prometheus.NewRegistry(),
		tracerProvider: tracenoop.NewTracerProvider(),
		logger:         logger,
	}

	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	listener, err := net.Listen("tcp", exporterAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind exporter: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))

	t.exporterServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := t.exporterServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("Metrics exporter failed", "error", serveErr)
		}
	}()
	logger.Info("Metrics exporter listening", "address", listener.Addr().String())

	if otelEndpoint != "" {
		if err := t.setupTracing(ctx, otelEndpoint, version); err != nil {
			_ = t.exporterServer.Close()
			return nil, err
		}
	}

	return t, nil
}

// setupTracing builds the OTLP gRPC trace pipeline.
func (t *Telemetry) setupTracing(ctx context.Context, endpoint, version string) error {
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	t.sdkProvider = provider
	t.tracerProvider = provider
	otel.SetTracerProvider(provider)

	t.logger.Info("Tracing enabled", "endpoint", endpoint)
	return nil
}

// InitMetrics registers and returns the application metrics.
func (t *Telemetry) InitMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dns_requests_total",
			Help: "Total number of DNS queries received.",
		}),
		RequestsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dns_requests_block",
			Help: "Number of queries answered with a synthetic negative response.",
		}),
		RequestsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dns_requests_forward",
			Help: "Number of queries forwarded to the upstream resolver.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dns_cache_entries",
			Help: "Current size of the block/allow decision cache.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dns_events_dropped",
			Help: "Events dropped because a sink queue was full.",
		}),
	}

	t.registry.MustRegister(
		m.RequestsTotal,
		m.RequestsBlocked,
		m.RequestsForwarded,
		m.CacheEntries,
		m.EventsDropped,
	)

	return m
}

// Registry returns the Prometheus registry (exposed for tests).
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// TracerProvider returns the active tracer provider.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// Shutdown stops the exporter server and flushes any pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.exporterServer != nil {
		if err := t.exporterServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("exporter shutdown: %w", err))
		}
	}

	if t.sdkProvider != nil {
		if err := t.sdkProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}

	t.logger.Info("Telemetry shut down")
	return nil
}
