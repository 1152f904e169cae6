package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const otlpExportInterval = 30 * time.Second

// Telemetry holds all telemetry instruments and providers. The zero value is
// a valid no-op instance.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	operationsTotal     metric.Int64Counter
	operationsActive    metric.Int64UpDownCounter
	operationDuration   metric.Float64Histogram
	processSpawns       metric.Int64Counter
	processTerminations metric.Int64Counter
	eventsPublished     metric.Int64Counter
	eventsDropped       metric.Int64Counter
	subscribersActive   metric.Int64UpDownCounter
	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, pushes metrics to an OTLP gRPC collector in
	// addition to the Prometheus endpoint.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(otlpExportInterval)),
		))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := otelruntime.Start(otelruntime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(ctx, 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// AddHTTPInFlight moves the in-flight HTTP request gauge by delta.
func (t *Telemetry) AddHTTPInFlight(ctx context.Context, delta int64) {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, delta)
	}
}

// RecordOperation records a finished operation with its terminal state.
func (t *Telemetry) RecordOperation(ctx context.Context, kind, state string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("state", state),
	)

	if t.operationsTotal != nil {
		t.operationsTotal.Add(ctx, 1, attrs)
	}

	if t.operationDuration != nil {
		t.operationDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// AddActiveOperations moves the active operation gauge by delta.
func (t *Telemetry) AddActiveOperations(ctx context.Context, kind string, delta int64) {
	if t.operationsActive != nil {
		t.operationsActive.Add(ctx, delta, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordProcessSpawn records an attempt to launch an external tool.
func (t *Telemetry) RecordProcessSpawn(ctx context.Context, executable, status string) {
	if t.processSpawns != nil {
		t.processSpawns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("executable", executable),
			attribute.String("status", status),
		))
	}
}

// RecordProcessTermination records a forced stop of an external tool.
func (t *Telemetry) RecordProcessTermination(ctx context.Context, executable, reason string) {
	if t.processTerminations != nil {
		t.processTerminations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("executable", executable),
			attribute.String("reason", reason),
		))
	}
}

// RecordEventPublished records a progress event handed to the broadcaster.
func (t *Telemetry) RecordEventPublished(ctx context.Context, kind string) {
	if t.eventsPublished != nil {
		t.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordEventDropped records a progress event discarded for a slow subscriber.
func (t *Telemetry) RecordEventDropped(ctx context.Context, kind string) {
	if t.eventsDropped != nil {
		t.eventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// AddSubscribers moves the active subscriber gauge by delta.
func (t *Telemetry) AddSubscribers(ctx context.Context, delta int64) {
	if t.subscribersActive != nil {
		t.subscribersActive.Add(ctx, delta)
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.dbOperationsTotal != nil {
		t.dbOperationsTotal.Add(ctx, 1, attrs)
	}

	if t.dbOperationDuration != nil {
		t.dbOperationDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t.systemErrors != nil {
		t.systemErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		))
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeBusinessMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.operationsTotal, err = t.meter.Int64Counter(
		"operations_total",
		metric.WithDescription("Total number of finished download and conversion operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations_total counter: %w", err)
	}

	t.operationsActive, err = t.meter.Int64UpDownCounter(
		"operations_active",
		metric.WithDescription("Number of operations currently supervising a tool"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations_active counter: %w", err)
	}

	t.operationDuration, err = t.meter.Float64Histogram(
		"operation_duration_seconds",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operation_duration histogram: %w", err)
	}

	t.processSpawns, err = t.meter.Int64Counter(
		"process_spawns_total",
		metric.WithDescription("Total number of external tool launches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create process_spawns_total counter: %w", err)
	}

	t.processTerminations, err = t.meter.Int64Counter(
		"process_terminations_total",
		metric.WithDescription("Total number of forced tool terminations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create process_terminations_total counter: %w", err)
	}

	t.eventsPublished, err = t.meter.Int64Counter(
		"progress_events_published_total",
		metric.WithDescription("Total number of progress events published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create progress_events_published_total counter: %w", err)
	}

	t.eventsDropped, err = t.meter.Int64Counter(
		"progress_events_dropped_total",
		metric.WithDescription("Total number of progress events dropped for slow subscribers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create progress_events_dropped_total counter: %w", err)
	}

	t.subscribersActive, err = t.meter.Int64UpDownCounter(
		"hub_subscribers_active",
		metric.WithDescription("Number of connected progress subscribers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create hub_subscribers_active counter: %w", err)
	}

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	start := time.Now()

	_, err = t.meter.Float64ObservableGauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(time.Since(start).Seconds())
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}
