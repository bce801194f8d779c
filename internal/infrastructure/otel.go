package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"teampulse/internal/config"
	"teampulse/pkg/contracts"
)

const (
	ServiceName = "teampulse"
	MeterName   = "teampulse"
)

// OTelConfig selects the exporters behind the tracer and meter providers.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout" or "none"
	MetricExporter string // "prometheus" or "none"
	SampleRatio    float64
}

// OTelProviders holds the initialized tracer and meter stacks. Tracer and
// Meter are always usable: with exporter "none" the matching provider field
// stays nil and the instruments come from the no-op implementations, so
// callers never need an off switch.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
}

// DefaultOTelConfig returns the development defaults: pretty-printed stdout
// traces, a Prometheus metric reader and full sampling.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: contracts.Version,
		Environment:    "development",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		SampleRatio:    1.0,
	}
}

// OTelConfigFrom maps the observability section of the application
// configuration onto an exporter configuration. Unset fields keep the
// development defaults.
func OTelConfigFrom(cfg config.ObservabilityConfig) *OTelConfig {
	out := DefaultOTelConfig()
	if cfg.Environment != "" {
		out.Environment = cfg.Environment
	}
	if cfg.TraceExporter != "" {
		out.TraceExporter = cfg.TraceExporter
	}
	if cfg.MetricExporter != "" {
		out.MetricExporter = cfg.MetricExporter
	}
	if cfg.SampleRatio > 0 {
		out.SampleRatio = cfg.SampleRatio
	}
	return out
}

// InitializeOTel builds the configured exporters, installs the global
// providers and the W3C trace-context propagator, and returns the handles
// the application wires into its middleware and services.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", instanceID()),
	)

	providers := &OTelProviders{
		Tracer: tracenoop.NewTracerProvider().Tracer(MeterName),
		Meter:  metricnoop.NewMeterProvider().Meter(MeterName),
	}

	tp, err := newTracerProvider(cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tp != nil {
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if mp != nil {
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		// The only live metric exporter is the Prometheus reader, so a meter
		// provider implies a scrape handler.
		providers.PrometheusHTTP = promhttp.Handler()
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.String("metric_exporter", cfg.MetricExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return providers, nil
}

// newTracerProvider builds the sampled batching provider, or nil when the
// exporter is "none".
func newTracerProvider(cfg *OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	switch cfg.TraceExporter {
	case "none":
		return nil, nil
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		), nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %q", cfg.TraceExporter)
	}
}

// newMeterProvider builds the Prometheus-backed provider, or nil when the
// exporter is "none".
func newMeterProvider(cfg *OTelConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "none":
		return nil, nil
	case "prometheus":
		reader, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		), nil
	default:
		return nil, fmt.Errorf("unsupported metric exporter: %q", cfg.MetricExporter)
	}
}

// instrumentSet keeps the first instrument-creation error aside so the
// catalog in CreateBusinessMetrics reads as a flat list.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) keep(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	s.keep(err)
	return c
}

func (s *instrumentSet) bytesCounter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("By"))
	s.keep(err)
	return c
}

func (s *instrumentSet) seconds(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	s.keep(err)
	return h
}

func (s *instrumentSet) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	s.keep(err)
	return c
}

// CreateBusinessMetrics registers the application instrument catalog on the
// given meter. The returned set is shared by the HTTP middleware and the
// pipeline services.
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(MeterName)
	}
	ins := &instrumentSet{meter: meter}

	m := &BusinessMetrics{
		HTTPRequestsTotal:   ins.counter("http_requests_total", "Total number of HTTP requests"),
		HTTPRequestDuration: ins.seconds("http_request_duration_seconds", "HTTP request duration in seconds"),
		HTTPActiveRequests:  ins.upDown("http_active_requests", "Number of active HTTP requests"),

		DatasetLoadsTotal:   ins.counter("dataset_loads_total", "Total number of dataset load attempts"),
		DatasetLoadDuration: ins.seconds("dataset_load_duration_seconds", "Dataset load duration in seconds"),
		DatasetRowsParsed:   ins.counter("dataset_rows_parsed_total", "Total number of raw rows parsed from sources"),
		DatasetRowsDropped:  ins.counter("dataset_rows_dropped_total", "Total number of rows dropped during normalization"),
		SnapshotRecords:     ins.upDown("snapshot_records", "Number of task records in the active snapshot"),
		UploadBytes:         ins.bytesCounter("upload_bytes_total", "Total bytes of uploaded workbooks"),
		WatcherReloads:      ins.counter("watcher_reloads_total", "Total number of reloads triggered by the file watcher"),

		ExportsTotal:   ins.counter("report_exports_total", "Total number of report exports"),
		ExportDuration: ins.seconds("report_export_duration_seconds", "Report export duration in seconds"),

		SystemErrors: ins.counter("system_errors_total", "Total number of system errors"),
	}
	if ins.err != nil {
		return nil, ins.err
	}
	return m, nil
}

// BusinessMetrics holds the application instruments. Every recorder in this
// package is nil-safe so callers without telemetry can pass a nil set.
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Dataset pipeline metrics
	DatasetLoadsTotal   metric.Int64Counter
	DatasetLoadDuration metric.Float64Histogram
	DatasetRowsParsed   metric.Int64Counter
	DatasetRowsDropped  metric.Int64Counter
	SnapshotRecords     metric.Int64UpDownCounter
	UploadBytes         metric.Int64Counter
	WatcherReloads      metric.Int64Counter

	// Export metrics
	ExportsTotal   metric.Int64Counter
	ExportDuration metric.Float64Histogram

	// System metrics
	SystemErrors metric.Int64Counter
}

// Shutdown flushes and stops whichever providers were built.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down meter provider: %w", err))
		}
	}

	return errors.Join(errs...)
}

// instanceID distinguishes concurrent instances on the same host.
func instanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// TraceIDFromContext returns the active trace id, or "" when the context
// carries no valid span.
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// RecordLoadMetrics records one dataset load attempt. Row counters only move
// on success; failures land in the error counter with their Go type.
func RecordLoadMetrics(ctx context.Context, metrics *BusinessMetrics, sourceKind string, rowsParsed, rowsDropped int, duration time.Duration, err error) {
	if metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("source.kind", sourceKind),
		attribute.String("status", status),
	)
	metrics.DatasetLoadsTotal.Add(ctx, 1, attrs)
	metrics.DatasetLoadDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		metrics.SystemErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source.kind", sourceKind),
			attribute.String("error.type", fmt.Sprintf("%T", err)),
		))
		return
	}

	source := metric.WithAttributes(attribute.String("source.kind", sourceKind))
	metrics.DatasetRowsParsed.Add(ctx, int64(rowsParsed), source)
	if rowsDropped > 0 {
		metrics.DatasetRowsDropped.Add(ctx, int64(rowsDropped), source)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("dataset.load_recorded", trace.WithAttributes(
			attribute.String("source.kind", sourceKind),
			attribute.Int("rows.parsed", rowsParsed),
			attribute.Int("rows.dropped", rowsDropped),
			attribute.Float64("duration_seconds", duration.Seconds()),
		))
	}
}

// RecordExportMetrics records one report export.
func RecordExportMetrics(ctx context.Context, metrics *BusinessMetrics, format string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("format", format),
		attribute.String("status", status),
	)
	metrics.ExportsTotal.Add(ctx, 1, attrs)
	metrics.ExportDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSnapshotSize moves the active-snapshot record gauge when a snapshot
// is installed or replaced.
func RecordSnapshotSize(ctx context.Context, metrics *BusinessMetrics, delta int64, sourceKind string) {
	if metrics == nil {
		return
	}

	metrics.SnapshotRecords.Add(ctx, delta, metric.WithAttributes(
		attribute.String("source.kind", sourceKind),
	))
}

// RecordUploadBytes records the size of an accepted workbook upload.
func RecordUploadBytes(ctx context.Context, metrics *BusinessMetrics, bytes int64) {
	if metrics == nil {
		return
	}

	metrics.UploadBytes.Add(ctx, bytes)
}

// RecordWatcherReload records a reload triggered by the workbook watcher.
func RecordWatcherReload(ctx context.Context, metrics *BusinessMetrics, trigger string) {
	if metrics == nil {
		return
	}

	metrics.WatcherReloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
	))
}
