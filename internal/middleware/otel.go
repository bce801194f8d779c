package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"teampulse/internal/infrastructure"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelMiddleware instruments HTTP requests with a server span and request
// metrics. It does not log; StructuredLogger owns the request log lines and
// correlates them through the trace id this middleware installs.
type OTelMiddleware struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewOTelMiddleware wraps the shared providers and metrics instance.
// metrics may be nil when metrics are disabled; spans still flow.
func NewOTelMiddleware(providers *infrastructure.OTelProviders, metrics *infrastructure.BusinessMetrics) *OTelMiddleware {
	tracer := providers.Tracer
	if tracer == nil {
		// Tracing disabled; the global provider hands out no-op spans.
		tracer = otel.Tracer("teampulse.http")
	}

	return &OTelMiddleware{tracer: tracer, metrics: metrics}
}

// Handler returns the middleware handler function.
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		// The chi route pattern is not resolved yet, so the span starts
		// under the raw path and is renamed once the handler returns.
		ctx, span := m.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPathKey.String(r.URL.Path),
				semconv.ServerAddressKey.String(r.Host),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
				semconv.HTTPRequestBodySizeKey.Int64(r.ContentLength),
				// RealIP runs earlier in the chain, so RemoteAddr already
				// holds the client address.
				semconv.ClientAddressKey.String(r.RemoteAddr),
			),
		)
		defer span.End()

		// Trace id rides the context so every downstream log correlates
		ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
		r = r.WithContext(ctx)

		if m.metrics != nil {
			m.metrics.HTTPActiveRequests.Add(ctx, 1)
			defer m.metrics.HTTPActiveRequests.Add(ctx, -1)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		status := ww.Status()
		if status == 0 {
			// Handler finished without writing; net/http sends 200.
			status = http.StatusOK
		}

		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(status),
			semconv.HTTPResponseBodySizeKey.Int64(int64(ww.BytesWritten())),
		)
		if status >= 400 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		if m.metrics != nil {
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.Int("status_code", status),
			)
			m.metrics.HTTPRequestsTotal.Add(ctx, 1, attrs)
			m.metrics.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
		}
	})
}

// routePattern reports the chi route pattern, or the raw path when the
// request never matched a route.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// businessMetricsKey keys the shared metrics instance in request contexts.
type businessMetricsKey struct{}

// BusinessMetricsMiddleware makes the shared metrics instance reachable
// from handlers through the request context.
func BusinessMetricsMiddleware(businessMetrics *infrastructure.BusinessMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), businessMetricsKey{}, businessMetrics)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetBusinessMetricsFromContext extracts business metrics from the request
// context, or nil when the middleware did not run.
func GetBusinessMetricsFromContext(ctx context.Context) *infrastructure.BusinessMetrics {
	if metrics, ok := ctx.Value(businessMetricsKey{}).(*infrastructure.BusinessMetrics); ok {
		return metrics
	}
	return nil
}

// DatasetTraceHandler creates a handler that starts a dataset load trace.
// Upload and reload endpoints are wrapped with it so the whole load pipeline
// hangs off one span; load counters are recorded by the service once the
// load resolves.
func DatasetTraceHandler(trigger string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("teampulse.dataset")
		ctx, span := tracer.Start(r.Context(), fmt.Sprintf("dataset.%s.start", trigger),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("dataset.trigger", trigger),
			),
		)
		defer span.End()

		r = r.WithContext(ctx)
		handler(w, r)
	}
}

// RecordSystemError counts an unexpected failure against its component.
func RecordSystemError(ctx context.Context, errorType, component string) {
	metrics := GetBusinessMetricsFromContext(ctx)
	if metrics == nil {
		return
	}
	metrics.SystemErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error_type", errorType),
		attribute.String("component", component),
	))
}
