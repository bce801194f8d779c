package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	apierrors "teampulse/internal/errors"
	"teampulse/internal/infrastructure"
)

// RequestID assigns every request an identity that follows it through logs,
// problem responses and trace attributes. An inbound X-Request-ID is honored
// so an upstream proxy can stitch its logs to ours; otherwise a UUID is
// generated. The value lives under chi's request ID key, which is what
// middleware.GetReqID and the error handlers read. This must be the first
// middleware in the chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = infrastructure.GenerateTraceID()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		// The request ID doubles as the trace ID until the tracing
		// middleware starts a span and installs the real one.
		next.ServeHTTP(w, r.WithContext(infrastructure.WithTraceID(ctx, id)))
	})
}

// problem is the minimal RFC 7807 body the middleware chain can emit on its
// own, before the render stack is involved. Type URIs come from the shared
// vocabulary in internal/errors where one exists.
type problem struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Status  int    `json:"status"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// writeProblem writes p as an application/problem+json response, filling the
// trace ID from the request context when the caller left it empty.
func writeProblem(w http.ResponseWriter, r *http.Request, p problem) {
	if p.TraceID == "" {
		p.TraceID = traceIDFromRequest(r)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	json.NewEncoder(w).Encode(p)
}

// traceIDFromRequest prefers the span trace ID and falls back to the
// request ID.
func traceIDFromRequest(r *http.Request) string {
	ctx := r.Context()
	if id := infrastructure.GetTraceID(ctx); id != "" {
		return id
	}
	return middleware.GetReqID(ctx)
}

// StructuredLogger logs the start and completion of every request through
// slog, correlated by trace ID. It belongs after RequestID and RealIP.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			if traceID := traceIDFromRequest(r); traceID != "" {
				reqLogger = reqLogger.With(slog.String("trace_id", traceID))
			}

			reqLogger.InfoContext(r.Context(), "request started",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			reqLogger.InfoContext(r.Context(), "request completed",
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Recoverer turns a handler panic into a logged 500 problem response and a
// system error metric. http.ErrAbortHandler passes through untouched, as
// net/http uses it to abort a response on purpose.
func Recoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				ctx := r.Context()
				logger.ErrorContext(ctx, "panic recovered",
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
					slog.String("route", r.Method+" "+r.URL.Path),
				)
				RecordSystemError(ctx, "panic", "http")

				writeProblem(w, r, problem{
					Type:   apierrors.TypeInternal,
					Title:  "Internal Server Error",
					Status: http.StatusInternalServerError,
					Detail: "The request failed in an unexpected way.",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter rejects requests beyond the configured steady rate. One token
// bucket covers the whole server.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimiter creates a rate limiter allowing rps requests per second
// with the given burst.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Handler answers 429 with a Retry-After hint once the bucket is empty.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("route", r.Method+" "+r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)

		w.Header().Set("Retry-After", "60")
		writeProblem(w, r, problem{
			Type:   "/errors/rate-limit",
			Title:  "Too Many Requests",
			Status: http.StatusTooManyRequests,
			Detail: "The rate limit was exceeded. Retry after 60 seconds.",
		})
	})
}

// Timeout cancels the request context after d and answers 504 if the handler
// has not finished by then. The handler writes into a buffer, so a late
// completion is discarded instead of racing the timeout response. Handlers
// that stream must not run under this middleware.
func Timeout(d time.Duration, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			buf := newBufferedResponse()
			done := make(chan struct{})
			panicked := make(chan interface{}, 1)

			go func() {
				defer func() {
					if rvr := recover(); rvr != nil {
						panicked <- rvr
						return
					}
					close(done)
				}()
				next.ServeHTTP(buf, r.WithContext(ctx))
			}()

			select {
			case rvr := <-panicked:
				// Surface the panic on the request goroutine so the
				// outer Recoverer sees it.
				panic(rvr)
			case <-done:
				buf.flush(w)
			case <-ctx.Done():
				logger.ErrorContext(r.Context(), "request timeout",
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.Duration("timeout", d),
				)

				writeProblem(w, r, problem{
					Type:   apierrors.TypeTimeout,
					Title:  "Request Timeout",
					Status: http.StatusGatewayTimeout,
					Detail: "Processing did not finish in time and was cancelled.",
				})
			}
		})
	}
}

// bufferedResponse captures a handler's response so a timed-out request can
// drop it wholesale. Only the handler goroutine touches it until done is
// signalled, so no locking is needed.
type bufferedResponse struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

// flush replays the buffered response onto the real writer.
func (b *bufferedResponse) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, vv := range b.header {
		dst[k] = vv
	}
	if b.status != 0 {
		w.WriteHeader(b.status)
	}
	if b.body.Len() > 0 {
		w.Write(b.body.Bytes())
	}
}

// SecurityHeaders stamps the standard browser hardening headers. The CSP
// permits inline scripts and styles; the status page and the dashboard
// assets use them.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self' data:")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Compress wraps chi's response compression.
func Compress(level int) func(next http.Handler) http.Handler {
	return middleware.Compress(level)
}

// RealIP wraps chi's client IP resolution.
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}
