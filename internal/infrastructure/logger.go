package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"teampulse/internal/config"
)

var (
	appLogger *slog.Logger
	initOnce  sync.Once

	// fileMu guards the open log file handle
	fileMu  sync.Mutex
	logFile *os.File
)

// traceIDKey keys the trace id in contexts. Unexported so the only way in
// or out is WithTraceID and GetTraceID.
type traceIDKey struct{}

// InitializeLogger builds the process-wide slog logger and installs it as
// the slog default. Call it once during startup. Records are always JSON;
// depending on cfg.Output they reach the log file, stderr, or both, so a
// run stays inspectable after the terminal scrolls away.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var err error
	initOnce.Do(func() {
		var handler slog.Handler
		var file *os.File
		handler, file, err = newHandler(cfg)
		if err != nil {
			return
		}

		fileMu.Lock()
		logFile = file
		fileMu.Unlock()

		appLogger = slog.New(handler)
		slog.SetDefault(appLogger)
	})
	return appLogger, err
}

// GetLogger returns the process logger, or slog's default before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	if appLogger != nil {
		return appLogger
	}
	return slog.Default()
}

// newHandler builds the JSON handler for the configured output mode.
// Console output goes to stderr so stdout stays free for command output.
func newHandler(cfg config.LoggingConfig) (slog.Handler, *os.File, error) {
	sink := io.Writer(os.Stderr)
	var file *os.File

	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		file = f
		sink = f
		if output == "both" {
			sink = io.MultiWriter(os.Stderr, f)
		}
	}

	json := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLogLevel(cfg.Level),
	})
	return &traceHandler{next: json}, file, nil
}

// traceHandler stamps every record with the trace ID carried by the
// context, so request and reload logs correlate without each call site
// passing the ID through.
type traceHandler struct {
	next slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	return h.next.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}

// parseLogLevel converts a config level string to slog.Level. Unknown
// values fall back to info.
func parseLogLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID returns the context's trace ID, or "" when none is set.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}

// GenerateTraceID mints a random trace ID.
func GenerateTraceID() string {
	return uuid.New().String()
}

// ContextWithTraceID returns a context carrying a fresh trace ID. Background
// work such as the startup load and watcher reloads uses this; HTTP requests
// get theirs from the request-id middleware.
func ContextWithTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, GenerateTraceID())
}

// CloseLogFile closes the log file if one is open. Called during graceful
// shutdown and between tests.
func CloseLogFile() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting clears the global logger state so tests can
// initialize again.
func ResetLoggerForTesting() {
	CloseLogFile()
	appLogger = nil
	initOnce = sync.Once{}
}

// openLogFile opens path for appending, creating parent directories first.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}
