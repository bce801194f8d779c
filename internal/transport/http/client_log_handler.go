package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "teampulse/internal/errors"
	customMiddleware "teampulse/internal/middleware"
)

// clientLogLevels maps the levels the frontend may send to slog levels.
var clientLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ClientLogEntry is one log record forwarded by the browser frontend.
type ClientLogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message" validate:"required,max=4096"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Source  string                 `json:"source,omitempty" validate:"omitempty,max=128"`
}

// ClientLogHandler relays browser console output into the server log so
// frontend failures land next to the backend events they belong to.
type ClientLogHandler struct {
	logger   *slog.Logger
	validate *customMiddleware.ValidationMiddleware
}

// NewClientLogHandler creates a client log handler.
func NewClientLogHandler(logger *slog.Logger, validate *customMiddleware.ValidationMiddleware) *ClientLogHandler {
	return &ClientLogHandler{
		logger:   logger.With(slog.String("handler", "client_log")),
		validate: validate,
	}
}

// Handle accepts one log entry and writes it to the server log. Unknown
// levels degrade to info.
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var entry ClientLogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		apierrors.WriteProblem(w, r, apierrors.InvalidRequest(err))
		return
	}

	if !h.validate.CheckStruct(w, r, &entry) {
		return
	}

	level, ok := clientLogLevels[entry.Level]
	if !ok {
		level = slog.LevelInfo
	}

	attrs := []slog.Attr{slog.String("client_source", entry.Source)}
	if entry.Data != nil {
		attrs = append(attrs, slog.Any("data", entry.Data))
	}

	h.logger.LogAttrs(r.Context(), level, entry.Message, attrs...)

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
	})
}
