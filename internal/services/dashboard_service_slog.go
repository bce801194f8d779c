package services

import (
	"context"
	"log/slog"

	"teampulse/internal/infrastructure"
)

// logDatasetError logs a dashboard service failure with the component and
// action stamped on. The trace ID comes in through the context.
func logDatasetError(ctx context.Context, action, message string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("component", "dashboard_service"),
		slog.String("action", action),
	}
	allAttrs = append(allAttrs, attrs...)

	infrastructure.GetLogger().LogAttrs(ctx, slog.LevelError, message, allAttrs...)
}
