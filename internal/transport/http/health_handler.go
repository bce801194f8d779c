package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "teampulse/internal/errors"
	"teampulse/internal/services"
)

// HealthHandler serves the probe and diagnostics endpoints.
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler wires the probe routes to the health service.
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck answers GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.HealthCheck(r.Context()))
}

// ReadinessCheck answers GET /api/health/ready. Load balancers act on the
// status code, so a probe that is not ready answers 503 rather than a 200
// whose body needs parsing.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.ReadinessCheck(r.Context()))
}

// LivenessCheck answers GET /api/health/live.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, h.service.LivenessCheck(r.Context()))
}

// Version answers GET /api/version with the build identity of the binary.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}

// Stats answers GET /api/health/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SystemStats(r.Context())
	if err != nil {
		reqID := middleware.GetReqID(r.Context())
		h.logger.ErrorContext(r.Context(), "failed to collect system stats",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		render.Render(w, r, apierrors.MapPipelineError(err, reqID))
		return
	}
	render.JSON(w, r, stats)
}

// Detailed answers GET /api/health/detailed, bundling every probe with the
// system stats for one-stop debugging.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Detailed(r.Context()))
}

func (h *HealthHandler) renderStatus(w http.ResponseWriter, r *http.Request, status services.HealthStatus) {
	if status.Status == "not_ready" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}
