package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"teampulse/internal/config"
	apierrors "teampulse/internal/errors"
	"teampulse/internal/infrastructure"
	customMiddleware "teampulse/internal/middleware"
	"teampulse/internal/services"
	"teampulse/internal/validation"
	"teampulse/pkg/contracts/domain"
)

// DashboardHandler handles dataset HTTP requests with RFC 7807 compliance
type DashboardHandler struct {
	service     DashboardServiceInterface
	validator   *validation.FileValidator
	queryParams *customMiddleware.QueryParamValidator
	logger      *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler with RFC 7807 error handling
func NewDashboardHandler(service DashboardServiceInterface, validator *validation.FileValidator, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		service:     service,
		validator:   validator,
		queryParams: customMiddleware.NewQueryParamValidator(apierrors.NewErrorHandler(logger, false)),
		logger:      logger.With(slog.String("component", "dashboard_handler")),
	}
}

// Routes returns the dashboard routes with proper Chi patterns
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Use render for consistent JSON responses
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// Read routes serve the current snapshot
	r.Get("/records", h.GetRecords)
	r.Get("/summary/members", h.GetMemberSummary)
	r.Get("/summary/team", h.GetTeamSummary)
	r.Get("/leaderboard", h.GetLeaderboard)
	r.Get("/filters", h.GetFilters)
	r.Get("/snapshot", h.GetSnapshot)
	r.Get("/export", h.ExportTable)

	// Load routes replace the snapshot; both are traced as dataset operations
	r.Post("/upload", customMiddleware.DatasetTraceHandler("upload", h.UploadWorkbook))
	r.Post("/reload", customMiddleware.DatasetTraceHandler("reload", h.ReloadSource))

	return r
}

// renderProblem logs err and writes it as an RFC 7807 problem response.
func (h *DashboardHandler) renderProblem(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	render.Render(w, r, apierrors.MapPipelineError(err, reqID))
}

// parseTaskFilter builds a record filter from the shared query parameters.
// All four parameters are optional comma-separated lists; months must be
// YYYY-MM.
func parseTaskFilter(r *http.Request) (domain.TaskFilter, error) {
	q := r.URL.Query()

	filter := domain.TaskFilter{
		Members:  splitParam(q.Get("members")),
		Statuses: splitParam(q.Get("statuses")),
		Projects: splitParam(q.Get("projects")),
	}

	for _, raw := range splitParam(q.Get("months")) {
		month, err := time.Parse("2006-01", raw)
		if err != nil {
			return domain.TaskFilter{}, apierrors.InvalidField("months",
				fmt.Sprintf("invalid month %q, expected YYYY-MM", raw))
		}
		filter.Months = append(filter.Months, month)
	}

	return filter, nil
}

// splitParam splits a comma-separated query value, dropping blanks.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}

	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// GetRecords handles GET /api/dashboard/records with RFC 7807 errors
func (h *DashboardHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	filter, err := parseTaskFilter(r)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching records",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	records, err := h.service.Records(r.Context(), filter)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   records,
		"count":  len(records),
	})
}

// GetMemberSummary handles GET /api/dashboard/summary/members with RFC 7807 errors
func (h *DashboardHandler) GetMemberSummary(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	filter, err := parseTaskFilter(r)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching member summary",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	rows, err := h.service.MemberMonthly(r.Context(), filter)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   rows,
		"count":  len(rows),
	})
}

// GetTeamSummary handles GET /api/dashboard/summary/team with RFC 7807 errors
func (h *DashboardHandler) GetTeamSummary(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	filter, err := parseTaskFilter(r)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching team summary",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	rows, err := h.service.TeamMonthly(r.Context(), filter)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   rows,
		"count":  len(rows),
	})
}

// GetLeaderboard handles GET /api/dashboard/leaderboard with RFC 7807 errors.
// A filter that matches no records is not an error: it renders an empty
// envelope so clients can clear their boards without special-casing 404s.
func (h *DashboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	filter, err := parseTaskFilter(r)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching leaderboard",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	board, err := h.service.Leaderboard(r.Context(), filter)
	if err != nil {
		if errors.Is(err, apierrors.ErrEmptySelection) {
			render.JSON(w, r, map[string]interface{}{
				"status": "empty",
			})
			return
		}

		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   board,
		"month":  board.Month.Format("2006-01"),
	})
}

// GetFilters handles GET /api/dashboard/filters with RFC 7807 errors
func (h *DashboardHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.InfoContext(r.Context(), "fetching filter values",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	values, err := h.service.FilterValues(r.Context())
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   values,
	})
}

// GetSnapshot handles GET /api/dashboard/snapshot with RFC 7807 errors
func (h *DashboardHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	info, err := h.service.SnapshotInfo()
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching snapshot info",
		slog.String("request_id", reqID),
		slog.String("snapshot_id", info.ID),
	)

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   info,
	})
}

// UploadWorkbook handles POST /api/dashboard/upload. The workbook arrives as
// a multipart form; it is validated (name, size, magic bytes) before the
// bytes reach the parser, and a successful load replaces the snapshot.
func (h *DashboardHandler) UploadWorkbook(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
		h.renderProblem(w, r, apierrors.InvalidField(config.UploadFieldName,
			"could not parse multipart form: "+err.Error()))
		return
	}

	file, header, err := r.FormFile(config.UploadFieldName)
	if err != nil {
		h.renderProblem(w, r, apierrors.InvalidField(config.UploadFieldName,
			"a workbook file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.renderProblem(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	signature := data
	if len(signature) > 512 {
		signature = signature[:512]
	}
	if err := h.validator.ValidateWorkbookUpload(header.Filename, int64(len(data)), config.MaxUploadBytes, signature); err != nil {
		h.renderProblem(w, r, apierrors.InvalidField(config.UploadFieldName, err.Error()))
		return
	}

	h.logger.InfoContext(r.Context(), "loading uploaded workbook",
		slog.String("request_id", reqID),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)),
	)

	infrastructure.RecordUploadBytes(r.Context(),
		customMiddleware.GetBusinessMetricsFromContext(r.Context()), int64(len(data)))

	snap, err := h.service.LoadFromUpload(r.Context(), header.Filename, data)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   snap.Info,
		"count":  snap.Info.RecordCount,
	})
}

// ReloadSource handles POST /api/dashboard/reload. It re-reads whatever
// source the configuration points at; unchanged content keeps the current
// snapshot, so a reload is cheap to poke.
func (h *DashboardHandler) ReloadSource(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.InfoContext(r.Context(), "reloading configured source",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	snap, err := h.service.LoadFromSource(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrUnknownSourceType) {
			h.renderProblem(w, r, apierrors.NewConfigError(
				"the configured source type is not recognized", err))
			return
		}

		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   snap.Info,
		"count":  snap.Info.RecordCount,
	})
}

// ExportTable handles GET /api/dashboard/export with RFC 7807 errors.
// Query parameters: table (records|members|team, default records), format
// (csv|parquet, default csv), plus the shared filter parameters.
func (h *DashboardHandler) ExportTable(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	table, ok := h.queryParams.ValidateEnum(w, r, "table",
		[]string{services.ExportTableRecords, services.ExportTableMembers, services.ExportTableTeam},
		services.ExportTableRecords)
	if !ok {
		return
	}
	format, ok := h.queryParams.ValidateEnum(w, r, "format",
		[]string{services.ExportFormatCSV, services.ExportFormatParquet},
		services.ExportFormatCSV)
	if !ok {
		return
	}

	filter, err := parseTaskFilter(r)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "exporting table",
		slog.String("request_id", reqID),
		slog.String("table", table),
		slog.String("format", format),
	)

	path, err := h.service.Export(r.Context(), table, format, filter)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"path":   path,
			"table":  table,
			"format": format,
		},
	})
}
