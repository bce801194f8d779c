package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler renders errors raised outside the dashboard routes: request
// validation failures from the middleware chain and the router's fallback
// handlers. Dashboard routes map their own errors through MapPipelineError;
// both paths share the problem type URIs, so clients see one vocabulary.
type ErrorHandler struct {
	logger    *slog.Logger
	withStack bool
}

// NewErrorHandler creates an error handler. withStack attaches stack traces
// to responses and is meant for development only.
func NewErrorHandler(logger *slog.Logger, withStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:    logger.With(slog.String("component", "error_handler")),
		withStack: withStack,
	}
}

// HandleError logs err and answers with its RFC 7807 problem document.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	h.logger.ErrorContext(r.Context(), "request error",
		slog.String("request_id", reqID),
		slog.String("route", r.Method+" "+r.URL.Path),
		slog.String("error", err.Error()))

	problem := h.ErrorToProblem(err, r).WithExtension("trace_id", reqID)
	if h.withStack {
		problem.WithExtension("stack", string(debug.Stack()))
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details. Typed
// errors carry their own classification; anything unrecognized renders as
// an internal error without leaking its message.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	instance := r.URL.Path

	var reqErr *RequestError
	var perr *PipelineError
	switch {
	case errors.As(err, &reqErr):
		return problemFromRequestError(reqErr, instance)
	case errors.As(err, &perr):
		return problemFromPipelineError(perr, instance)
	case errors.Is(err, ErrNoSnapshot):
		return noSnapshotProblem(instance)
	case errors.Is(err, ErrSourceUnavailable):
		return sourceDownProblem(instance)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return timeoutProblem(instance)
	}

	return internalProblem(instance)
}

// NotFound answers routes the router did not match.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblem(http.StatusNotFound, TypeNotFound, "Not Found",
		"No resource exists at this path.", r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed answers matched routes hit with the wrong method.
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblem(http.StatusMethodNotAllowed, TypeMethodNotAllowed, "Method Not Allowed",
		r.Method+" is not supported on this route.", r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}
