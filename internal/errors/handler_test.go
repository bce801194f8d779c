package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teampulse/internal/shared/testutil"
)

func newHandlerFixture(t *testing.T, withStack bool) (*ErrorHandler, *testutil.LogBuffer) {
	t.Helper()
	logger, logHandler := testutil.NewTestLogger(t)
	return NewErrorHandler(logger, withStack), logHandler
}

// requestWithID builds a request whose context carries a request ID the way
// the router middleware installs it.
func requestWithID(method, target, reqID string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(r.Context(), middleware.RequestIDKey, reqID)
	return r.WithContext(ctx)
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var problem map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&problem))
	return problem
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name:       "field validation request error",
			err:        InvalidField("month", "month must be a month in YYYY-MM form"),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantCode:   CodeValidationFailed,
		},
		{
			name:       "invalid json request error",
			err:        New(http.StatusBadRequest, CodeInvalidJSON, "Request body contains invalid JSON"),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantCode:   CodeInvalidJSON,
		},
		{
			name: "payload too large request error",
			err: New(http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				"Request body exceeds the maximum allowed size").
				WithDetails(map[string]interface{}{"max_size_bytes": int64(10 << 20)}),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   TypePayloadTooLarge,
			wantCode:   CodePayloadTooLarge,
		},
		{
			name:       "no usable data pipeline error",
			err:        NewNoDataError("0 rows survived normalization", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeNoUsableData,
			wantCode:   "NO_DATA",
		},
		{
			name:       "parsing pipeline error",
			err:        NewParsingError("workbook has no sheets", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeDataCorrupted,
			wantCode:   "PARSING",
		},
		{
			name:       "cold start sentinel",
			err:        fmt.Errorf("latest month: %w", ErrNoSnapshot),
			wantStatus: http.StatusNotFound,
			wantType:   TypeSnapshotMissing,
		},
		{
			name:       "source unavailable sentinel",
			err:        fmt.Errorf("reload: %w", ErrSourceUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   TypeServiceDown,
		},
		{
			name:       "deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "context canceled",
			err:        context.Canceled,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newHandlerFixture(t, false)
			w := httptest.NewRecorder()
			r := requestWithID(http.MethodGet, "/api/dashboard/members", "req-123")

			handler.HandleError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

			problem := decodeProblem(t, w)
			assert.Equal(t, tt.wantType, problem["type"])
			assert.Equal(t, float64(tt.wantStatus), problem["status"])
			assert.Equal(t, "req-123", problem["trace_id"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, problem["error_code"])
			}
		})
	}

	t.Run("unknown errors render as internal without the message", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, false)
		w := httptest.NewRecorder()
		err := errors.New("open /data/uploads/tasks.xlsx: permission denied")

		handler.HandleError(w, requestWithID(http.MethodGet, "/api/dashboard", "req-2"), err)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		problem := decodeProblem(t, w)
		assert.Equal(t, TypeInternal, problem["type"])
		detail, _ := problem["detail"].(string)
		assert.NotContains(t, detail, "permission denied")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		handler, logHandler := newHandlerFixture(t, false)
		w := httptest.NewRecorder()

		handler.HandleError(w, requestWithID(http.MethodGet, "/api/dashboard", "req-1"), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, w.Body.Len())
		assert.Zero(t, logHandler.Count())
	})

	t.Run("field failures survive into details", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, false)
		w := httptest.NewRecorder()
		err := InvalidFields([]FieldError{
			{Field: "month", Message: "month must be a month in YYYY-MM form"},
			{Field: "metric", Message: "metric must be a leaderboard metric"},
		})

		handler.HandleError(w, requestWithID(http.MethodGet, "/api/dashboard/leaderboard", "req-9"), err)

		problem := decodeProblem(t, w)
		details, ok := problem["details"].(map[string]interface{})
		require.True(t, ok, "details should be an object, got %T", problem["details"])
		fields, ok := details["errors"].([]interface{})
		require.True(t, ok)
		require.Len(t, fields, 2)
		first, ok := fields[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "month", first["field"])
	})

	t.Run("pipeline context lands in the problem", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, false)
		w := httptest.NewRecorder()
		err := NewParsingError("the workbook could not be parsed", nil).
			WithContext("source", "tasks.xlsx")

		handler.HandleError(w, requestWithID(http.MethodPost, "/api/dashboard/upload", "req-3"), err)

		problem := decodeProblem(t, w)
		assert.Equal(t, "tasks.xlsx", problem["source"])
	})

	t.Run("failure is logged with request context", func(t *testing.T) {
		handler, logHandler := newHandlerFixture(t, false)
		w := httptest.NewRecorder()

		handler.HandleError(w, requestWithID(http.MethodPost, "/api/dashboard/reload", "req-77"), errors.New("boom"))

		testutil.AssertLogContains(t, logHandler, slog.LevelError, "request error")
		testutil.AssertLogAttr(t, logHandler, "request_id", "req-77")
		testutil.AssertLogAttr(t, logHandler, "route", "POST /api/dashboard/reload")
	})
}

func TestHandleError_StackTrace(t *testing.T) {
	t.Run("included in development", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, true)
		w := httptest.NewRecorder()

		handler.HandleError(w, requestWithID(http.MethodGet, "/api/dashboard", "req-1"), errors.New("boom"))

		problem := decodeProblem(t, w)
		stack, ok := problem["stack"].(string)
		require.True(t, ok, "stack extension missing")
		assert.Contains(t, stack, "goroutine")
	})

	t.Run("omitted in production", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, false)
		w := httptest.NewRecorder()

		handler.HandleError(w, requestWithID(http.MethodGet, "/api/dashboard", "req-1"), errors.New("boom"))

		assert.NotContains(t, decodeProblem(t, w), "stack")
	})
}

func TestNotFound(t *testing.T) {
	handler, _ := newHandlerFixture(t, false)
	w := httptest.NewRecorder()

	handler.NotFound(w, requestWithID(http.MethodGet, "/api/nope", "req-5"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, TypeNotFound, problem["type"])
	assert.Equal(t, "/api/nope", problem["instance"])
	assert.Equal(t, "req-5", problem["trace_id"])
}

func TestMethodNotAllowed(t *testing.T) {
	handler, _ := newHandlerFixture(t, false)
	w := httptest.NewRecorder()

	handler.MethodNotAllowed(w, requestWithID(http.MethodDelete, "/api/dashboard/records", "req-6"))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, TypeMethodNotAllowed, problem["type"])
	assert.Contains(t, problem["detail"], "DELETE is not supported")
	assert.Equal(t, "req-6", problem["trace_id"])
}
