package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestError(t *testing.T) {
	err := New(http.StatusBadRequest, CodeInvalidJSON, "Request body contains invalid JSON")

	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, CodeInvalidJSON, err.Code)
	assert.Equal(t, "Request body contains invalid JSON", err.Error())
	assert.Nil(t, err.Details)

	// Handlers recover the typed error from wrapped chains
	wrapped := fmt.Errorf("decode body: %w", err)
	var reqErr *RequestError
	require.True(t, errors.As(wrapped, &reqErr))
	assert.Equal(t, CodeInvalidJSON, reqErr.Code)
}

func TestRequestError_WithDetails(t *testing.T) {
	details := map[string]interface{}{"max_size": 1 << 20}
	err := New(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body exceeds the maximum allowed size").
		WithDetails(details)

	assert.Equal(t, http.StatusRequestEntityTooLarge, err.Status)
	assert.Equal(t, CodePayloadTooLarge, err.Code)
	assert.Equal(t, details, err.Details)
}

func TestRequestErrorConstructors(t *testing.T) {
	cause := errors.New("open tasks.xlsx: no such file or directory")

	tests := []struct {
		name        string
		err         *RequestError
		wantCode    string
		wantDetails interface{}
	}{
		{
			name:        "invalid request wraps the cause",
			err:         InvalidRequest(cause),
			wantCode:    CodeInvalidRequest,
			wantDetails: cause.Error(),
		},
		{
			name:        "single field failure carries the field",
			err:         InvalidField("month", "month must be a month in YYYY-MM form"),
			wantCode:    CodeValidationFailed,
			wantDetails: FieldError{Field: "month", Message: "month must be a month in YYYY-MM form"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, tt.err.Status)
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantDetails, tt.err.Details)
		})
	}
}

func TestInvalidFields(t *testing.T) {
	err := InvalidFields([]FieldError{
		{Field: "month", Message: "month must be a month in YYYY-MM form"},
		{Field: "limit", Message: "limit must be at least 1"},
	})

	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, CodeValidationFailed, err.Code)

	details, ok := err.Details.(FieldErrors)
	require.True(t, ok, "details should be FieldErrors, got %T", err.Details)
	require.Len(t, details.Fields, 2)
	assert.Equal(t, "month", details.Fields[0].Field)
	assert.Equal(t, "limit", details.Fields[1].Field)
}

func TestWriteProblem(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/logs", nil)

	WriteProblem(w, r, InvalidField("metric", "metric must be a leaderboard metric"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var problem map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&problem))
	assert.Equal(t, TypeValidation, problem["type"])
	assert.Equal(t, float64(http.StatusBadRequest), problem["status"])
	assert.Equal(t, CodeValidationFailed, problem["error_code"])
	assert.Equal(t, "/api/logs", problem["instance"])

	details, ok := problem["details"].(map[string]interface{})
	require.True(t, ok, "details should be an object, got %T", problem["details"])
	assert.Equal(t, "metric", details["field"])
}
