package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Stable machine-readable codes carried in the error_code extension of
// problem responses. Clients switch on these, so the human messages can
// change without breaking anyone.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidJSON       = "INVALID_JSON"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeSnapshotMissing   = "SNAPSHOT_NOT_FOUND"
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// RequestError classifies a rejected request: the status to answer with, a
// stable code, a human message and an optional details payload. It never
// reaches the wire by itself; the problem mappers fold it into an RFC 7807
// document.
type RequestError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
}

func (e *RequestError) Error() string {
	return e.Message
}

// New creates a RequestError answering status with the given code.
func New(status int, code, message string) *RequestError {
	return &RequestError{Status: status, Code: code, Message: message}
}

// WithDetails attaches a payload that surfaces under the problem document's
// details key.
func (e *RequestError) WithDetails(details interface{}) *RequestError {
	e.Details = details
	return e
}

// InvalidRequest rejects a request whose body could not be decoded.
func InvalidRequest(err error) *RequestError {
	return New(http.StatusBadRequest, CodeInvalidRequest, "The request body could not be decoded").
		WithDetails(err.Error())
}

// FieldError names one rejected field and what was wrong with it.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors wraps every rejected field of one request.
type FieldErrors struct {
	Fields []FieldError `json:"errors"`
}

// InvalidField rejects a request over a single bad field.
func InvalidField(field, message string) *RequestError {
	return New(http.StatusBadRequest, CodeValidationFailed, "One or more request fields are invalid").
		WithDetails(FieldError{Field: field, Message: message})
}

// InvalidFields rejects a request over several bad fields at once.
func InvalidFields(fields []FieldError) *RequestError {
	return New(http.StatusBadRequest, CodeValidationFailed, "One or more request fields are invalid").
		WithDetails(FieldErrors{Fields: fields})
}

// WriteProblem answers reqErr as a problem document without going through
// the render chain, for handlers that fail before chi's renderer is usable.
// The body matches what HandleError would have produced.
func WriteProblem(w http.ResponseWriter, r *http.Request, reqErr *RequestError) {
	problem := problemFromRequestError(reqErr, r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context()))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(reqErr.Status)
	json.NewEncoder(w).Encode(problem)
}
