package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	apierrors "teampulse/internal/errors"
	"teampulse/pkg/contracts/domain"
)

// ValidationMiddleware guards JSON endpoints: it caps body size, verifies
// the payload is syntactically valid JSON, and validates decoded values
// against their validate tags.
type ValidationMiddleware struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	maxBodySize  int64
}

// NewValidationMiddleware creates a validation middleware with the
// dashboard tag validators registered.
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ValidationMiddleware {
	v := validator.New()

	v.RegisterValidation("month", isValidMonth)
	v.RegisterValidation("metric", isValidMetric)

	// Report fields by their JSON spelling, matching what the client sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &ValidationMiddleware{
		validator:    v,
		logger:       logger.With(slog.String("component", "validation")),
		errorHandler: errorHandler,
		maxBodySize:  1 << 20, // JSON payloads only; workbook uploads have their own limit
	}
}

// ValidateRequest rejects oversized or syntactically invalid JSON bodies
// before a handler decodes them. The body is restored for the next handler
// in the chain.
func (m *ValidationMiddleware) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				m.errorHandler.HandleError(w, r, apierrors.New(
					http.StatusRequestEntityTooLarge,
					apierrors.CodePayloadTooLarge,
					"Request body exceeds the maximum allowed size",
				).WithDetails(map[string]interface{}{"max_size": tooLarge.Limit}))
				return
			}

			m.logger.ErrorContext(r.Context(), "failed to read request body",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			m.errorHandler.HandleError(w, r, apierrors.InvalidRequest(err))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))

		if len(body) > 0 && !json.Valid(body) {
			m.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusBadRequest,
				apierrors.CodeInvalidJSON,
				"The request body is not valid JSON",
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ValidateStruct validates v against its validate tags and returns the
// field failures as one validation error.
func (m *ValidationMiddleware) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apierrors.InvalidRequest(err)
	}

	out := make([]apierrors.FieldError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, apierrors.FieldError{
			Field:   fe.Field(),
			Message: m.formatValidationError(fe),
		})
	}
	return apierrors.InvalidFields(out)
}

// CheckStruct validates v and writes the problem response on failure. It
// reports whether the request may proceed.
func (m *ValidationMiddleware) CheckStruct(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := m.ValidateStruct(v)
	if err == nil {
		return true
	}
	m.errorHandler.HandleError(w, r, err)
	return false
}

// formatValidationError renders one field failure as a client-facing
// message.
func (m *ValidationMiddleware) formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "month":
		return fmt.Sprintf("%s must be a month in YYYY-MM form", field)
	case "metric":
		return fmt.Sprintf("%s must be a leaderboard metric", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isValidMonth accepts YYYY-MM month keys.
func isValidMonth(fl validator.FieldLevel) bool {
	month := fl.Field().String()
	if len(month) != 7 || month[4] != '-' {
		return false
	}
	for i, ch := range month {
		if i == 4 {
			continue
		}
		if ch < '0' || ch > '9' {
			return false
		}
	}
	mm := (int(month[5]-'0') * 10) + int(month[6]-'0')
	return mm >= 1 && mm <= 12
}

// isValidMetric accepts leaderboard metric names.
func isValidMetric(fl validator.FieldLevel) bool {
	return domain.IsValidLeaderboardMetric(fl.Field().String())
}

// ContentTypeValidator rejects bodies of the wrong media type before any
// handler reads them. Requests without a body pass through.
func ContentTypeValidator(contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeProblem(w, r, problem{
				Type:   "/errors/unsupported-media-type",
				Title:  "Unsupported Media Type",
				Status: http.StatusUnsupportedMediaType,
				Detail: fmt.Sprintf("Content-Type must be one of: %s", strings.Join(contentTypes, ", ")),
			})
		})
	}
}

// QueryParamValidator answers enum-style query parameters with problem
// responses when the value falls outside the allowed set.
type QueryParamValidator struct {
	errorHandler *apierrors.ErrorHandler
}

// NewQueryParamValidator creates a query parameter validator.
func NewQueryParamValidator(errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	return &QueryParamValidator{errorHandler: errorHandler}
}

// ValidateEnum returns the parameter value, or defaultValue when the
// parameter is unset. A value outside allowed writes the problem response
// and reports false.
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (string, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}

	for _, a := range allowed {
		if value == a {
			return value, true
		}
	}

	v.errorHandler.HandleError(w, r, apierrors.InvalidField(param,
		fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", "))))
	return "", false
}
