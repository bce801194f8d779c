package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Problem type URIs carried in RFC 7807 responses
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
	TypeForbidden        = "/errors/forbidden"
	TypeInternal         = "/errors/internal"
	TypeServiceDown      = "/errors/service-unavailable"
	TypeTimeout          = "/errors/timeout"
	TypePayloadTooLarge  = "/errors/payload-too-large"
)

// Problem types for dataset pipeline states
const (
	TypeSnapshotMissing = "/errors/data/not-loaded"
	TypeNoUsableData    = "/errors/data/no-usable-rows"
	TypeDataCorrupted   = "/errors/data/corrupted"
)

// ProblemDetails is an RFC 7807 problem document. Extension members are
// kept out of band and merged next to the standard fields at marshal time.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render sets the response status for chi's renderer.
func (p *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, p.Status)
	return nil
}

// MarshalJSON flattens the extension members into the document.
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{
		"type":   p.Type,
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Detail != "" {
		doc["detail"] = p.Detail
	}
	if p.Instance != "" {
		doc["instance"] = p.Instance
	}
	for key, value := range p.Extensions {
		doc[key] = value
	}
	return json.Marshal(doc)
}

// NewProblem creates a problem document for the given status.
func NewProblem(status int, uri, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       uri,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: map[string]interface{}{},
	}
}

// WithExtension adds an extension member, replacing any previous value
// under the same key.
func (p *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	p.Extensions[key] = value
	return p
}

// problemTypeForStatus maps a status code to its problem type URI, so a new
// error code can never render with a mismatched URI.
func problemTypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusForbidden:
		return TypeForbidden
	case http.StatusRequestEntityTooLarge:
		return TypePayloadTooLarge
	case http.StatusUnprocessableEntity:
		return TypeNoUsableData
	case http.StatusServiceUnavailable:
		return TypeServiceDown
	case http.StatusGatewayTimeout:
		return TypeTimeout
	default:
		return TypeInternal
	}
}

// problemFromRequestError keeps the RequestError's status and code and
// derives the type URI from the status.
func problemFromRequestError(reqErr *RequestError, instance string) *ProblemDetails {
	problem := NewProblem(reqErr.Status, problemTypeForStatus(reqErr.Status),
		http.StatusText(reqErr.Status), reqErr.Message, instance).
		WithExtension("error_code", reqErr.Code)
	if reqErr.Details != nil {
		problem.WithExtension("details", reqErr.Details)
	}
	return problem
}

// problemShapes gives each pipeline failure kind its wire shape. Kinds
// outside the table (storage, config) stay internal: they describe the
// operator's deployment, not the caller's request.
var problemShapes = map[Kind]struct {
	status int
	uri    string
	title  string
}{
	KindNoData:     {http.StatusUnprocessableEntity, TypeNoUsableData, "No Usable Data"},
	KindParsing:    {http.StatusUnprocessableEntity, TypeDataCorrupted, "Source Not Parseable"},
	KindValidation: {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	KindNotFound:   {http.StatusNotFound, TypeNotFound, "Not Found"},
	KindNetwork:    {http.StatusServiceUnavailable, TypeServiceDown, "Upstream Unavailable"},
	KindPermission: {http.StatusForbidden, TypeForbidden, "Forbidden"},
}

// problemFromPipelineError renders a classified pipeline failure with its
// context entries as extensions.
func problemFromPipelineError(perr *PipelineError, instance string) *ProblemDetails {
	shape, ok := problemShapes[perr.Kind]
	if !ok {
		shape.status = http.StatusInternalServerError
		shape.uri = TypeInternal
		shape.title = "Internal Server Error"
	}

	problem := NewProblem(shape.status, shape.uri, shape.title, perr.Message, instance).
		WithExtension("error_code", string(perr.Kind))
	for key, value := range perr.Context {
		problem.WithExtension(key, value)
	}
	return problem
}

func noSnapshotProblem(instance string) *ProblemDetails {
	return NewProblem(http.StatusNotFound, TypeSnapshotMissing, "No Dataset Loaded",
		"No source has been loaded yet. Upload a workbook or trigger a reload.", instance)
}

func sourceDownProblem(instance string) *ProblemDetails {
	return NewProblem(http.StatusServiceUnavailable, TypeServiceDown, "Source Unavailable",
		"The configured data source could not be reached.", instance)
}

func timeoutProblem(instance string) *ProblemDetails {
	return NewProblem(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
		"Processing did not finish in time and was cancelled.", instance)
}

func internalProblem(instance string) *ProblemDetails {
	return NewProblem(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"The request failed in an unexpected way.", instance)
}

// MapPipelineError renders a dashboard route failure as a problem document.
// Typed errors carry their own classification, sentinels get fixed shapes,
// and anything unrecognized renders as internal without leaking its message.
func MapPipelineError(err error, traceID string) render.Renderer {
	instance := "/api/dashboard#trace-" + traceID

	var problem *ProblemDetails
	var reqErr *RequestError
	var perr *PipelineError
	switch {
	case errors.As(err, &reqErr):
		problem = problemFromRequestError(reqErr, instance)
	case errors.As(err, &perr):
		problem = problemFromPipelineError(perr, instance)
	case errors.Is(err, ErrNoSnapshot):
		problem = noSnapshotProblem(instance).WithExtension("error_code", CodeSnapshotMissing)
	case errors.Is(err, ErrSourceUnavailable):
		problem = sourceDownProblem(instance).WithExtension("error_code", CodeSourceUnavailable)
	default:
		problem = internalProblem(instance).WithExtension("error_code", CodeInternal)
	}

	return problem.WithExtension("trace_id", traceID)
}
