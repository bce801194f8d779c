package errors

import (
	"fmt"
)

// Kind classifies a pipeline failure. The value doubles as the error_code
// extension of the problem document it maps to.
type Kind string

const (
	KindNetwork    Kind = "NETWORK"
	KindParsing    Kind = "PARSING"
	KindNoData     Kind = "NO_DATA"
	KindStorage    Kind = "STORAGE"
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindPermission Kind = "PERMISSION"
	KindConfig     Kind = "CONFIG"
)

// PipelineError is a classified failure raised while loading, parsing or
// serving the dataset. Context holds structured values that surface as
// problem extensions.
type PipelineError struct {
	Kind    Kind
	Message string
	Err     error
	Context map[string]interface{}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WithContext attaches one structured value, replacing any previous entry
// under the same key.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// NewPipelineError creates a classified error wrapping err.
func NewPipelineError(kind Kind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err, Context: map[string]interface{}{}}
}

// The pipeline raises three classifications on its own paths; everything
// else arrives through NewPipelineError at the failure site.

// NewParsingError marks a source that could not be read as a workbook.
func NewParsingError(message string, err error) *PipelineError {
	return NewPipelineError(KindParsing, message, err)
}

// NewNoDataError marks a source that parsed to nothing usable.
func NewNoDataError(message string, err error) *PipelineError {
	return NewPipelineError(KindNoData, message, err)
}

// NewConfigError marks an operator configuration problem.
func NewConfigError(message string, err error) *PipelineError {
	return NewPipelineError(KindConfig, message, err)
}
