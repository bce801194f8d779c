package services

import "errors"

// Dashboard service errors
var (
	// Source errors
	ErrUnknownSourceType = errors.New("unknown source type")

	// Export errors
	ErrUnknownExportTable  = errors.New("unknown export table")
	ErrUnknownExportFormat = errors.New("unknown export format")
)
