package errors

import "errors"

// Sentinel states of the dataset pipeline. Callers branch on these with
// errors.Is; the problem mappers give each one a stable wire shape.
var (
	// ErrNoSnapshot is returned by read endpoints before any dataset has
	// been loaded successfully. Distinct from a load that failed: this is
	// the cold-start state.
	ErrNoSnapshot = errors.New("no snapshot loaded")

	// ErrEmptySelection is returned when a filter combination matches no
	// records. Handlers render it as an empty success envelope, not a
	// problem; the sentinel exists so they can tell it apart.
	ErrEmptySelection = errors.New("selection matched no records")

	// ErrSourceUnavailable is returned when the configured source cannot
	// be reached at all, e.g. the workbook file is missing or the Sheets
	// API call failed.
	ErrSourceUnavailable = errors.New("source unavailable")
)
