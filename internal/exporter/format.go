package exporter

import (
	"fmt"
	"strconv"
	"time"
)

// formatFloat formats a float64 value for CSV output with exactly 2 decimal places
func formatFloat(f float64) string {
	// Always format with exactly 2 decimal places for consistency
	// This ensures values like 13.4 appear as 13.40 in CSV
	return fmt.Sprintf("%.2f", f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatRate formats an optional rate with full precision so round trips
// through CSV lose nothing. Nil becomes the empty cell.
func formatRate(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// formatHours formats an optional hour count. Nil becomes the empty cell.
func formatHours(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

// formatBoolPtr formats an optional boolean. Nil becomes the empty cell.
func formatBoolPtr(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "true"
	}
	return "false"
}

// formatString formats an optional string. Nil becomes the empty cell.
func formatString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatDate formats an optional date as YYYY-MM-DD. Nil becomes the empty cell.
func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// formatMonth formats a first-of-month date as YYYY-MM
func formatMonth(t time.Time) string {
	return t.Format("2006-01")
}
