package dataprocessing

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateLayouts are the explicit formats tried in order after the compact
// YYYYMMDD check. Day-first wins over month-first for slash dates.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"02/01/2006",
	"01/02/2006",
}

var (
	compactDate = regexp.MustCompile(`^\d{8}$`)

	// rangeDelimiter matches the separators a duration cell may use between
	// its two dates: hyphen/en-dash/em-dash, slash, or the word "to".
	rangeDelimiter = regexp.MustCompile(`\s*[-\x{2013}\x{2014}/]\s*|\s+to\s+`)
)

// ParseDate coerces a single cell into a UTC calendar date. Numeric cells
// often arrive as "20250703" or "20250703.0"; those are read as YYYYMMDD and
// rejected when the month or day is out of range. Anything else runs through
// the explicit layouts, then a permissive fallback. Unparseable input yields
// nil, never an error.
func ParseDate(cell string) *time.Time {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}

	if compact := strings.TrimSuffix(s, ".0"); compactDate.MatchString(compact) {
		t, err := time.Parse("20060102", compact)
		if err != nil {
			// Eight digits that are not a calendar date, e.g. 20250231.
			return nil
		}
		return datePtr(t)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return datePtr(t)
		}
	}

	if t, err := dateparse.ParseAny(s); err == nil {
		return datePtr(t)
	}

	return nil
}

// ParseRange splits a duration cell at the first delimiter and parses each
// side independently. A cell without a delimiter contributes its single date
// as the window start; an empty cell yields neither bound.
func ParseRange(cell string) (start, end *time.Time) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil, nil
	}

	loc := rangeDelimiter.FindStringIndex(s)
	if loc == nil {
		return ParseDate(s), nil
	}

	return ParseDate(s[:loc[0]]), ParseDate(s[loc[1]:])
}

// MonthOf truncates a date to the first of its month in UTC, the grouping
// key for all time-bucketed aggregation.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// datePtr strips any time-of-day and zone the source format carried.
func datePtr(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
