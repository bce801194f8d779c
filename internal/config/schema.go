package config

import "strings"

// Column is the canonical identifier for a recognized source column. The
// pipeline never touches raw header strings outside of Schema resolution;
// parser, normalizer and aggregator all speak in these keys.
type Column string

const (
	ColumnMember    Column = "member"
	ColumnTaskRef   Column = "task_ref"
	ColumnCompleted Column = "completed_date"
	ColumnDuration  Column = "work_duration"
	ColumnTarget    Column = "target_hours"
	ColumnActual    Column = "actual_hours"
	ColumnEff       Column = "efficiency"
	ColumnQuality   Column = "quality"
	ColumnRevisions Column = "revisions"
	ColumnStatus    Column = "status"
	ColumnProject   Column = "project"
)

// DateField names one of the derived date fields a month bucket can be
// taken from.
type DateField string

const (
	DateFieldWindowEnd   DateField = "window_end"
	DateFieldWindowStart DateField = "window_start"
	DateFieldCompleted   DateField = "completed_date"
)

// EfficiencySource names one way of obtaining the efficiency fraction.
type EfficiencySource string

const (
	// EfficiencyFromHours derives target/actual per row. Requires both hour
	// columns; considered ground truth and supersedes a supplied column.
	EfficiencyFromHours EfficiencySource = "hours_ratio"

	// EfficiencyFromColumn takes the supplied efficiency column through
	// percentage scaling.
	EfficiencyFromColumn EfficiencySource = "efficiency_column"
)

// Schema is the single declarative description of the source sheet: the
// worksheet preference order, the header names that bind each canonical
// column, and the priority lists for derived fields. Every component that
// needs to know a column name consults the Schema instead of carrying its
// own constants.
type Schema struct {
	// SheetPreference lists worksheet names tried in order; when none
	// matches, the first sheet in the workbook is used.
	SheetPreference []string

	// Headers maps each canonical column to the header spellings that bind
	// it. Headers are matched after trimming surrounding whitespace.
	Headers map[Column][]string

	// MonthSourcePriority orders the derived date fields tried when
	// resolving a row's month bucket.
	MonthSourcePriority []DateField

	// EfficiencyPriority orders the efficiency sources; the first source
	// whose required columns are present wins for the whole load.
	EfficiencyPriority []EfficiencySource

	// FractionThreshold is the column-max boundary between "already a
	// fraction" and "percentage points". Inherited heuristic; can misread
	// a column whose values are legitimately all below it.
	FractionThreshold float64

	// PercentDivisor rescales percentage-point columns.
	PercentDivisor float64
}

// DefaultSchema returns the schema for the team task sheet layout.
func DefaultSchema() *Schema {
	return &Schema{
		SheetPreference: []string{"5", "1", "Sheet1", "Sheet 1"},
		Headers: map[Column][]string{
			ColumnMember:    {"Name", "Member"},
			ColumnTaskRef:   {"Ref. number"},
			ColumnCompleted: {"Date Completed"},
			ColumnDuration:  {"Work Duration"},
			ColumnTarget:    {"Target Work Hours"},
			ColumnActual:    {"Actual Work Hours"},
			ColumnEff:       {"Efficiency"},
			ColumnQuality:   {"QS%"},
			ColumnRevisions: {"Revision/s"},
			ColumnStatus:    {"Status"},
			ColumnProject:   {"Project Involvement"},
		},
		MonthSourcePriority: []DateField{
			DateFieldWindowEnd,
			DateFieldWindowStart,
			DateFieldCompleted,
		},
		EfficiencyPriority: []EfficiencySource{
			EfficiencyFromHours,
			EfficiencyFromColumn,
		},
		FractionThreshold: 1.5,
		PercentDivisor:    100,
	}
}

// MatchHeader resolves a raw header cell to its canonical column. The header
// is trimmed before matching; unrecognized headers report false.
func (s *Schema) MatchHeader(header string) (Column, bool) {
	trimmed := strings.TrimSpace(header)
	for col, names := range s.Headers {
		for _, name := range names {
			if trimmed == name {
				return col, true
			}
		}
	}
	return "", false
}

// Resolve maps each canonical column to its zero-based position in the
// header row. Columns absent from the sheet are absent from the map; when a
// column binds twice the first position wins.
func (s *Schema) Resolve(headers []string) map[Column]int {
	resolved := make(map[Column]int)
	for i, header := range headers {
		col, ok := s.MatchHeader(header)
		if !ok {
			continue
		}
		if _, taken := resolved[col]; !taken {
			resolved[col] = i
		}
	}
	return resolved
}

// PickSheet selects the worksheet to read from the given sheet names,
// applying the preference order and falling back to the first sheet. The
// second return is false only for an empty workbook.
func (s *Schema) PickSheet(sheets []string) (string, bool) {
	if len(sheets) == 0 {
		return "", false
	}
	for _, want := range s.SheetPreference {
		for _, have := range sheets {
			if have == want {
				return have, true
			}
		}
	}
	return sheets[0], true
}
