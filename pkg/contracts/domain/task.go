package domain

import (
	"time"
)

// RawRecord is one row of the source sheet before any typing: a mapping from
// trimmed column name to the raw cell text. Cells the sheet does not populate
// are simply absent from the map. RawRecords are never mutated; the pipeline
// reads them once per load and derives TaskRecords from them.
type RawRecord map[string]string

// TaskRecord is the Single Source of Truth for one normalized task row.
// Every consumer - aggregator, exporters, HTTP handlers, CLI output - binds
// to this shape regardless of which optional source columns were present.
//
// Nullability convention: optional fields are pointers and serialize to JSON
// null when the source could not supply them. A nil pointer always means
// "unknown", never "zero". The sole exception is ActualHours, which defaults
// to a real 0 when the column exists but the cell is empty, so that summed
// hours stay well-defined.
type TaskRecord struct {
	// TaskID is the reference number from the sheet when present, otherwise
	// the zero-based row position formatted as decimal. Only unique in the
	// synthesized case; used for counting, never cross-referenced.
	TaskID string `json:"task_id"`

	// Member is the person the row is attributed to. Nil when the sheet has
	// no name column.
	Member *string `json:"member"`

	// Project is the free-text project involvement label, kept verbatim as
	// a filter dimension.
	Project *string `json:"project,omitempty"`

	// Status is the free-text lifecycle label (e.g. "Completed"). Not an
	// enum; used only for filtering.
	Status *string `json:"status,omitempty"`

	// CompletedDate is the parsed completion date, UTC midnight.
	CompletedDate *time.Time `json:"completed_date"`

	// WindowStart and WindowEnd bound the planned work interval parsed from
	// the duration cell. WindowEnd may be backfilled from CompletedDate when
	// the duration column exists but the cell held a single date.
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`

	// MonthBucket is the first-of-month date this row aggregates under,
	// taken from WindowEnd, then WindowStart, then CompletedDate - whichever
	// resolves first. Nil when no date resolved; such rows stay in the
	// normalized set but never enter time-bucketed aggregates.
	MonthBucket *time.Time `json:"month_bucket"`

	// TargetHours and ActualHours are the planned and spent effort.
	TargetHours *float64 `json:"target_hours"`
	ActualHours *float64 `json:"actual_hours"`

	// QualityFraction, RevisionFraction and EfficiencyFraction are rates in
	// [0,1] after column-wide percentage scaling. EfficiencyFraction is
	// derived as TargetHours/ActualHours whenever both hour columns exist,
	// superseding a supplied efficiency column.
	QualityFraction    *float64 `json:"quality_fraction"`
	RevisionFraction   *float64 `json:"revision_fraction"`
	EfficiencyFraction *float64 `json:"efficiency_fraction"`

	// OnTime reports CompletedDate <= WindowEnd. Nil unless both dates are
	// known; a missing date never defaults to on-time or late.
	OnTime *bool `json:"on_time"`
}

// InMonth reports whether the record buckets into the given first-of-month
// date. Records without a resolved bucket match nothing.
func (t *TaskRecord) InMonth(month time.Time) bool {
	return t.MonthBucket != nil && t.MonthBucket.Equal(month)
}

// TaskFilter narrows the normalized set before aggregation. Empty slices
// leave the corresponding dimension unfiltered. Months are first-of-month
// dates matching MonthBucket.
type TaskFilter struct {
	Members  []string    `json:"members,omitempty"`
	Months   []time.Time `json:"months,omitempty"`
	Statuses []string    `json:"statuses,omitempty"`
	Projects []string    `json:"projects,omitempty"`
}

// IsZero reports whether the filter selects everything.
func (f TaskFilter) IsZero() bool {
	return len(f.Members) == 0 && len(f.Months) == 0 &&
		len(f.Statuses) == 0 && len(f.Projects) == 0
}

// Matches reports whether a record survives the filter. A nil member or
// status on the record only matches an unconstrained dimension.
func (f TaskFilter) Matches(rec *TaskRecord) bool {
	if len(f.Members) > 0 && !containsPtr(f.Members, rec.Member) {
		return false
	}
	if len(f.Months) > 0 {
		matched := false
		for _, m := range f.Months {
			if rec.InMonth(m) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.Statuses) > 0 && !containsPtr(f.Statuses, rec.Status) {
		return false
	}
	if len(f.Projects) > 0 && !containsPtr(f.Projects, rec.Project) {
		return false
	}
	return true
}

func containsPtr(haystack []string, needle *string) bool {
	if needle == nil {
		return false
	}
	for _, s := range haystack {
		if s == *needle {
			return true
		}
	}
	return false
}

// SnapshotInfo describes the immutable normalized snapshot currently loaded.
type SnapshotInfo struct {
	// ID is a UUID assigned at load time.
	ID string `json:"id"`

	// SourceName is the file name or spreadsheet title the snapshot came from.
	SourceName string `json:"source_name"`

	// SourceHash is the SHA-256 of the raw input bytes; identical inputs
	// produce identical hashes and collapse to one load.
	SourceHash string `json:"source_hash"`

	// Sheet is the worksheet the reader selected by preference order.
	Sheet string `json:"sheet"`

	// LoadedAt is when the snapshot was installed.
	LoadedAt time.Time `json:"loaded_at"`

	// RecordCount is the number of normalized records in the snapshot.
	RecordCount int `json:"record_count"`
}
