package dataprocessing

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"teampulse/internal/config"
	"teampulse/pkg/contracts/domain"
)

// ColumnFlags records which capabilities the loaded sheet supports, computed
// once per load from the bound header set. Every derivation step consults
// the flags; nothing downstream re-checks column presence.
type ColumnFlags struct {
	HasMember    bool
	HasTaskRef   bool
	HasCompleted bool
	HasDuration  bool
	HasTarget    bool
	HasActual    bool
	HasEff       bool
	HasQuality   bool
	HasRevisions bool
	HasStatus    bool
	HasProject   bool
}

// EfficiencySource resolves which efficiency source serves this load: the
// first entry of the schema's priority list whose required columns are all
// present. Empty when neither source is available.
func (f ColumnFlags) EfficiencySource(schema *config.Schema) config.EfficiencySource {
	for _, src := range schema.EfficiencyPriority {
		switch src {
		case config.EfficiencyFromHours:
			if f.HasTarget && f.HasActual {
				return src
			}
		case config.EfficiencyFromColumn:
			if f.HasEff {
				return src
			}
		}
	}
	return ""
}

// FlagsFromBinding derives the capability flags from a header binding.
func FlagsFromBinding(binding map[config.Column]string) ColumnFlags {
	present := func(col config.Column) bool {
		_, ok := binding[col]
		return ok
	}
	return ColumnFlags{
		HasMember:    present(config.ColumnMember),
		HasTaskRef:   present(config.ColumnTaskRef),
		HasCompleted: present(config.ColumnCompleted),
		HasDuration:  present(config.ColumnDuration),
		HasTarget:    present(config.ColumnTarget),
		HasActual:    present(config.ColumnActual),
		HasEff:       present(config.ColumnEff),
		HasQuality:   present(config.ColumnQuality),
		HasRevisions: present(config.ColumnRevisions),
		HasStatus:    present(config.ColumnStatus),
		HasProject:   present(config.ColumnProject),
	}
}

// ScaleDecision inspects a fraction column's non-null values and reports
// whether the column is expressed in percentage points: true when the
// maximum exceeds the threshold. The decision is made once for the whole
// column so a series never mixes units; a column of legitimately large
// fractions can be misread, which is accepted behavior.
func ScaleDecision(values []*float64, threshold float64) bool {
	scaled := false
	for _, v := range values {
		if v != nil && *v > threshold {
			scaled = true
			break
		}
	}
	return scaled
}

// ScaleFractionColumn applies the two-pass percentage normalization in
// place: decide from the column maximum, then divide every non-null value
// by the divisor when the decision says percentage points. Running it again
// on a column that came out at or below the threshold changes nothing.
// Returns whether scaling was applied.
func ScaleFractionColumn(values []*float64, threshold, divisor float64) bool {
	if !ScaleDecision(values, threshold) {
		return false
	}
	for _, v := range values {
		if v != nil {
			*v = *v / divisor
		}
	}
	return true
}

// Normalizer turns a RawTable into the canonical task record set. One
// Normalizer is safe for concurrent use; all per-load state lives in the
// call.
type Normalizer struct {
	logger *slog.Logger
	schema *config.Schema
}

// NewNormalizer creates a Normalizer with the given logger and schema.
// A nil logger falls back to slog.Default(); a nil schema uses the default
// task sheet schema.
func NewNormalizer(logger *slog.Logger, schema *config.Schema) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if schema == nil {
		schema = config.DefaultSchema()
	}
	return &Normalizer{
		logger: logger.With(slog.String("component", "normalizer")),
		schema: schema,
	}
}

// Normalize converts every row of the table into a TaskRecord. The pass is
// total: a malformed cell degrades its field to null and the row survives.
// Row order is preserved so synthesized task ids and tie-breaking stay
// deterministic.
func (n *Normalizer) Normalize(ctx context.Context, table *RawTable) ([]domain.TaskRecord, ColumnFlags) {
	binding := table.Binding(n.schema)
	flags := FlagsFromBinding(binding)
	effSource := flags.EfficiencySource(n.schema)

	cell := func(rec domain.RawRecord, col config.Column) (string, bool) {
		key, bound := binding[col]
		if !bound {
			return "", false
		}
		v, present := rec[key]
		return v, present
	}

	records := make([]domain.TaskRecord, len(table.Rows))

	// Fraction columns are collected whole so the percentage decision can
	// be made column-wide before any value lands in a record.
	quality := make([]*float64, len(table.Rows))
	revisions := make([]*float64, len(table.Rows))
	suppliedEff := make([]*float64, len(table.Rows))

	for i, raw := range table.Rows {
		rec := domain.TaskRecord{TaskID: strconv.Itoa(i)}

		if flags.HasTaskRef {
			if v, ok := cell(raw, config.ColumnTaskRef); ok && strings.TrimSpace(v) != "" {
				rec.TaskID = strings.TrimSpace(v)
			}
		}
		if flags.HasMember {
			v, _ := cell(raw, config.ColumnMember)
			rec.Member = optionalString(v)
		}
		if flags.HasStatus {
			v, _ := cell(raw, config.ColumnStatus)
			rec.Status = optionalString(v)
		}
		if flags.HasProject {
			v, _ := cell(raw, config.ColumnProject)
			rec.Project = optionalString(v)
		}

		if flags.HasCompleted {
			v, _ := cell(raw, config.ColumnCompleted)
			rec.CompletedDate = ParseDate(v)
		}
		if flags.HasDuration {
			v, _ := cell(raw, config.ColumnDuration)
			rec.WindowStart, rec.WindowEnd = ParseRange(v)
			if rec.WindowEnd == nil && rec.CompletedDate != nil {
				rec.WindowEnd = rec.CompletedDate
			}
		}

		if flags.HasTarget {
			v, _ := cell(raw, config.ColumnTarget)
			rec.TargetHours = parseFloatCell(v)
		}
		if flags.HasActual {
			v, _ := cell(raw, config.ColumnActual)
			rec.ActualHours = parseFloatCell(v)
			if rec.ActualHours == nil {
				zero := 0.0
				rec.ActualHours = &zero
			}
		}

		if flags.HasQuality {
			v, _ := cell(raw, config.ColumnQuality)
			quality[i] = parseFloatCell(v)
		}
		if flags.HasRevisions {
			v, _ := cell(raw, config.ColumnRevisions)
			revisions[i] = parseFloatCell(v)
		}
		if effSource == config.EfficiencyFromColumn {
			v, _ := cell(raw, config.ColumnEff)
			suppliedEff[i] = parseFloatCell(v)
		}

		records[i] = rec
	}

	qualityScaled := ScaleFractionColumn(quality, n.schema.FractionThreshold, n.schema.PercentDivisor)
	revisionsScaled := ScaleFractionColumn(revisions, n.schema.FractionThreshold, n.schema.PercentDivisor)
	effScaled := false
	if effSource == config.EfficiencyFromColumn {
		effScaled = ScaleFractionColumn(suppliedEff, n.schema.FractionThreshold, n.schema.PercentDivisor)
	}

	for i := range records {
		rec := &records[i]
		rec.QualityFraction = quality[i]
		rec.RevisionFraction = revisions[i]

		switch effSource {
		case config.EfficiencyFromHours:
			if rec.TargetHours != nil && rec.ActualHours != nil && *rec.ActualHours != 0 {
				eff := *rec.TargetHours / *rec.ActualHours
				rec.EfficiencyFraction = &eff
			}
		case config.EfficiencyFromColumn:
			rec.EfficiencyFraction = suppliedEff[i]
		}

		if rec.CompletedDate != nil && rec.WindowEnd != nil {
			onTime := !rec.CompletedDate.After(*rec.WindowEnd)
			rec.OnTime = &onTime
		}

		for _, source := range n.schema.MonthSourcePriority {
			switch source {
			case config.DateFieldWindowEnd:
				if rec.WindowEnd != nil {
					m := MonthOf(*rec.WindowEnd)
					rec.MonthBucket = &m
				}
			case config.DateFieldWindowStart:
				if rec.WindowStart != nil {
					m := MonthOf(*rec.WindowStart)
					rec.MonthBucket = &m
				}
			case config.DateFieldCompleted:
				if rec.CompletedDate != nil {
					m := MonthOf(*rec.CompletedDate)
					rec.MonthBucket = &m
				}
			}
			if rec.MonthBucket != nil {
				break
			}
		}
	}

	n.logger.InfoContext(ctx, "normalization complete",
		slog.String("source", table.Source),
		slog.String("sheet", table.Sheet),
		slog.Int("records", len(records)),
		slog.String("efficiency_source", string(effSource)),
		slog.Bool("quality_scaled", qualityScaled),
		slog.Bool("revisions_scaled", revisionsScaled),
		slog.Bool("efficiency_scaled", effScaled))

	return records, flags
}

// parseFloatCell parses a numeric cell, tolerating surrounding whitespace,
// thousands separators and a trailing percent sign. Unparseable input is
// nil, as are NaN and infinities, which ParseFloat would otherwise accept
// and which no aggregate may ever contain.
func parseFloatCell(cell string) *float64 {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// optionalString trims a cell and returns nil for empty content.
func optionalString(cell string) *string {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	return &s
}
