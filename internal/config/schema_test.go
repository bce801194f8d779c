package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema(t *testing.T) {
	schema := DefaultSchema()
	require.NotNil(t, schema)

	assert.Equal(t, []string{"5", "1", "Sheet1", "Sheet 1"}, schema.SheetPreference)
	assert.Equal(t, 1.5, schema.FractionThreshold)
	assert.Equal(t, 100.0, schema.PercentDivisor)

	// Every canonical column binds at least one header spelling
	for _, col := range []Column{
		ColumnMember, ColumnTaskRef, ColumnCompleted, ColumnDuration,
		ColumnTarget, ColumnActual, ColumnEff, ColumnQuality,
		ColumnRevisions, ColumnStatus, ColumnProject,
	} {
		assert.NotEmpty(t, schema.Headers[col], "column %s has no header spellings", col)
	}

	assert.Equal(t, []DateField{
		DateFieldWindowEnd,
		DateFieldWindowStart,
		DateFieldCompleted,
	}, schema.MonthSourcePriority)

	assert.Equal(t, []EfficiencySource{
		EfficiencyFromHours,
		EfficiencyFromColumn,
	}, schema.EfficiencyPriority)
}

func TestSchema_MatchHeader(t *testing.T) {
	schema := DefaultSchema()

	tests := []struct {
		name    string
		header  string
		want    Column
		matched bool
	}{
		{name: "exact match", header: "Date Completed", want: ColumnCompleted, matched: true},
		{name: "member primary spelling", header: "Name", want: ColumnMember, matched: true},
		{name: "member alternate spelling", header: "Member", want: ColumnMember, matched: true},
		{name: "surrounding whitespace trimmed", header: "  QS%  ", want: ColumnQuality, matched: true},
		{name: "tab padded", header: "\tRevision/s", want: ColumnRevisions, matched: true},
		{name: "case matters", header: "date completed", matched: false},
		{name: "unknown header", header: "Favorite Color", matched: false},
		{name: "empty header", header: "", matched: false},
		{name: "whitespace only", header: "   ", matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, ok := schema.MatchHeader(tt.header)
			assert.Equal(t, tt.matched, ok)
			if tt.matched {
				assert.Equal(t, tt.want, col)
			}
		})
	}
}

func TestSchema_Resolve(t *testing.T) {
	schema := DefaultSchema()

	t.Run("full header row", func(t *testing.T) {
		headers := []string{
			"Name", "Ref. number", "Date Completed", "Work Duration",
			"Target Work Hours", "Actual Work Hours", "Efficiency",
			"QS%", "Revision/s", "Status", "Project Involvement",
		}

		resolved := schema.Resolve(headers)
		require.Len(t, resolved, 11)
		assert.Equal(t, 0, resolved[ColumnMember])
		assert.Equal(t, 1, resolved[ColumnTaskRef])
		assert.Equal(t, 2, resolved[ColumnCompleted])
		assert.Equal(t, 7, resolved[ColumnQuality])
		assert.Equal(t, 10, resolved[ColumnProject])
	})

	t.Run("unknown headers skipped", func(t *testing.T) {
		resolved := schema.Resolve([]string{"Notes", "Name", "Favorite Color", "Status"})
		require.Len(t, resolved, 2)
		assert.Equal(t, 1, resolved[ColumnMember])
		assert.Equal(t, 3, resolved[ColumnStatus])
	})

	t.Run("duplicate binding keeps first position", func(t *testing.T) {
		resolved := schema.Resolve([]string{"Name", "Member", "Status"})
		assert.Equal(t, 0, resolved[ColumnMember])
		assert.Equal(t, 2, resolved[ColumnStatus])
	})

	t.Run("padded headers resolve", func(t *testing.T) {
		resolved := schema.Resolve([]string{" Name ", "QS% "})
		assert.Equal(t, 0, resolved[ColumnMember])
		assert.Equal(t, 1, resolved[ColumnQuality])
	})

	t.Run("empty row", func(t *testing.T) {
		assert.Empty(t, schema.Resolve(nil))
	})
}

func TestSchema_PickSheet(t *testing.T) {
	schema := DefaultSchema()

	tests := []struct {
		name   string
		sheets []string
		want   string
		ok     bool
	}{
		{name: "preferred sheet wins", sheets: []string{"Sheet1", "5"}, want: "5", ok: true},
		{name: "preference order over sheet order", sheets: []string{"1", "5"}, want: "5", ok: true},
		{name: "later preference", sheets: []string{"Overview", "Sheet 1"}, want: "Sheet 1", ok: true},
		{name: "fallback to first sheet", sheets: []string{"Data", "Other"}, want: "Data", ok: true},
		{name: "single unknown sheet", sheets: []string{"Tabelle1"}, want: "Tabelle1", ok: true},
		{name: "empty workbook", sheets: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := schema.PickSheet(tt.sheets)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
