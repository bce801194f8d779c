package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"teampulse/internal/dataprocessing"
)

// taskHeaders is the full header row of a well-formed task workbook.
var taskHeaders = []interface{}{
	"Name", "Ref. number", "Date Completed", "Work Duration",
	"Target Work Hours", "Actual Work Hours", "QS%", "Revision/s",
	"Status", "Project Involvement",
}

// writeTestWorkbook builds a two-month task workbook in dir and returns
// its path. Quality values are percentage points so the scaling pass has
// something to decide.
func writeTestWorkbook(t *testing.T, dir string) string {
	t.Helper()

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), "5")

	rows := [][]interface{}{
		taskHeaders,
		{"Alice", "T-100", "20250710", "20250701-20250731", 10, 8, 92, 1, "Completed", "Apollo"},
		{"Bob", "T-101", "20250712", "20250701-20250731", 12, 12, 85, 0, "Completed", "Apollo"},
		{"Alice", "T-102", "20250808", "20250801 - 20250831", 6, 8, 78, 2, "Completed", "Hermes"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("5", cell, &row))
	}

	path := filepath.Join(dir, "tasks.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRunProcess_WritesReports(t *testing.T) {
	dir := t.TempDir()
	in := writeTestWorkbook(t, dir)
	outDir := filepath.Join(dir, "reports")

	var buf bytes.Buffer
	require.NoError(t, runProcess(context.Background(), &buf, processOptions{in: in, out: outDir}))

	normalized, err := os.ReadFile(filepath.Join(outDir, "normalized.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(normalized), "T-100")
	assert.Contains(t, string(normalized), "2025-07-01", "July tasks land in the July bucket")

	member, err := os.ReadFile(filepath.Join(outDir, "member_monthly.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(member), "Alice")
	assert.Contains(t, string(member), "2025-08")

	team, err := os.ReadFile(filepath.Join(outDir, "team_monthly.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(team), "2025-07")

	out := buf.String()
	assert.Contains(t, out, "3 rows, 3 records")
	assert.Contains(t, out, "2 team months")
	assert.Contains(t, out, "all KPI columns present")
	assert.NotContains(t, out, "Parquet", "no parquet note without --parquet")
	assert.NotContains(t, out, "per-member history", "no member note without --members")
}

func TestRunProcess_MemberFiles(t *testing.T) {
	dir := t.TempDir()
	in := writeTestWorkbook(t, dir)
	outDir := filepath.Join(dir, "reports")

	var buf bytes.Buffer
	require.NoError(t, runProcess(context.Background(), &buf, processOptions{in: in, out: outDir, members: true}))

	alice, err := os.ReadFile(filepath.Join(outDir, "members", "alice_monthly_history.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(alice), "2025-07")
	assert.Contains(t, string(alice), "2025-08")
	assert.NotContains(t, string(alice), "Bob", "history files are per member")

	_, err = os.Stat(filepath.Join(outDir, "members", "bob_monthly_history.csv"))
	require.NoError(t, err)

	summary, err := os.ReadFile(filepath.Join(outDir, "member_summary.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "ActiveMonths")
	assert.Contains(t, string(summary), "Alice")

	assert.Contains(t, buf.String(), "per-member history for 2 members")
}

func TestRunProcess_Parquet(t *testing.T) {
	dir := t.TempDir()
	in := writeTestWorkbook(t, dir)
	outDir := filepath.Join(dir, "reports")

	var buf bytes.Buffer
	require.NoError(t, runProcess(context.Background(), &buf, processOptions{in: in, out: outDir, parquet: true}))

	for _, name := range []string{"normalized.parquet", "member_monthly.parquet", "team_monthly.parquet"} {
		info, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}
	assert.Contains(t, buf.String(), "Parquet variants written")
}

func TestRunProcess_MissingWorkbook(t *testing.T) {
	var buf bytes.Buffer
	err := runProcess(context.Background(), &buf, processOptions{
		in:  filepath.Join(t.TempDir(), "absent.xlsx"),
		out: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRunProcess_RejectsRenamedCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "tasks.xlsx")
	require.NoError(t, os.WriteFile(in, []byte("Name,Date\nAlice,20250710\n"), 0644))

	var buf bytes.Buffer
	err := runProcess(context.Background(), &buf, processOptions{in: in, out: filepath.Join(dir, "reports")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain .xlsx workbook content")
}

func TestRunProcess_UnusableOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	in := writeTestWorkbook(t, dir)

	// A file where the output directory should go.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))

	var buf bytes.Buffer
	err := runProcess(context.Background(), &buf, processOptions{in: in, out: blocked})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output directory")
}

func TestRunProcess_EmptyWorkbook(t *testing.T) {
	dir := t.TempDir()
	f := excelize.NewFile()
	path := filepath.Join(dir, "empty.xlsx")
	require.NoError(t, f.SaveAs(path))

	var buf bytes.Buffer
	err := runProcess(context.Background(), &buf, processOptions{in: path, out: filepath.Join(dir, "reports")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestRunPipeline_ColumnFlags(t *testing.T) {
	in := writeTestWorkbook(t, t.TempDir())

	table, records, flags, err := runPipeline(context.Background(), newLogger(), in)
	require.NoError(t, err)

	assert.Equal(t, "5", table.Sheet)
	require.Len(t, records, 3)
	assert.True(t, flags.HasMember)
	assert.True(t, flags.HasQuality)
	assert.True(t, flags.HasTarget)

	// Hour columns present, so efficiency is derived per row.
	require.NotNil(t, records[0].EfficiencyFraction)
	assert.InDelta(t, 1.25, *records[0].EfficiencyFraction, 1e-9)
}

func TestDescribeFlags(t *testing.T) {
	assert.Equal(t, "no KPI columns found", describeFlags(dataprocessing.ColumnFlags{}))

	all := dataprocessing.ColumnFlags{
		HasQuality: true, HasRevisions: true, HasDuration: true,
		HasTarget: true, HasActual: true, HasEff: true,
	}
	assert.Equal(t, "all KPI columns present", describeFlags(all))

	mixed := describeFlags(dataprocessing.ColumnFlags{HasQuality: true, HasActual: true})
	assert.True(t, strings.HasPrefix(mixed, "found quality"), mixed)
	assert.Contains(t, mixed, "missing revisions")
}
