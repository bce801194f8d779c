package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"teampulse/internal/config"
	"teampulse/internal/dataprocessing"
	"teampulse/internal/exporter"
	"teampulse/internal/validation"
)

var (
	processIn      string
	processOut     string
	processParquet bool
	processMembers bool
)

// processCmd runs the full pipeline and writes the report files.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Normalize a task workbook and write the monthly report files.",
	Long: `Run the full pipeline over one workbook and write the report files.

Produces in the output directory:
- normalized.csv      every task as a typed record
- member_monthly.csv  per-member KPI summary for each month
- team_monthly.csv    team-wide KPI summary for each month

With --members each member also gets an individual monthly history file
under members/, plus a member_summary.csv table spanning all months.
With --parquet each table is also written as a .parquet file for
downstream analysis tools.

Examples:
  # Process the default workbook into ./reports
  teampulse process

  # Explicit paths plus per-member files and Parquet output
  teampulse process --in tasks.xlsx --out /data/reports --members --parquet`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProcess(rootCtx, cmd.OutOrStdout(), processOptions{
			in:      processIn,
			out:     processOut,
			parquet: processParquet,
			members: processMembers,
		})
	},
}

// processOptions carries the process command flags.
type processOptions struct {
	in      string
	out     string
	parquet bool
	members bool
}

// runProcess executes the process command against the given workbook and
// output directory. Progress lands on out so tests can capture it.
func runProcess(ctx context.Context, out io.Writer, opts processOptions) error {
	absOut, err := filepath.Abs(opts.out)
	if err != nil {
		return fmt.Errorf("cannot resolve output directory %q: %w", opts.out, err)
	}

	logger := newLogger()

	// Catch an unusable output directory before the pipeline runs.
	if err := validation.NewFileValidator(logger).ValidateOutputDirectory(absOut); err != nil {
		return err
	}

	table, records, flags, err := runPipeline(ctx, logger, opts.in)
	if err != nil {
		if errors.Is(err, dataprocessing.ErrNoData) {
			return fmt.Errorf("workbook %s has no data rows", opts.in)
		}
		return err
	}

	aggregator := dataprocessing.NewAggregator(logger)
	memberMonthly := aggregator.MemberMonthly(ctx, records)
	teamMonthly := aggregator.TeamMonthly(ctx, records)

	paths := &config.Paths{ReportsDir: absOut}
	reports := exporter.NewReportExporter(paths)

	// The normalized table is by far the largest report, so it goes
	// through the stream writer
	if err := reports.ExportNormalizedStreaming(records, "normalized.csv"); err != nil {
		return fmt.Errorf("failed to write normalized records: %w", err)
	}
	if err := reports.ExportMemberMonthly(memberMonthly, "member_monthly.csv"); err != nil {
		return fmt.Errorf("failed to write member summary: %w", err)
	}
	if err := reports.ExportTeamMonthly(teamMonthly, "team_monthly.csv"); err != nil {
		return fmt.Errorf("failed to write team summary: %w", err)
	}

	var memberCount int
	if opts.members {
		members := exporter.NewMemberExporter(paths)
		if err := members.ExportMemberFiles(memberMonthly, "members"); err != nil {
			return fmt.Errorf("failed to write member history files: %w", err)
		}
		summaries := members.GenerateMemberSummaries(memberMonthly)
		if err := members.ExportMemberSummary(summaries, "member_summary.csv"); err != nil {
			return fmt.Errorf("failed to write member summary table: %w", err)
		}
		memberCount = len(summaries)
	}

	if opts.parquet {
		parquet := exporter.NewParquetWriter(paths)
		if err := parquet.WriteTasks(records, "normalized.parquet"); err != nil {
			return fmt.Errorf("failed to write normalized parquet: %w", err)
		}
		if err := parquet.WriteAggregates(memberMonthly, "member_monthly.parquet"); err != nil {
			return fmt.Errorf("failed to write member parquet: %w", err)
		}
		if err := parquet.WriteAggregates(teamMonthly, "team_monthly.parquet"); err != nil {
			return fmt.Errorf("failed to write team parquet: %w", err)
		}
	}

	fmt.Fprintf(out, "Processed sheet %q: %d rows, %d records\n", table.Sheet, len(table.Rows), len(records))
	fmt.Fprintf(out, "Columns: %s\n", describeFlags(flags))
	fmt.Fprintf(out, "Wrote %d member months and %d team months to %s\n",
		len(memberMonthly), len(teamMonthly), absOut)
	if opts.members {
		fmt.Fprintf(out, "Wrote per-member history for %d members\n", memberCount)
	}
	if opts.parquet {
		fmt.Fprintf(out, "Parquet variants written alongside the CSV files\n")
	}
	return nil
}

// describeFlags summarizes which KPI columns the workbook carried, so a
// run over a sparse sheet explains its empty summary columns.
func describeFlags(flags dataprocessing.ColumnFlags) string {
	present := make([]string, 0, 6)
	missing := make([]string, 0, 6)

	record := func(name string, has bool) {
		if has {
			present = append(present, name)
		} else {
			missing = append(missing, name)
		}
	}
	record("quality", flags.HasQuality)
	record("revisions", flags.HasRevisions)
	record("duration", flags.HasDuration)
	record("target-hours", flags.HasTarget)
	record("actual-hours", flags.HasActual)
	record("efficiency", flags.HasEff)

	switch {
	case len(missing) == 0:
		return "all KPI columns present"
	case len(present) == 0:
		return "no KPI columns found"
	default:
		return fmt.Sprintf("found %s; missing %s",
			strings.Join(present, ", "), strings.Join(missing, ", "))
	}
}
