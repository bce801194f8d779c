package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"teampulse/internal/config"
	"teampulse/internal/dataprocessing"
	"teampulse/internal/exporter"
	"teampulse/pkg/contracts/domain"
)

var (
	leaderboardIn     string
	leaderboardMonth  string
	leaderboardMetric string
	leaderboardCSV    string
)

// Color variables for console output.
var (
	headingColor = color.New(color.FgCyan, color.Bold) // metric section headings
	firstColor   = color.New(color.FgYellow, color.Bold)
	podiumColor  = color.New(color.FgGreen)
)

// leaderboardCmd ranks members on each KPI for one month.
var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank members on each KPI for one month.",
	Long: `Rank every member on each KPI for a single month and render the
rankings as terminal tables.

All metrics sort descending with members lacking a value placed last;
ties keep alphabetical member order. Without --month the latest month
found in the workbook is ranked.

Metrics: quality, revision, on_time, efficiency, hours, tasks.

Examples:
  # Full leaderboard for the latest month
  teampulse leaderboard --in tasks.xlsx

  # Quality ranking for July 2025
  teampulse leaderboard --in tasks.xlsx --month 2025-07 --metric quality

  # Export the rankings instead of rendering them
  teampulse leaderboard --in tasks.xlsx --csv leaderboard.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLeaderboard(rootCtx, cmd.OutOrStdout(), leaderboardIn, leaderboardMonth, leaderboardMetric, leaderboardCSV)
	},
}

// runLeaderboard executes the leaderboard command. Output lands on out so
// tests can capture the rendered tables.
func runLeaderboard(ctx context.Context, out io.Writer, inPath, monthStr, metricStr, csvPath string) error {
	if metricStr != "" && !domain.IsValidLeaderboardMetric(metricStr) {
		return fmt.Errorf("unknown metric %q (valid: %s)", metricStr, metricNames())
	}

	logger := newLogger()
	_, records, _, err := runPipeline(ctx, logger, inPath)
	if err != nil {
		if errors.Is(err, dataprocessing.ErrNoData) {
			return fmt.Errorf("workbook %s has no data rows", inPath)
		}
		return err
	}

	aggregator := dataprocessing.NewAggregator(logger)
	memberMonthly := aggregator.MemberMonthly(ctx, records)

	if monthStr != "" {
		month, err := time.Parse("2006-01", monthStr)
		if err != nil {
			return fmt.Errorf("invalid month %q, want YYYY-MM", monthStr)
		}
		memberMonthly = filterMonth(memberMonthly, month)
		if len(memberMonthly) == 0 {
			return fmt.Errorf("no member data for %s in %s", monthStr, inPath)
		}
	}

	board, err := aggregator.BuildLeaderboard(ctx, memberMonthly)
	if err != nil {
		if errors.Is(err, dataprocessing.ErrNoData) {
			return fmt.Errorf("workbook %s has no rankable member months", inPath)
		}
		return err
	}

	if csvPath != "" {
		absPath, err := filepath.Abs(csvPath)
		if err != nil {
			return fmt.Errorf("cannot resolve CSV path %q: %w", csvPath, err)
		}
		reports := exporter.NewReportExporter(&config.Paths{ReportsDir: filepath.Dir(absPath)})
		if err := reports.ExportLeaderboard(board, absPath); err != nil {
			return fmt.Errorf("failed to write leaderboard CSV: %w", err)
		}
		fmt.Fprintf(out, "Wrote leaderboard for %s to %s\n", board.Month.Format("2006-01"), absPath)
		return nil
	}

	return writeLeaderboardTables(out, board, domain.LeaderboardMetric(metricStr))
}

// filterMonth keeps only the aggregates for the given month.
func filterMonth(aggregates []domain.MonthlyAggregate, month time.Time) []domain.MonthlyAggregate {
	var kept []domain.MonthlyAggregate
	for _, agg := range aggregates {
		if agg.Month.Equal(month) {
			kept = append(kept, agg)
		}
	}
	return kept
}

// writeLeaderboardTables renders one table per metric in presentation
// order, or a single table when only names a metric.
func writeLeaderboardTables(out io.Writer, board *domain.Leaderboard, only domain.LeaderboardMetric) error {
	if _, err := fmt.Fprintf(out, "Leaderboard for %s\n\n", board.Month.Format("2006-01")); err != nil {
		return err
	}

	for _, metric := range domain.LeaderboardMetrics {
		if only != "" && metric != only {
			continue
		}
		if err := writeMetricTable(out, metric, board.Rankings[metric]); err != nil {
			return err
		}
	}
	return nil
}

// writeMetricTable renders the ranking for one metric using the
// tablewriter API.
func writeMetricTable(out io.Writer, metric domain.LeaderboardMetric, entries []domain.LeaderboardEntry) error {
	if _, err := fmt.Fprintln(out, headingColor.Sprint(metricHeading(metric))); err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Rank", "Member", "Value"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, entry := range entries {
		data = append(data, []string{
			formatRankCell(entry.Rank, entry.Value != nil),
			entry.Member,
			formatValueCell(metric, entry.Value),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

// metricHeading maps a metric to its table heading.
func metricHeading(metric domain.LeaderboardMetric) string {
	switch metric {
	case domain.MetricQuality:
		return "Quality score"
	case domain.MetricRevision:
		return "Revision rate"
	case domain.MetricOnTime:
		return "On-time rate"
	case domain.MetricEfficiency:
		return "Efficiency"
	case domain.MetricHours:
		return "Hours worked"
	case domain.MetricTasks:
		return "Tasks completed"
	}
	return string(metric)
}

// formatRankCell renders the rank column. The top three places are
// colored; members with no value for the metric keep a plain rank.
func formatRankCell(rank int, hasValue bool) string {
	cell := strconv.Itoa(rank)
	if !hasValue {
		return cell
	}
	switch rank {
	case 1:
		return firstColor.Sprint(cell)
	case 2, 3:
		return podiumColor.Sprint(cell)
	}
	return cell
}

// formatValueCell renders a metric value. Fractions print as percentages,
// hours and task counts keep their natural units. Members with no value
// for the metric show a dash.
func formatValueCell(metric domain.LeaderboardMetric, v *float64) string {
	if v == nil {
		return "-"
	}
	switch metric {
	case domain.MetricHours:
		return fmt.Sprintf("%.2f", *v)
	case domain.MetricTasks:
		return strconv.Itoa(int(*v))
	default:
		return fmt.Sprintf("%.1f%%", *v*100)
	}
}

// metricNames lists the valid --metric values for error messages.
func metricNames() string {
	names := make([]string, len(domain.LeaderboardMetrics))
	for i, metric := range domain.LeaderboardMetrics {
		names[i] = string(metric)
	}
	return strings.Join(names, ", ")
}
