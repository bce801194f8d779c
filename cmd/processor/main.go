// Command processor is the teampulse batch CLI. It runs the workbook
// pipeline without the web server: parse a task spreadsheet, normalize it
// into typed records and write the monthly report tables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"teampulse/internal/config"
	"teampulse/internal/dataprocessing"
	"teampulse/internal/files"
	"teampulse/internal/validation"
	"teampulse/pkg/contracts"
	"teampulse/pkg/contracts/domain"
)

// rootCtx is the root context for all commands.
var rootCtx = context.Background()

// verbose enables debug logging for the pipeline stages.
var verbose bool

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:   "teampulse",
	Short: "Turn a team task workbook into monthly KPI reports.",
	Long: `TeamPulse reads a task tracking spreadsheet, normalizes every row into a
typed record and computes per-member and team-wide monthly summaries plus
a latest-month leaderboard.`,
	Version:            contracts.Version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		slog.SetDefault(newLogger())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging from the pipeline stages")

	processCmd.Flags().StringVar(&processIn, "in", config.DefaultSourceFile, "Path to the task workbook, or a directory to pick the newest workbook from")
	processCmd.Flags().StringVar(&processOut, "out", "reports", "Directory to write the report files to")
	processCmd.Flags().BoolVar(&processParquet, "parquet", false, "Also write Parquet variants of every report")
	processCmd.Flags().BoolVar(&processMembers, "members", false, "Also write per-member history files and a cross-month member summary")

	leaderboardCmd.Flags().StringVar(&leaderboardIn, "in", config.DefaultSourceFile, "Path to the task workbook, or a directory to pick the newest workbook from")
	leaderboardCmd.Flags().StringVar(&leaderboardMonth, "month", "", "Month to rank in YYYY-MM form (default: latest month in the workbook)")
	leaderboardCmd.Flags().StringVar(&leaderboardMetric, "metric", "", "Single metric to show (default: all metrics)")
	leaderboardCmd.Flags().StringVar(&leaderboardCSV, "csv", "", "Write the rankings to this CSV file instead of rendering tables")
}

// newLogger builds the CLI logger. Pipeline stages log progress at debug
// and info level, which stays hidden unless --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runPipeline parses and normalizes the workbook at path. A directory path
// is resolved to its newest workbook first, and the file is validated before
// parsing so a missing or mistyped path fails with a clear message. It
// returns the raw table alongside the records so callers can report row
// counts.
func runPipeline(ctx context.Context, logger *slog.Logger, path string) (*dataprocessing.RawTable, []domain.TaskRecord, dataprocessing.ColumnFlags, error) {
	schema := config.DefaultSchema()

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		book, ok, err := files.LatestWorkbook(path)
		if err != nil {
			return nil, nil, dataprocessing.ColumnFlags{}, err
		}
		if !ok {
			return nil, nil, dataprocessing.ColumnFlags{}, fmt.Errorf("no workbook found in %s", path)
		}
		logger.Info("picked newest workbook", "dir", path, "workbook", book.Name)
		path = book.Path
	}

	if err := validation.NewFileValidator(logger).ValidateWorkbookFile(path); err != nil {
		return nil, nil, dataprocessing.ColumnFlags{}, err
	}

	table, err := dataprocessing.NewParser(logger, schema).ParseFile(ctx, path)
	if err != nil {
		return nil, nil, dataprocessing.ColumnFlags{}, err
	}

	records, flags := dataprocessing.NewNormalizer(logger, schema).Normalize(ctx, table)
	return table, records, flags, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
