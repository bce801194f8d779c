package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"teampulse/internal/config"
	"teampulse/pkg/contracts/domain"
)

// TaskRow mirrors domain.TaskRecord with parquet column tags. Nullable fields
// stay pointers so missing cells survive as parquet nulls instead of zeros.
type TaskRow struct {
	TaskID             string     `parquet:"task_id,snappy"`
	Member             *string    `parquet:"member,optional,snappy"`
	Project            *string    `parquet:"project,optional,snappy"`
	Status             *string    `parquet:"status,optional,snappy"`
	CompletedDate      *time.Time `parquet:"completed_date,optional,snappy"`
	WindowStart        *time.Time `parquet:"window_start,optional,snappy"`
	WindowEnd          *time.Time `parquet:"window_end,optional,snappy"`
	MonthBucket        *time.Time `parquet:"month_bucket,optional,snappy"`
	TargetHours        *float64   `parquet:"target_hours,optional,snappy"`
	ActualHours        *float64   `parquet:"actual_hours,optional,snappy"`
	QualityFraction    *float64   `parquet:"quality_fraction,optional,snappy"`
	RevisionFraction   *float64   `parquet:"revision_fraction,optional,snappy"`
	EfficiencyFraction *float64   `parquet:"efficiency_fraction,optional,snappy"`
	OnTime             *bool      `parquet:"on_time,optional,snappy"`
}

// AggregateRow mirrors domain.MonthlyAggregate with parquet column tags.
// Member is empty for team-wide rows.
type AggregateRow struct {
	Month          time.Time `parquet:"month,snappy"`
	Member         string    `parquet:"member,snappy"`
	MeanQuality    *float64  `parquet:"mean_quality,optional,snappy"`
	MeanRevision   *float64  `parquet:"mean_revision,optional,snappy"`
	OnTimeRate     *float64  `parquet:"on_time_rate,optional,snappy"`
	MeanEfficiency *float64  `parquet:"mean_efficiency,optional,snappy"`
	TotalHours     float64   `parquet:"total_hours,snappy"`
	TaskCount      int32     `parquet:"task_count,snappy"`
}

// ParquetWriter writes normalized records and aggregates as parquet files
// for downstream analysis tools
type ParquetWriter struct {
	paths *config.Paths
}

// NewParquetWriter creates a new parquet writer instance
func NewParquetWriter(paths *config.Paths) *ParquetWriter {
	return &ParquetWriter{paths: paths}
}

// WriteTasks writes normalized task records to a parquet file
func (w *ParquetWriter) WriteTasks(records []domain.TaskRecord, outputPath string) error {
	return writeParquet(w.resolvePath(outputPath), ConvertTaskRecords(records))
}

// WriteAggregates writes monthly aggregates to a parquet file
func (w *ParquetWriter) WriteAggregates(aggregates []domain.MonthlyAggregate, outputPath string) error {
	return writeParquet(w.resolvePath(outputPath), ConvertAggregates(aggregates))
}

// ConvertTaskRecords converts domain.TaskRecord to TaskRow for parquet export
func ConvertTaskRecords(records []domain.TaskRecord) []TaskRow {
	result := make([]TaskRow, len(records))
	for i, record := range records {
		result[i] = TaskRow{
			TaskID:             record.TaskID,
			Member:             record.Member,
			Project:            record.Project,
			Status:             record.Status,
			CompletedDate:      record.CompletedDate,
			WindowStart:        record.WindowStart,
			WindowEnd:          record.WindowEnd,
			MonthBucket:        record.MonthBucket,
			TargetHours:        record.TargetHours,
			ActualHours:        record.ActualHours,
			QualityFraction:    record.QualityFraction,
			RevisionFraction:   record.RevisionFraction,
			EfficiencyFraction: record.EfficiencyFraction,
			OnTime:             record.OnTime,
		}
	}
	return result
}

// ConvertAggregates converts domain.MonthlyAggregate to AggregateRow for parquet export
func ConvertAggregates(aggregates []domain.MonthlyAggregate) []AggregateRow {
	result := make([]AggregateRow, len(aggregates))
	for i, agg := range aggregates {
		result[i] = AggregateRow{
			Month:          agg.Month,
			Member:         agg.Member,
			MeanQuality:    agg.MeanQuality,
			MeanRevision:   agg.MeanRevision,
			OnTimeRate:     agg.OnTimeRate,
			MeanEfficiency: agg.MeanEfficiency,
			TotalHours:     agg.TotalHours,
			TaskCount:      int32(agg.TaskCount),
		}
	}
	return result
}

// writeParquet writes rows to a parquet file using struct schema inference
func writeParquet[T any](fullPath string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](file)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		file.Close()
		return fmt.Errorf("failed to write parquet data: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return file.Close()
}

// resolvePath resolves a path to the reports directory unless absolute
func (w *ParquetWriter) resolvePath(outputPath string) string {
	if filepath.IsAbs(outputPath) {
		return outputPath
	}
	return w.paths.GetReportPath(outputPath)
}
