package exporter

import (
	"fmt"
	"sort"

	"teampulse/internal/config"
	"teampulse/pkg/contracts/domain"
)

// ReportExporter handles report generation for the normalized dataset
type ReportExporter struct {
	csvWriter *CSVWriter
}

// NewReportExporter creates a new report exporter
func NewReportExporter(paths *config.Paths) *ReportExporter {
	return &ReportExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// ExportNormalized writes every normalized task record to a single CSV file.
// Records are ordered by month bucket, member and task id so repeated exports
// of the same dataset produce identical files.
func (r *ReportExporter) ExportNormalized(records []domain.TaskRecord, outputPath string) error {
	sorted := make([]domain.TaskRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return taskLess(&sorted[i], &sorted[j])
	})

	var csvRecords [][]string
	for _, record := range sorted {
		csvRecords = append(csvRecords, taskRow(record))
	}

	// No BOM for the normalized CSV to avoid parsing issues in analysis tools
	return r.csvWriter.WriteCSV(outputPath, WriteOptions{
		Headers:   taskHeaders(),
		Records:   csvRecords,
		BOMPrefix: false,
	})
}

// ExportNormalizedStreaming writes the normalized records through the stream
// writer, for datasets too large to buffer as string slices. Ordering and
// bytes match ExportNormalized exactly, so callers can pick the path by
// memory profile without changing the artifact.
func (r *ReportExporter) ExportNormalizedStreaming(records []domain.TaskRecord, outputPath string) error {
	sorted := make([]domain.TaskRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return taskLess(&sorted[i], &sorted[j])
	})

	stream, err := r.csvWriter.CreateStreamWriter(outputPath, taskHeaders())
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	for i := range sorted {
		if err := stream.WriteRecord(taskRow(sorted[i])); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write record %s: %w", sorted[i].TaskID, err)
		}
	}

	return stream.Close()
}

// ExportMemberMonthly writes the per-member monthly aggregate table
func (r *ReportExporter) ExportMemberMonthly(aggregates []domain.MonthlyAggregate, outputPath string) error {
	sorted := make([]domain.MonthlyAggregate, len(aggregates))
	copy(sorted, aggregates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Month.Equal(sorted[j].Month) {
			return sorted[i].Month.Before(sorted[j].Month)
		}
		return sorted[i].Member < sorted[j].Member
	})

	headers := []string{
		"Month", "Member", "MeanQuality", "MeanRevision", "OnTimeRate",
		"MeanEfficiency", "TotalHours", "TaskCount",
	}

	var csvRecords [][]string
	for _, agg := range sorted {
		csvRecords = append(csvRecords, []string{
			formatMonth(agg.Month),
			agg.Member,
			formatRate(agg.MeanQuality),
			formatRate(agg.MeanRevision),
			formatRate(agg.OnTimeRate),
			formatRate(agg.MeanEfficiency),
			formatFloat(agg.TotalHours),
			formatInt(agg.TaskCount),
		})
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// ExportTeamMonthly writes the team-wide monthly aggregate table
func (r *ReportExporter) ExportTeamMonthly(aggregates []domain.MonthlyAggregate, outputPath string) error {
	sorted := make([]domain.MonthlyAggregate, len(aggregates))
	copy(sorted, aggregates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Month.Before(sorted[j].Month)
	})

	headers := []string{
		"Month", "MeanQuality", "MeanRevision", "OnTimeRate",
		"MeanEfficiency", "TotalHours", "TaskCount",
	}

	var csvRecords [][]string
	for _, agg := range sorted {
		csvRecords = append(csvRecords, []string{
			formatMonth(agg.Month),
			formatRate(agg.MeanQuality),
			formatRate(agg.MeanRevision),
			formatRate(agg.OnTimeRate),
			formatRate(agg.MeanEfficiency),
			formatFloat(agg.TotalHours),
			formatInt(agg.TaskCount),
		})
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// ExportLeaderboard writes the latest-month rankings, one block per metric
// in presentation order
func (r *ReportExporter) ExportLeaderboard(leaderboard *domain.Leaderboard, outputPath string) error {
	headers := []string{"Month", "Metric", "Rank", "Member", "Value"}

	var csvRecords [][]string
	for _, metric := range domain.LeaderboardMetrics {
		for _, entry := range leaderboard.Rankings[metric] {
			csvRecords = append(csvRecords, []string{
				formatMonth(leaderboard.Month),
				string(metric),
				formatInt(entry.Rank),
				entry.Member,
				formatRate(entry.Value),
			})
		}
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// taskHeaders returns the CSV headers for normalized task records
func taskHeaders() []string {
	return []string{
		"TaskID", "Member", "Project", "Status", "CompletedDate",
		"WindowStart", "WindowEnd", "MonthBucket", "TargetHours", "ActualHours",
		"QualityFraction", "RevisionFraction", "EfficiencyFraction", "OnTime",
	}
}

// taskRow converts a task record to a CSV row
func taskRow(record domain.TaskRecord) []string {
	return []string{
		record.TaskID,
		formatString(record.Member),
		formatString(record.Project),
		formatString(record.Status),
		formatDate(record.CompletedDate),
		formatDate(record.WindowStart),
		formatDate(record.WindowEnd),
		formatDate(record.MonthBucket),
		formatHours(record.TargetHours),
		formatHours(record.ActualHours),
		formatRate(record.QualityFraction),
		formatRate(record.RevisionFraction),
		formatRate(record.EfficiencyFraction),
		formatBoolPtr(record.OnTime),
	}
}

// taskLess orders records by month bucket, then member, then task id.
// Records without a bucket or member sort last within their group.
func taskLess(a, b *domain.TaskRecord) bool {
	switch {
	case a.MonthBucket == nil && b.MonthBucket != nil:
		return false
	case a.MonthBucket != nil && b.MonthBucket == nil:
		return true
	case a.MonthBucket != nil && b.MonthBucket != nil && !a.MonthBucket.Equal(*b.MonthBucket):
		return a.MonthBucket.Before(*b.MonthBucket)
	}

	am, bm := formatString(a.Member), formatString(b.Member)
	if am != bm {
		if am == "" {
			return false
		}
		if bm == "" {
			return true
		}
		return am < bm
	}

	return a.TaskID < b.TaskID
}
