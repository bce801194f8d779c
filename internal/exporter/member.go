package exporter

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"teampulse/internal/config"
	"teampulse/pkg/contracts/domain"
)

// MemberExporter handles member-specific report generation
type MemberExporter struct {
	csvWriter *CSVWriter
}

// NewMemberExporter creates a new member report exporter
func NewMemberExporter(paths *config.Paths) *MemberExporter {
	return &MemberExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// MemberSummary represents summary statistics for one member across all months
type MemberSummary struct {
	Member           string
	ActiveMonths     int
	FirstMonth       string
	LastMonth        string
	TotalTasks       int
	TotalHours       float64
	BestQuality      *float64
	BestQualityMonth string
	LatestOnTimeRate *float64
}

// ExportMemberFiles generates an individual monthly-history CSV for each member
func (m *MemberExporter) ExportMemberFiles(aggregates []domain.MonthlyAggregate, outputDir string) error {
	// Group aggregates by member
	byMember := make(map[string][]domain.MonthlyAggregate)
	for _, agg := range aggregates {
		if agg.Member == "" {
			continue
		}
		byMember[agg.Member] = append(byMember[agg.Member], agg)
	}

	headers := []string{
		"Month", "MeanQuality", "MeanRevision", "OnTimeRate",
		"MeanEfficiency", "TotalHours", "TaskCount",
	}

	for member, memberAggs := range byMember {
		// Sort by month (oldest to newest)
		sort.Slice(memberAggs, func(i, j int) bool {
			return memberAggs[i].Month.Before(memberAggs[j].Month)
		})

		filename := fmt.Sprintf("%s_monthly_history.csv", memberSlug(member))
		filePath := filepath.Join(outputDir, filename)

		var csvRecords [][]string
		for _, agg := range memberAggs {
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

		if err := m.csvWriter.WriteSimpleCSV(filePath, headers, csvRecords); err != nil {
			return fmt.Errorf("failed to write member file for %s: %w", member, err)
		}
	}

	return nil
}

// ExportMemberSummary exports a summary CSV with statistics for all members
func (m *MemberExporter) ExportMemberSummary(summaries []MemberSummary, outputPath string) error {
	// Sort by member name
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Member < summaries[j].Member
	})

	var csvRecords [][]string
	for _, summary := range summaries {
		csvRecords = append(csvRecords, m.summaryToCSVRow(summary))
	}

	headers := []string{
		"Member", "ActiveMonths", "FirstMonth", "LastMonth", "TotalTasks",
		"TotalHours", "BestQuality", "BestQualityMonth", "LatestOnTimeRate",
	}

	return m.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// GenerateMemberSummaries creates summary statistics from per-member monthly aggregates
func (m *MemberExporter) GenerateMemberSummaries(aggregates []domain.MonthlyAggregate) []MemberSummary {
	// Group by member
	byMember := make(map[string][]domain.MonthlyAggregate)
	for _, agg := range aggregates {
		if agg.Member == "" {
			continue
		}
		byMember[agg.Member] = append(byMember[agg.Member], agg)
	}

	var summaries []MemberSummary
	for member, memberAggs := range byMember {
		// Sort by month
		sort.Slice(memberAggs, func(i, j int) bool {
			return memberAggs[i].Month.Before(memberAggs[j].Month)
		})

		summary := MemberSummary{
			Member:       member,
			ActiveMonths: len(memberAggs),
			FirstMonth:   formatMonth(memberAggs[0].Month),
			LastMonth:    formatMonth(memberAggs[len(memberAggs)-1].Month),
		}

		for _, agg := range memberAggs {
			summary.TotalTasks += agg.TaskCount
			summary.TotalHours += agg.TotalHours

			if agg.MeanQuality != nil {
				if summary.BestQuality == nil || *agg.MeanQuality > *summary.BestQuality {
					quality := *agg.MeanQuality
					summary.BestQuality = &quality
					summary.BestQualityMonth = formatMonth(agg.Month)
				}
			}
		}

		// Latest month with a known on-time rate
		for i := len(memberAggs) - 1; i >= 0; i-- {
			if memberAggs[i].OnTimeRate != nil {
				rate := *memberAggs[i].OnTimeRate
				summary.LatestOnTimeRate = &rate
				break
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries
}

// summaryToCSVRow converts a member summary to a CSV row
func (m *MemberExporter) summaryToCSVRow(summary MemberSummary) []string {
	return []string{
		summary.Member,
		formatInt(summary.ActiveMonths),
		summary.FirstMonth,
		summary.LastMonth,
		formatInt(summary.TotalTasks),
		formatFloat(summary.TotalHours),
		formatRate(summary.BestQuality),
		summary.BestQualityMonth,
		formatRate(summary.LatestOnTimeRate),
	}
}

// memberSlug builds a filesystem-safe name from a member name
func memberSlug(member string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(member) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "member"
	}
	return slug
}
