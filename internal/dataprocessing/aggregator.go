package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"teampulse/pkg/contracts/domain"
)

// Aggregator provides the single source of truth for the monthly summary
// tables and the leaderboard. All statistics here follow the same rule:
// means are taken over non-null inputs only, and a group with no usable
// input yields a null statistic rather than zero.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. A nil logger falls back to
// slog.Default().
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

// MemberMonthly computes one MonthlyAggregate per (member, month) pair.
// Records with no member or no month bucket are left out; the result is
// sorted by month ascending, then member ascending, so ties in the
// leaderboard resolve alphabetically.
func (a *Aggregator) MemberMonthly(ctx context.Context, records []domain.TaskRecord) []domain.MonthlyAggregate {
	type groupKey struct {
		member string
		month  time.Time
	}

	groups := make(map[groupKey][]*domain.TaskRecord)
	for i := range records {
		rec := &records[i]
		if rec.Member == nil || rec.MonthBucket == nil {
			continue
		}
		key := groupKey{member: *rec.Member, month: *rec.MonthBucket}
		groups[key] = append(groups[key], rec)
	}

	aggregates := make([]domain.MonthlyAggregate, 0, len(groups))
	for key, group := range groups {
		aggregates = append(aggregates, buildAggregate(key.month, key.member, group))
	}

	sort.Slice(aggregates, func(i, j int) bool {
		if !aggregates[i].Month.Equal(aggregates[j].Month) {
			return aggregates[i].Month.Before(aggregates[j].Month)
		}
		return aggregates[i].Member < aggregates[j].Member
	})

	a.logger.DebugContext(ctx, "member monthly aggregates computed",
		slog.Int("record_count", len(records)),
		slog.Int("group_count", len(aggregates)))

	return aggregates
}

// TeamMonthly computes one MonthlyAggregate per month over the whole team.
// Unlike MemberMonthly it keeps records whose member is null, so the team
// row for a month can count more tasks than its member rows add up to.
func (a *Aggregator) TeamMonthly(ctx context.Context, records []domain.TaskRecord) []domain.MonthlyAggregate {
	groups := make(map[time.Time][]*domain.TaskRecord)
	for i := range records {
		rec := &records[i]
		if rec.MonthBucket == nil {
			continue
		}
		groups[*rec.MonthBucket] = append(groups[*rec.MonthBucket], rec)
	}

	aggregates := make([]domain.MonthlyAggregate, 0, len(groups))
	for month, group := range groups {
		aggregates = append(aggregates, buildAggregate(month, "", group))
	}

	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].Month.Before(aggregates[j].Month)
	})

	a.logger.DebugContext(ctx, "team monthly aggregates computed",
		slog.Int("record_count", len(records)),
		slog.Int("month_count", len(aggregates)))

	return aggregates
}

// BuildLeaderboard ranks members on each metric for the latest month found
// in the per-member table. Every ranking sorts descending with null values
// last; ties keep the table's alphabetical order. Rank numbers are ordinal
// positions, so tied members still get distinct ranks.
func (a *Aggregator) BuildLeaderboard(ctx context.Context, memberMonthly []domain.MonthlyAggregate) (*domain.Leaderboard, error) {
	month, ok := LatestMonth(memberMonthly)
	if !ok {
		return nil, fmt.Errorf("no member months to rank: %w", ErrNoData)
	}

	var latest []domain.MonthlyAggregate
	for _, agg := range memberMonthly {
		if agg.Month.Equal(month) {
			latest = append(latest, agg)
		}
	}

	board := &domain.Leaderboard{
		Month:    month,
		Rankings: make(map[domain.LeaderboardMetric][]domain.LeaderboardEntry, len(domain.LeaderboardMetrics)),
	}

	for _, metric := range domain.LeaderboardMetrics {
		entries := make([]domain.LeaderboardEntry, 0, len(latest))
		for _, agg := range latest {
			entries = append(entries, domain.LeaderboardEntry{
				Member: agg.Member,
				Value:  metricValue(metric, agg),
			})
		}

		sort.SliceStable(entries, func(i, j int) bool {
			vi, vj := entries[i].Value, entries[j].Value
			if vi == nil {
				return false
			}
			if vj == nil {
				return true
			}
			return *vi > *vj
		})

		for i := range entries {
			entries[i].Rank = i + 1
		}
		board.Rankings[metric] = entries
	}

	a.logger.InfoContext(ctx, "leaderboard built",
		slog.String("month", month.Format("2006-01")),
		slog.Int("member_count", len(latest)))

	return board, nil
}

// FilterValues derives the distinct values of each filter dimension from
// the records. Null members, statuses and projects are not offered as
// filter choices even though their rows stay in the team aggregates.
func (a *Aggregator) FilterValues(records []domain.TaskRecord) domain.FilterValues {
	memberSet := make(map[string]struct{})
	monthSet := make(map[time.Time]struct{})
	statusSet := make(map[string]struct{})
	projectSet := make(map[string]struct{})

	for i := range records {
		rec := &records[i]
		if rec.Member != nil {
			memberSet[*rec.Member] = struct{}{}
		}
		if rec.MonthBucket != nil {
			monthSet[*rec.MonthBucket] = struct{}{}
		}
		if rec.Status != nil {
			statusSet[*rec.Status] = struct{}{}
		}
		if rec.Project != nil {
			projectSet[*rec.Project] = struct{}{}
		}
	}

	values := domain.FilterValues{
		Members:  sortedKeys(memberSet),
		Statuses: sortedKeys(statusSet),
		Projects: sortedKeys(projectSet),
		Months:   make([]time.Time, 0, len(monthSet)),
	}
	for month := range monthSet {
		values.Months = append(values.Months, month)
	}
	sort.Slice(values.Months, func(i, j int) bool {
		return values.Months[i].Before(values.Months[j])
	})

	return values
}

// LatestMonth returns the most recent month present in the aggregates.
func LatestMonth(aggregates []domain.MonthlyAggregate) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, agg := range aggregates {
		if !found || agg.Month.After(latest) {
			latest = agg.Month
			found = true
		}
	}
	return latest, found
}

// buildAggregate folds one group of records into its summary row.
func buildAggregate(month time.Time, member string, group []*domain.TaskRecord) domain.MonthlyAggregate {
	var quality, revision, onTime, efficiency runningMean
	var totalHours float64

	for _, rec := range group {
		quality.add(rec.QualityFraction)
		revision.add(rec.RevisionFraction)
		efficiency.add(rec.EfficiencyFraction)
		onTime.add(boolFraction(rec.OnTime))
		if rec.ActualHours != nil {
			totalHours += *rec.ActualHours
		}
	}

	return domain.MonthlyAggregate{
		Month:          month,
		Member:         member,
		MeanQuality:    quality.mean(),
		MeanRevision:   revision.mean(),
		OnTimeRate:     onTime.mean(),
		MeanEfficiency: efficiency.mean(),
		TotalHours:     totalHours,
		TaskCount:      len(group),
	}
}

// runningMean accumulates non-null values; mean() reports nil when nothing
// was added.
type runningMean struct {
	sum   float64
	count int
}

func (m *runningMean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.count++
}

func (m *runningMean) mean() *float64 {
	if m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}

func boolFraction(b *bool) *float64 {
	if b == nil {
		return nil
	}
	v := 0.0
	if *b {
		v = 1.0
	}
	return &v
}

func metricValue(metric domain.LeaderboardMetric, agg domain.MonthlyAggregate) *float64 {
	switch metric {
	case domain.MetricQuality:
		return agg.MeanQuality
	case domain.MetricRevision:
		return agg.MeanRevision
	case domain.MetricOnTime:
		return agg.OnTimeRate
	case domain.MetricEfficiency:
		return agg.MeanEfficiency
	case domain.MetricHours:
		v := agg.TotalHours
		return &v
	case domain.MetricTasks:
		v := float64(agg.TaskCount)
		return &v
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
