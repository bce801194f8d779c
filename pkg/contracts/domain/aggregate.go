package domain

import (
	"time"
)

// MonthlyAggregate holds the six summary statistics for one group. The same
// shape serves both aggregate tables: per-member-month rows carry the member
// name, per-team-month rows leave it empty.
//
// Mean statistics are computed over non-null inputs only; a group whose
// input column is entirely null yields nil, never zero. TotalHours and
// TaskCount are always defined because ActualHours defaults to 0 and every
// row has an id.
type MonthlyAggregate struct {
	Month          time.Time `json:"month"`
	Member         string    `json:"member,omitempty"`
	MeanQuality    *float64  `json:"mean_quality"`
	MeanRevision   *float64  `json:"mean_revision"`
	OnTimeRate     *float64  `json:"on_time_rate"`
	MeanEfficiency *float64  `json:"mean_efficiency"`
	TotalHours     float64   `json:"total_hours"`
	TaskCount      int       `json:"task_count"`
}

// LeaderboardMetric names one of the ranked statistics.
type LeaderboardMetric string

const (
	MetricQuality    LeaderboardMetric = "quality"
	MetricRevision   LeaderboardMetric = "revision"
	MetricOnTime     LeaderboardMetric = "on_time"
	MetricEfficiency LeaderboardMetric = "efficiency"
	MetricHours      LeaderboardMetric = "hours"
	MetricTasks      LeaderboardMetric = "tasks"
)

// LeaderboardMetrics lists every ranked metric in presentation order.
var LeaderboardMetrics = []LeaderboardMetric{
	MetricQuality,
	MetricRevision,
	MetricOnTime,
	MetricEfficiency,
	MetricHours,
	MetricTasks,
}

// IsValidLeaderboardMetric reports whether m names a ranked metric.
func IsValidLeaderboardMetric(m string) bool {
	for _, known := range LeaderboardMetrics {
		if string(known) == m {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one (member, value) pair of a ranking. Value is nil
// when the member's statistic was null for the month; such entries sort
// after every non-null entry.
type LeaderboardEntry struct {
	Rank   int      `json:"rank"`
	Member string   `json:"member"`
	Value  *float64 `json:"value"`
}

// Leaderboard ranks members for the latest available month, one descending
// sequence per metric. Ties keep the per-member table's order, so the same
// input always produces the same ranking.
type Leaderboard struct {
	Month    time.Time                                `json:"month"`
	Rankings map[LeaderboardMetric][]LeaderboardEntry `json:"rankings"`
}

// FilterValues lists the distinct values each filter dimension can take,
// in the order the dropdown collaborators should present them. Months are
// ascending first-of-month dates; the string dimensions sort ascending.
type FilterValues struct {
	Members  []string    `json:"members"`
	Months   []time.Time `json:"months"`
	Statuses []string    `json:"statuses"`
	Projects []string    `json:"projects"`
}
