package http

import (
	"context"

	"teampulse/internal/services"
	"teampulse/pkg/contracts/domain"
)

// DashboardServiceInterface defines the interface for dashboard operations
type DashboardServiceInterface interface {
	SnapshotInfo() (domain.SnapshotInfo, error)
	Records(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error)
	MemberMonthly(ctx context.Context, filter domain.TaskFilter) ([]domain.MonthlyAggregate, error)
	TeamMonthly(ctx context.Context, filter domain.TaskFilter) ([]domain.MonthlyAggregate, error)
	Leaderboard(ctx context.Context, filter domain.TaskFilter) (*domain.Leaderboard, error)
	FilterValues(ctx context.Context) (domain.FilterValues, error)

	// Load methods
	LoadFromUpload(ctx context.Context, filename string, data []byte) (*services.Snapshot, error)
	LoadFromSource(ctx context.Context) (*services.Snapshot, error)
	Export(ctx context.Context, table, format string, filter domain.TaskFilter) (string, error)
}
