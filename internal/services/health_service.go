package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"teampulse/internal/config"
	"teampulse/internal/files"
	"teampulse/pkg/contracts"
)

// HealthService answers the probe and diagnostics endpoints. It keeps no
// state beyond the start time; every check reads the filesystem or the
// dashboard service at call time.
type HealthService struct {
	paths     *config.Paths
	dashboard *DashboardService
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the common probe response. Runtime appears on the
// liveness probe, Services on the readiness probe.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   *RuntimeHealth           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// RuntimeHealth reports process vitals.
type RuntimeHealth struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
}

// ServiceHealth is a single readiness verdict.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Age     string `json:"age,omitempty"`
}

// VersionDetails is the version endpoint payload: the build identity of
// the binary plus process start data.
type VersionDetails struct {
	contracts.BuildInfo
	StartTime     string  `json:"start_time"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// SystemStats sizes the data directory and counts what is in it.
type SystemStats struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	TotalFiles      int     `json:"total_files"`
	TotalSizeBytes  int64   `json:"total_size_bytes"`
	WorkbookCount   int     `json:"workbook_count"`
	ReportCount     int     `json:"report_count"`
	SnapshotRecords int     `json:"snapshot_records"`
	GoVersion       string  `json:"go_version"`
	OS              string  `json:"os"`
	Arch            string  `json:"arch"`
}

// DetailedHealth bundles every probe with the system stats for one-stop
// debugging.
type DetailedHealth struct {
	Health    HealthStatus `json:"health"`
	Readiness HealthStatus `json:"readiness"`
	Liveness  HealthStatus `json:"liveness"`
	Stats     SystemStats  `json:"stats"`
}

// NewHealthService wires the probes. paths and dashboard may be nil, as in
// unit tests; the checks that need them then report not ready.
func NewHealthService(paths *config.Paths, dashboard *DashboardService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		paths:     paths,
		dashboard: dashboard,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck answers the plain aliveness probe. It never fails: reaching
// the handler is the signal.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{Status: "ok", Timestamp: time.Now(), Version: contracts.Version}
}

// ReadinessCheck probes the pieces a request actually touches: the snapshot
// slot, the uploads directory and the reports directory. Any failing check
// flips the verdict to not_ready so load balancers stop routing here.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	checks := map[string]ServiceHealth{
		"snapshot": hs.checkSnapshotHealth(),
		"uploads":  hs.checkUploadsHealth(),
		"reports":  hs.checkReportsHealth(),
	}

	verdict := "ready"
	for _, check := range checks {
		if check.Status != "ready" {
			verdict = "not_ready"
			break
		}
	}

	return HealthStatus{
		Status:    verdict,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services:  checks,
	}
}

// LivenessCheck reports process vitals. A hung process fails this probe by
// not answering, so the body only needs to be informative.
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: &RuntimeHealth{
			UptimeSeconds: time.Since(hs.startTime).Seconds(),
			GoVersion:     runtime.Version(),
			Goroutines:    runtime.NumGoroutine(),
		},
	}
}

// Version reports what build is running and since when.
func (hs *HealthService) Version() VersionDetails {
	return VersionDetails{
		BuildInfo:     contracts.CurrentBuild(),
		StartTime:     hs.startTime.Format(time.RFC3339),
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
	}
}

// SystemStats walks the data directory and counts what accumulated there.
// Directories that do not exist yet read as empty, so a cold install
// reports zeros instead of an error.
func (hs *HealthService) SystemStats(ctx context.Context) (SystemStats, error) {
	var totalFiles int
	var totalSize int64
	var workbooks, reports int

	if hs.paths != nil {
		walk := func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) || os.IsPermission(err) {
					return nil
				}
				return err
			}
			if entry.IsDir() {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				// Entry vanished mid-walk.
				return nil
			}
			totalFiles++
			totalSize += info.Size()
			return nil
		}
		if err := filepath.WalkDir(hs.paths.DataDir, walk); err != nil {
			return SystemStats{}, fmt.Errorf("failed to scan data directory: %w", err)
		}

		if books, err := files.ListWorkbooks(hs.paths.UploadsDir); err == nil {
			workbooks = len(books)
		}
		if csvs, err := files.ListCSVReports(hs.paths.ReportsDir); err == nil {
			reports = len(csvs)
		}
	}

	records := 0
	if hs.dashboard != nil {
		if snap := hs.dashboard.CurrentSnapshot(); snap != nil {
			records = snap.Info.RecordCount
		}
	}

	return SystemStats{
		UptimeSeconds:   time.Since(hs.startTime).Seconds(),
		TotalFiles:      totalFiles,
		TotalSizeBytes:  totalSize,
		WorkbookCount:   workbooks,
		ReportCount:     reports,
		SnapshotRecords: records,
		GoVersion:       runtime.Version(),
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
	}, nil
}

// Detailed runs every probe. A stats failure does not fail the bundle; zero
// stats next to the readiness verdicts is still useful.
func (hs *HealthService) Detailed(ctx context.Context) DetailedHealth {
	stats, err := hs.SystemStats(ctx)
	if err != nil {
		hs.logger.WarnContext(ctx, "failed to collect system stats",
			slog.String("error", err.Error()))
	}

	return DetailedHealth{
		Health:    hs.HealthCheck(ctx),
		Readiness: hs.ReadinessCheck(ctx),
		Liveness:  hs.LivenessCheck(ctx),
		Stats:     stats,
	}
}

// checkSnapshotHealth reports whether a dataset is loaded. An empty snapshot
// slot is still ready: the server accepts uploads before the first load.
func (hs *HealthService) checkSnapshotHealth() ServiceHealth {
	if hs.dashboard == nil {
		return ServiceHealth{Status: "not_ready", Message: "dashboard service not initialized"}
	}

	snap := hs.dashboard.CurrentSnapshot()
	if snap == nil {
		return ServiceHealth{Status: "ready", Message: "no snapshot loaded yet"}
	}

	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("snapshot %s with %d records", snap.Info.ID, snap.Info.RecordCount),
		Age:     time.Since(snap.Info.LoadedAt).String(),
	}
}

// checkUploadsHealth wants the uploads directory present and readable. It
// is created at startup, so a missing directory means a broken install.
func (hs *HealthService) checkUploadsHealth() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{Status: "not_ready", Message: "paths not configured"}
	}
	if _, err := os.Stat(hs.paths.UploadsDir); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("uploads directory unusable: %v", err)}
	}
	return ServiceHealth{Status: "ready", Message: "uploads directory accessible"}
}

// checkReportsHealth goes further than a stat: exports write here on
// request, so readiness proves an actual write.
func (hs *HealthService) checkReportsHealth() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{Status: "not_ready", Message: "paths not configured"}
	}

	probe := filepath.Join(hs.paths.ReportsDir, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("reports directory not writable: %v", err)}
	}
	os.Remove(probe)

	return ServiceHealth{Status: "ready", Message: "reports directory writable"}
}
