package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths is the single source of truth for every file location the
// application touches. All directories hang off the executable location,
// never the working directory, so the service behaves the same whether it
// is launched from a shell, a unit file, or a scheduler.
//
// Layout next to the binary:
//
//	credentials.json    Google Sheets service account (optional)
//	data/uploads/       task workbooks, watched for changes
//	data/reports/       generated CSV and Parquet reports
//	logs/               application logs
//	web/                dashboard frontend assets
type Paths struct {
	ExecutableDir string
	DataDir       string
	UploadsDir    string
	ReportsDir    string
	LogsDir       string
	WebDir        string
	StaticDir     string

	CredentialsFile string

	// The three standing report files the dashboard serves for download.
	NormalizedCSV    string
	MemberMonthlyCSV string
	TeamMonthlyCSV   string
}

// GetPaths resolves the path layout from the running executable.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}

	// The binary may be started through a symlink
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	root := filepath.Dir(exe)

	reportsDir := filepath.Join(root, DefaultReportsDir)
	return &Paths{
		ExecutableDir: root,
		DataDir:       filepath.Join(root, DefaultDataDir),
		UploadsDir:    filepath.Join(root, DefaultUploadsDir),
		ReportsDir:    reportsDir,
		LogsDir:       filepath.Join(root, DefaultLogsDir),
		WebDir:        filepath.Join(root, DefaultWebDir),
		StaticDir:     filepath.Join(root, DefaultWebDir, "static"),

		CredentialsFile: filepath.Join(root, "credentials.json"),

		NormalizedCSV:    filepath.Join(reportsDir, "normalized.csv"),
		MemberMonthlyCSV: filepath.Join(reportsDir, "member_monthly.csv"),
		TeamMonthlyCSV:   filepath.Join(reportsDir, "team_monthly.csv"),
	}, nil
}

// EnsureDirectories creates the directory tree on startup so the watcher,
// the exporters, and the static file server never race a missing parent.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{
		p.DataDir,
		p.UploadsDir,
		p.ReportsDir,
		p.LogsDir,
		p.WebDir,
		p.StaticDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetUploadPath returns the path for an uploaded workbook.
func (p *Paths) GetUploadPath(filename string) string {
	return filepath.Join(p.UploadsDir, filename)
}

// GetReportPath returns the path for a report file.
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// FileExists reports whether path is statable, covering files and
// directories alike.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogResolved records the resolved layout once at startup, which is usually
// the first thing to check when reports land somewhere unexpected.
func (p *Paths) LogResolved(logger *slog.Logger) {
	logger.Info("Resolved path layout",
		slog.String("root", p.ExecutableDir),
		slog.String("uploads", p.UploadsDir),
		slog.String("reports", p.ReportsDir),
		slog.String("logs", p.LogsDir),
		slog.String("web", p.WebDir))
}
