package config

import "time"

// Limits and defaults shared across the configuration layers.
const (
	// Source types for the task sheet
	SourceTypeFile   = "file"
	SourceTypeGSheet = "gsheet"

	// Upload constraints
	MaxUploadBytes    = 20 << 20 // 20MB workbook ceiling
	UploadFieldName   = "file"
	DefaultSourceFile = "tasks.xlsx"

	// Request shaping
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Background work
	SheetsFetchTimeout  = 45 * time.Second
	DefaultLoadTimeout  = 2 * time.Minute
	HealthCheckInterval = 30 * time.Second

	// Watcher
	DefaultWatchSettleDelay = 2 * time.Second

	// Directory layout relative to the executable
	DefaultDataDir    = "data"
	DefaultLogsDir    = "logs"
	DefaultWebDir     = "web"
	DefaultUploadsDir = "data/uploads"
	DefaultReportsDir = "data/reports"
)
