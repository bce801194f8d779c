package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"teampulse/internal/config"
	"teampulse/internal/dataprocessing"
	apierrors "teampulse/internal/errors"
	"teampulse/internal/exporter"
	"teampulse/internal/files"
	"teampulse/internal/infrastructure"
	"teampulse/pkg/contracts/domain"
)

// sourceKindUpload labels loads that arrived as HTTP upload bodies, as
// opposed to the configured file or spreadsheet sources.
const sourceKindUpload = "upload"

// Export table names accepted by Export.
const (
	ExportTableRecords = "records"
	ExportTableMembers = "members"
	ExportTableTeam    = "team"
)

// Export formats accepted by Export.
const (
	ExportFormatCSV     = "csv"
	ExportFormatParquet = "parquet"
)

// Snapshot is one immutable load result: the normalized record set, the
// column capabilities the source supported, and the identity metadata the
// status surfaces report. Readers share the pointer; nothing mutates a
// snapshot after it is installed.
type Snapshot struct {
	Info    domain.SnapshotInfo
	Records []domain.TaskRecord
	Flags   dataprocessing.ColumnFlags
}

// DashboardService owns the normalized snapshot and answers every dashboard
// read from it. One load is one synchronous pass through parser, normalizer
// and aggregator; the result replaces the previous snapshot wholesale, keyed
// by the SHA-256 of the input so identical inputs collapse to one load.
// Aggregates are computed per request from the immutable record set, never
// maintained incrementally.
type DashboardService struct {
	config     *config.Config
	paths      *config.Paths
	logger     *slog.Logger
	metrics    *infrastructure.BusinessMetrics
	schema     *config.Schema
	parser     *dataprocessing.Parser
	normalizer *dataprocessing.Normalizer
	aggregator *dataprocessing.Aggregator
	reports    *exporter.ReportExporter
	parquet    *exporter.ParquetWriter

	mu       sync.RWMutex
	snapshot *Snapshot

	sheetsMu sync.Mutex
	sheets   *dataprocessing.SheetsSource

	loads singleflight.Group
}

// NewDashboardService creates a dashboard service with the default logger
func NewDashboardService(cfg *config.Config) (*DashboardService, error) {
	return NewDashboardServiceWithLogger(cfg, slog.Default())
}

// NewDashboardServiceWithLogger creates a dashboard service with a specific logger
func NewDashboardServiceWithLogger(cfg *config.Config, logger *slog.Logger) (*DashboardService, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	return newDashboardService(cfg, paths, logger, nil), nil
}

// NewDashboardServiceWithMetrics creates a dashboard service that reports
// load, snapshot and export metrics. This is the constructor the HTTP
// application uses.
func NewDashboardServiceWithMetrics(cfg *config.Config, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) (*DashboardService, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	return newDashboardService(cfg, paths, logger, metrics), nil
}

func newDashboardService(cfg *config.Config, paths *config.Paths, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	schema := config.DefaultSchema()

	return &DashboardService{
		config:     cfg,
		paths:      paths,
		logger:     logger,
		metrics:    metrics,
		schema:     schema,
		parser:     dataprocessing.NewParser(logger, schema),
		normalizer: dataprocessing.NewNormalizer(logger, schema),
		aggregator: dataprocessing.NewAggregator(logger),
		reports:    exporter.NewReportExporter(paths),
		parquet:    exporter.NewParquetWriter(paths),
	}
}

// LoadFromSource loads whatever the configuration points at: the workbook
// file for SourceTypeFile, the spreadsheet for SourceTypeGSheet. This is the
// path the reload endpoint and the startup load share.
func (s *DashboardService) LoadFromSource(ctx context.Context) (*Snapshot, error) {
	switch s.config.Source.Type {
	case config.SourceTypeFile, "":
		return s.LoadFromFile(ctx, s.sourceFilePath())
	case config.SourceTypeGSheet:
		return s.LoadFromSheets(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, s.config.Source.Type)
	}
}

// sourceFilePath resolves the configured workbook path. Relative paths live
// in the uploads directory; an unset file falls back to the default name.
func (s *DashboardService) sourceFilePath() string {
	file := s.config.Source.File
	if file == "" {
		file = config.DefaultSourceFile
	}
	if filepath.IsAbs(file) {
		return file
	}
	return s.paths.GetUploadPath(file)
}

// LoadFromFile reads a workbook from disk and installs the resulting
// snapshot. A directory path is resolved to its newest workbook, so the
// source can point at the uploads directory itself. Bytes identical to the
// installed snapshot keep it in place without a second normalization pass.
func (s *DashboardService) LoadFromFile(ctx context.Context, path string) (*Snapshot, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		book, ok, err := files.LatestWorkbook(path)
		if err != nil {
			return nil, fmt.Errorf("scanning %s for workbooks: %w", path, err)
		}
		if !ok {
			return nil, fmt.Errorf("no workbook in %s: %w", path, apierrors.ErrSourceUnavailable)
		}
		path = book.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		infrastructure.RecordLoadMetrics(ctx, s.metrics, config.SourceTypeFile, 0, 0, 0, err)
		logDatasetError(ctx, "load", "workbook read failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workbook %s: %w", path, apierrors.ErrSourceUnavailable)
		}
		return nil, fmt.Errorf("failed to read workbook %s: %w", path, err)
	}

	return s.loadBytes(ctx, config.SourceTypeFile, filepath.Base(path), data)
}

// LoadFromUpload installs a snapshot from workbook bytes received over HTTP.
// The caller has already validated the name, size and signature. A workbook
// that loads cleanly is also written into the uploads directory, so the
// newest upload survives a restart. The watcher event that write fires
// reloads identical bytes and resolves as a no-op on the content hash.
func (s *DashboardService) LoadFromUpload(ctx context.Context, filename string, data []byte) (*Snapshot, error) {
	snapshot, err := s.loadBytes(ctx, sourceKindUpload, filepath.Base(filename), data)
	if err != nil {
		return nil, err
	}

	// A failed write does not unwind the installed snapshot
	target := s.paths.GetUploadPath(filepath.Base(filename))
	if err := os.WriteFile(target, data, 0644); err != nil {
		s.logger.WarnContext(ctx, "failed to persist upload",
			slog.String("path", target),
			slog.String("error", err.Error()))
	}
	return snapshot, nil
}

// LoadFromSheets pulls the configured spreadsheet through the Sheets API and
// installs the snapshot. The fetched grid is fingerprinted into the same
// identity space as file bytes, so an unchanged spreadsheet keeps the
// installed snapshot.
func (s *DashboardService) LoadFromSheets(ctx context.Context) (*Snapshot, error) {
	source, err := s.sheetsSource(ctx)
	if err != nil {
		return nil, err
	}

	// Concurrent pulls of the same spreadsheet collapse on its id; the
	// content hash is only known after the fetch.
	key := "gsheet/" + s.config.Source.SpreadsheetID
	return s.load(ctx, config.SourceTypeGSheet, key, func(ctx context.Context) (*dataprocessing.RawTable, string, error) {
		table, err := source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, dataprocessing.ErrNoData) {
				return nil, "", err
			}
			return nil, "", fmt.Errorf("%v: %w", err, apierrors.ErrSourceUnavailable)
		}
		return table, tableFingerprint(table), nil
	})
}

// loadBytes hashes the raw bytes and runs the guarded load pass. The hash is
// both the memoization check and the singleflight key, so identical payloads
// submitted concurrently parse once.
func (s *DashboardService) loadBytes(ctx context.Context, sourceKind, sourceName string, data []byte) (*Snapshot, error) {
	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	if current := s.CurrentSnapshot(); current != nil && current.Info.SourceHash == contentHash {
		s.logger.InfoContext(ctx, "source unchanged, keeping snapshot",
			slog.String("snapshot_id", current.Info.ID),
			slog.String("source", sourceName))
		return current, nil
	}

	return s.load(ctx, sourceKind, contentHash, func(ctx context.Context) (*dataprocessing.RawTable, string, error) {
		table, err := s.parser.ParseReader(ctx, bytes.NewReader(data), sourceName)
		if err != nil && !errors.Is(err, dataprocessing.ErrNoData) {
			return nil, "", apierrors.NewParsingError("the workbook could not be parsed", err).
				WithContext("source", sourceName)
		}
		return table, contentHash, err
	})
}

// load runs one guarded pass: fetch the raw table, normalize it, and install
// the snapshot. Concurrent loads with the same key collapse to a single pass
// through the singleflight group; a content hash matching the installed
// snapshot short-circuits before normalization.
func (s *DashboardService) load(ctx context.Context, sourceKind, key string, fetch func(context.Context) (*dataprocessing.RawTable, string, error)) (*Snapshot, error) {
	v, err, shared := s.loads.Do(key, func() (interface{}, error) {
		start := time.Now()

		table, contentHash, err := fetch(ctx)
		if err != nil {
			infrastructure.RecordLoadMetrics(ctx, s.metrics, sourceKind, 0, 0, time.Since(start), err)
			logDatasetError(ctx, "load", "dataset load failed",
				slog.String("source_kind", sourceKind),
				slog.String("error", err.Error()))
			if errors.Is(err, dataprocessing.ErrNoData) {
				return nil, apierrors.NewNoDataError("the source contains no usable task rows", err)
			}
			return nil, err
		}

		if current := s.CurrentSnapshot(); current != nil && current.Info.SourceHash == contentHash {
			s.logger.InfoContext(ctx, "source unchanged, keeping snapshot",
				slog.String("snapshot_id", current.Info.ID),
				slog.String("source", table.Source))
			return current, nil
		}

		records, flags := s.normalizer.Normalize(ctx, table)

		// Rows without a resolved month stay in the record set but never
		// reach the aggregate tables; they are the dropped count.
		unbucketed := 0
		for i := range records {
			if records[i].MonthBucket == nil {
				unbucketed++
			}
		}

		snap := &Snapshot{
			Info: domain.SnapshotInfo{
				ID:          uuid.New().String(),
				SourceName:  table.Source,
				SourceHash:  contentHash,
				Sheet:       table.Sheet,
				LoadedAt:    time.Now().UTC(),
				RecordCount: len(records),
			},
			Records: records,
			Flags:   flags,
		}

		s.install(ctx, snap, sourceKind)
		infrastructure.RecordLoadMetrics(ctx, s.metrics, sourceKind, len(records), unbucketed, time.Since(start), nil)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	snap := v.(*Snapshot)
	if shared {
		s.logger.DebugContext(ctx, "load collapsed into in-flight pass",
			slog.String("snapshot_id", snap.Info.ID),
			slog.String("source_kind", sourceKind))
	}
	return snap, nil
}

// install swaps the snapshot pointer and records the record-count delta
// against the previous snapshot.
func (s *DashboardService) install(ctx context.Context, snap *Snapshot, sourceKind string) {
	s.mu.Lock()
	previous := s.snapshot
	s.snapshot = snap
	s.mu.Unlock()

	delta := int64(snap.Info.RecordCount)
	replaced := ""
	if previous != nil {
		delta -= int64(previous.Info.RecordCount)
		replaced = previous.Info.ID
	}
	infrastructure.RecordSnapshotSize(ctx, s.metrics, delta, sourceKind)

	s.logger.InfoContext(ctx, "snapshot installed",
		slog.String("snapshot_id", snap.Info.ID),
		slog.String("source", snap.Info.SourceName),
		slog.String("sheet", snap.Info.Sheet),
		slog.String("source_hash", snap.Info.SourceHash),
		slog.Int("records", snap.Info.RecordCount),
		slog.String("replaced", replaced))
}

// sheetsSource lazily builds the Google Sheets client. Construction needs
// credentials and a network-capable context, so it waits for the first
// gsheet load instead of happening in the constructor.
func (s *DashboardService) sheetsSource(ctx context.Context) (*dataprocessing.SheetsSource, error) {
	s.sheetsMu.Lock()
	defer s.sheetsMu.Unlock()

	if s.sheets != nil {
		return s.sheets, nil
	}

	source := s.config.Source
	if source.CredentialsFile == "" && source.APIKey == "" && config.FileExists(s.paths.CredentialsFile) {
		source.CredentialsFile = s.paths.CredentialsFile
	}

	sheets, err := dataprocessing.NewSheetsSource(ctx, s.logger, s.parser, s.schema, source)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets source: %v: %w", err, apierrors.ErrSourceUnavailable)
	}
	s.sheets = sheets
	return sheets, nil
}

// CurrentSnapshot returns the installed snapshot, or nil before the first
// successful load.
func (s *DashboardService) CurrentSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SnapshotInfo returns the metadata of the installed snapshot.
func (s *DashboardService) SnapshotInfo() (domain.SnapshotInfo, error) {
	snap := s.CurrentSnapshot()
	if snap == nil {
		return domain.SnapshotInfo{}, apierrors.ErrNoSnapshot
	}
	return snap.Info, nil
}

// Records returns the normalized records that survive the filter. An empty
// result is a valid answer, not an error; the caller decides how to render
// zero rows.
func (s *DashboardService) Records(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error) {
	snap := s.CurrentSnapshot()
	if snap == nil {
		return nil, apierrors.ErrNoSnapshot
	}

	records := filterRecords(snap.Records, filter)
	s.logger.DebugContext(ctx, "records selected",
		slog.Int("matched", len(records)),
		slog.Int("total", len(snap.Records)))
	return records, nil
}

// MemberMonthly computes the per-member monthly aggregate table over the
// filtered record set.
func (s *DashboardService) MemberMonthly(ctx context.Context, filter domain.TaskFilter) ([]domain.MonthlyAggregate, error) {
	snap := s.CurrentSnapshot()
	if snap == nil {
		return nil, apierrors.ErrNoSnapshot
	}
	return s.aggregator.MemberMonthly(ctx, filterRecords(snap.Records, filter)), nil
}

// TeamMonthly computes the team-wide monthly aggregate table over the
// filtered record set.
func (s *DashboardService) TeamMonthly(ctx context.Context, filter domain.TaskFilter) ([]domain.MonthlyAggregate, error) {
	snap := s.CurrentSnapshot()
	if snap == nil {
		return nil, apierrors.ErrNoSnapshot
	}
	return s.aggregator.TeamMonthly(ctx, filterRecords(snap.Records, filter)), nil
}

// Leaderboard ranks members over the latest month of the filtered selection.
// A filter that leaves no member months returns ErrEmptySelection so the
// handler can render the explicit empty envelope instead of stale rankings.
func (s *DashboardService) Leaderboard(ctx context.Context, filter domain.TaskFilter) (*domain.Leaderboard, error) {
	snap := s.CurrentSnapshot()
	if snap == nil {
		return nil, apierrors.ErrNoSnapshot
	}

	memberMonthly := s.aggregator.MemberMonthly(ctx, filterRecords(snap.Records, filter))
	board, err := s.aggregator.BuildLeaderboard(ctx, memberMonthly)
	if err != nil {
		if errors.Is(err, dataprocessing.ErrNoData) {
			return nil, apierrors.ErrEmptySelection
		}
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	return board, nil
}

// FilterValues lists the distinct values of each filter dimension over the
// whole snapshot, unfiltered, for the dropdown collaborators.
func (s *DashboardService) FilterValues(ctx context.Context) (domain.FilterValues, error) {
	snap := s.CurrentSnapshot()
	if snap == nil {
		return domain.FilterValues{}, apierrors.ErrNoSnapshot
	}
	return s.aggregator.FilterValues(snap.Records), nil
}

// Export writes one of the dashboard tables to the reports directory and
// returns the absolute path of the written file. The filter narrows the
// record set before aggregation, the same way the read endpoints do.
func (s *DashboardService) Export(ctx context.Context, table, format string, filter domain.TaskFilter) (string, error) {
	start := time.Now()
	path, err := s.exportTable(ctx, table, format, filter)
	infrastructure.RecordExportMetrics(ctx, s.metrics, format, time.Since(start), err)
	if err != nil {
		logDatasetError(ctx, "export", "table export failed",
			slog.String("table", table),
			slog.String("format", format),
			slog.String("error", err.Error()))
		return "", err
	}

	s.logger.InfoContext(ctx, "table exported",
		slog.String("table", table),
		slog.String("format", format),
		slog.String("path", path))
	return path, nil
}

func (s *DashboardService) exportTable(ctx context.Context, table, format string, filter domain.TaskFilter) (string, error) {
	switch format {
	case ExportFormatCSV, ExportFormatParquet:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExportFormat, format)
	}

	snap := s.CurrentSnapshot()
	if snap == nil {
		return "", apierrors.ErrNoSnapshot
	}
	records := filterRecords(snap.Records, filter)

	var path string
	var err error
	switch table {
	case ExportTableRecords:
		if format == ExportFormatCSV {
			path = s.paths.NormalizedCSV
			err = s.reports.ExportNormalized(records, path)
		} else {
			path = s.paths.GetReportPath("normalized.parquet")
			err = s.parquet.WriteTasks(records, path)
		}
	case ExportTableMembers:
		aggregates := s.aggregator.MemberMonthly(ctx, records)
		if format == ExportFormatCSV {
			path = s.paths.MemberMonthlyCSV
			err = s.reports.ExportMemberMonthly(aggregates, path)
		} else {
			path = s.paths.GetReportPath("member_monthly.parquet")
			err = s.parquet.WriteAggregates(aggregates, path)
		}
	case ExportTableTeam:
		aggregates := s.aggregator.TeamMonthly(ctx, records)
		if format == ExportFormatCSV {
			path = s.paths.TeamMonthlyCSV
			err = s.reports.ExportTeamMonthly(aggregates, path)
		} else {
			path = s.paths.GetReportPath("team_monthly.parquet")
			err = s.parquet.WriteAggregates(aggregates, path)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExportTable, table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to export %s as %s: %w", table, format, err)
	}
	return path, nil
}

// filterRecords returns the records surviving the filter. The result is
// always a fresh slice so callers can sort without touching the snapshot.
func filterRecords(records []domain.TaskRecord, filter domain.TaskFilter) []domain.TaskRecord {
	if filter.IsZero() {
		out := make([]domain.TaskRecord, len(records))
		copy(out, records)
		return out
	}

	out := make([]domain.TaskRecord, 0, len(records))
	for i := range records {
		if filter.Matches(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// tableFingerprint hashes a fetched grid into the same identity space as
// file bytes: worksheet name, headers and every cell in header order.
// Separator bytes keep adjacent cells from colliding across boundaries.
func tableFingerprint(table *dataprocessing.RawTable) string {
	h := sha256.New()
	io.WriteString(h, table.Sheet)
	for _, header := range table.Headers {
		io.WriteString(h, "\x1f")
		io.WriteString(h, header)
	}
	for _, row := range table.Rows {
		io.WriteString(h, "\x1e")
		for _, header := range table.Headers {
			io.WriteString(h, "\x1f")
			io.WriteString(h, row[header])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
