package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"teampulse/internal/config"
)

// utf8BOM marks Excel-facing files so Excel detects the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes CSV report files under the configured directories.
// Every write goes through a temporary sibling file and a rename, so a
// reader opening a report mid-export sees the previous complete table,
// never a truncated one.
type CSVWriter struct {
	paths *config.Paths
}

// NewCSVWriter creates a writer rooted at the configured report directories.
func NewCSVWriter(paths *config.Paths) *CSVWriter {
	return &CSVWriter{paths: paths}
}

// WriteOptions configures a single WriteCSV call.
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // BOM for files opened in Excel
}

// WriteCSV writes headers and records to filePath, replacing any previous
// file. Reports are always full rewrites of a sorted table, so there is
// no append mode.
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	target := w.resolvePath(filePath)

	file, err := createPending(target)
	if err != nil {
		return err
	}

	if err := writeTable(file, options); err != nil {
		file.abort()
		return err
	}
	if err := file.commit(); err != nil {
		return err
	}

	slog.Debug("wrote csv file",
		slog.String("path", target),
		slog.Int("records", len(options.Records)))
	return nil
}

// writeTable puts the whole table into the pending file. The caller owns
// the abort on failure.
func writeTable(file *pendingFile, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := file.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write header row: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteSimpleCSV writes an Excel-facing CSV file with headers and records
func (w *CSVWriter) WriteSimpleCSV(filePath string, headers []string, records [][]string) error {
	return w.WriteCSV(filePath, WriteOptions{
		Headers:   headers,
		Records:   records,
		BOMPrefix: true,
	})
}

// StreamWriter writes one record at a time, for tables too large to
// buffer as string slices. The file only appears under its final name
// once Close succeeds.
type StreamWriter struct {
	file   *pendingFile
	writer *csv.Writer
	closed bool
}

// CreateStreamWriter opens filePath and writes the header row. The stream
// never gets a BOM: streaming serves the normalized table, which analysis
// tools read, so streamed output is byte-identical to the buffered export.
// Excel-facing summaries go through WriteSimpleCSV instead.
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	target := w.resolvePath(filePath)

	file, err := createPending(target)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.abort()
			return nil, fmt.Errorf("failed to write header row: %w", err)
		}
	}

	slog.Debug("opened csv stream",
		slog.String("path", target),
		slog.Int("columns", len(headers)))

	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord appends one row to the stream.
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes the stream and moves the file into place. Closing twice
// is safe. If a write failed, Close removes the partial file and reports
// the error; the previous report is left untouched either way.
func (s *StreamWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.abort()
		return err
	}
	return s.file.commit()
}

// pendingFile is a report being written under a temporary name. commit
// renames it onto the target path; abort discards it.
type pendingFile struct {
	*os.File
	target string
}

// createPending makes the target's directory and opens a uniquely named
// temporary file next to it. Staying in the same directory keeps the
// final rename atomic.
func createPending(target string) (*pendingFile, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	// CreateTemp opens 0600; reports are meant to be shared
	if err := file.Chmod(0644); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to set file mode: %w", err)
	}

	return &pendingFile{File: file, target: target}, nil
}

func (f *pendingFile) commit() error {
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

func (f *pendingFile) abort() {
	f.Close()
	os.Remove(f.Name())
}

// resolvePath maps a relative path into the reports directory. Absolute
// paths pass through, so callers holding a config.Paths target can hand
// them over directly.
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return w.paths.GetReportPath(filePath)
}
