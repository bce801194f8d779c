package dataprocessing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"teampulse/internal/config"
	"teampulse/pkg/contracts/domain"
)

// ErrNoData marks a load that produced nothing usable: a workbook without
// sheets, without a header row, or without a single data row. Callers test
// for it with errors.Is; a load that fails this way installs no snapshot.
var ErrNoData = errors.New("no data in workbook")

// RawTable is the untyped sheet content handed to the Normalizer: the
// worksheet that was selected, its trimmed header row, and one RawRecord
// per data row.
type RawTable struct {
	Source  string
	Sheet   string
	Headers []string
	Rows    []domain.RawRecord
}

// Binding maps each canonical column to the header key that carries it in
// this table. Columns the sheet lacks are absent; when two headers bind the
// same column the first wins.
func (t *RawTable) Binding(schema *config.Schema) map[config.Column]string {
	binding := make(map[config.Column]string)
	for _, header := range t.Headers {
		col, ok := schema.MatchHeader(header)
		if !ok {
			continue
		}
		if _, taken := binding[col]; !taken {
			binding[col] = header
		}
	}
	return binding
}

// Parser reads task workbooks into RawTables. It selects the worksheet by
// the schema's preference order and treats the first non-blank row as the
// header.
type Parser struct {
	logger *slog.Logger
	schema *config.Schema
}

// NewParser creates a Parser. A nil logger falls back to slog.Default();
// a nil schema uses the default task sheet schema.
func NewParser(logger *slog.Logger, schema *config.Schema) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if schema == nil {
		schema = config.DefaultSchema()
	}
	return &Parser{
		logger: logger.With(slog.String("component", "parser")),
		schema: schema,
	}
}

// ParseFile reads a task workbook from disk.
func (p *Parser) ParseFile(ctx context.Context, path string) (*RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	return p.parseWorkbook(ctx, f, filepath.Base(path))
}

// ParseReader reads a task workbook from a stream, e.g. an upload body.
// The source name is carried through for logging and snapshot metadata.
func (p *Parser) ParseReader(ctx context.Context, r io.Reader, source string) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", source, err)
	}
	defer f.Close()

	return p.parseWorkbook(ctx, f, source)
}

func (p *Parser) parseWorkbook(ctx context.Context, f *excelize.File, source string) (*RawTable, error) {
	sheets := f.GetSheetList()
	sheet, ok := p.schema.PickSheet(sheets)
	if !ok {
		return nil, fmt.Errorf("%s has no sheets: %w", source, ErrNoData)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheet, source, err)
	}

	p.logger.DebugContext(ctx, "worksheet selected",
		slog.String("source", source),
		slog.String("sheet", sheet),
		slog.Int("available_sheets", len(sheets)),
		slog.Int("total_rows", len(rows)))

	return p.TableFromRows(ctx, rows, source, sheet)
}

// TableFromRows builds a RawTable from already-extracted cell rows. The
// Google Sheets source shares this path after coercing its values to
// strings.
func (p *Parser) TableFromRows(ctx context.Context, rows [][]string, source, sheet string) (*RawTable, error) {
	headerIdx := -1
	for i, row := range rows {
		if !rowIsBlank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, fmt.Errorf("%s sheet %s is empty: %w", source, sheet, ErrNoData)
	}

	headers := make([]string, len(rows[headerIdx]))
	for i, h := range rows[headerIdx] {
		headers[i] = strings.TrimSpace(h)
	}

	table := &RawTable{
		Source:  source,
		Sheet:   sheet,
		Headers: headers,
	}

	for _, row := range rows[headerIdx+1:] {
		if rowIsBlank(row) {
			continue
		}
		rec := make(domain.RawRecord, len(headers))
		for j, header := range headers {
			if header == "" || j >= len(row) {
				continue
			}
			if _, taken := rec[header]; taken {
				continue
			}
			rec[header] = row[j]
		}
		table.Rows = append(table.Rows, rec)
	}

	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%s sheet %s has no data rows: %w", source, sheet, ErrNoData)
	}

	p.logger.InfoContext(ctx, "raw table parsed",
		slog.String("source", source),
		slog.String("sheet", sheet),
		slog.Int("columns", len(headers)),
		slog.Int("rows", len(table.Rows)))

	return table, nil
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
