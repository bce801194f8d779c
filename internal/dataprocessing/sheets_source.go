package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"teampulse/internal/config"
)

// SheetsSource fetches the task table from a Google Sheets spreadsheet
// instead of a local workbook. It selects the worksheet with the same
// preference order the file parser uses, then hands the cell grid to the
// shared table builder, so both sources produce identical RawTables.
type SheetsSource struct {
	logger  *slog.Logger
	parser  *Parser
	schema  *config.Schema
	source  config.SourceConfig
	service *sheets.Service
}

// NewSheetsSource creates a SheetsSource authenticated either by a service
// account credentials file or by an API key, whichever the source config
// supplies. Credentials take precedence when both are set.
func NewSheetsSource(ctx context.Context, logger *slog.Logger, parser *Parser, schema *config.Schema, source config.SourceConfig) (*SheetsSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = NewParser(logger, schema)
	}
	if schema == nil {
		schema = config.DefaultSchema()
	}
	if source.SpreadsheetID == "" {
		return nil, fmt.Errorf("gsheet source requires a spreadsheet id")
	}

	var opts []option.ClientOption
	switch {
	case source.CredentialsFile != "":
		credentialsJSON, err := os.ReadFile(source.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials %s: %w", source.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	case source.APIKey != "":
		opts = append(opts, option.WithAPIKey(source.APIKey))
	default:
		return nil, fmt.Errorf("gsheet source requires a credentials file or an API key")
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsSource{
		logger:  logger.With(slog.String("component", "sheets_source")),
		parser:  parser,
		schema:  schema,
		source:  source,
		service: service,
	}, nil
}

// Fetch downloads the spreadsheet and parses it into a RawTable. Both API
// round trips run under one fetch deadline, on top of whatever deadline the
// caller already set, so a stalled Sheets backend cannot hang a reload.
func (s *SheetsSource) Fetch(ctx context.Context) (*RawTable, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SheetsFetchTimeout)
	defer cancel()

	meta, err := s.service.Spreadsheets.Get(s.source.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet %s: %w", s.source.SpreadsheetID, err)
	}

	titles := make([]string, 0, len(meta.Sheets))
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}
	sheetName, ok := s.schema.PickSheet(titles)
	if !ok {
		return nil, fmt.Errorf("spreadsheet %s has no sheets: %w", s.source.SpreadsheetID, ErrNoData)
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.source.SpreadsheetID, sheetName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of spreadsheet %s: %w", sheetName, s.source.SpreadsheetID, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellString(v)
		}
		rows = append(rows, cells)
	}

	sourceName := s.source.SpreadsheetID
	if meta.Properties != nil && meta.Properties.Title != "" {
		sourceName = meta.Properties.Title
	}

	s.logger.InfoContext(ctx, "spreadsheet fetched",
		slog.String("spreadsheet_id", s.source.SpreadsheetID),
		slog.String("sheet", sheetName),
		slog.Int("rows", len(rows)))

	return s.parser.TableFromRows(ctx, rows, sourceName, sheetName)
}

// cellString renders a Sheets API cell value the way the grid shows it.
// The API returns formatted values as strings, but untyped JSON decoding
// can still surface numbers and booleans.
func cellString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
