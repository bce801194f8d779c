package validation

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Leading bytes of real workbook files. An .xlsx carries a ZIP signature,
// a legacy .xls the OLE compound document signature.
var (
	xlsxHeader = append([]byte{0x50, 0x4B, 0x03, 0x04}, []byte("workbook payload")...)
	xlsHeader  = append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, []byte("workbook payload")...)
)

func newQuietValidator() *FileValidator {
	return NewFileValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewFileValidator_NilLogger(t *testing.T) {
	v := NewFileValidator(nil)
	require.NotNil(t, v.logger)
}

func TestFileValidator_ValidateWorkbookFile(t *testing.T) {
	v := newQuietValidator()

	tests := []struct {
		name     string
		filename string
		content  []byte
		wantErr  string
	}{
		{"xlsx with zip content", "tasks.xlsx", xlsxHeader, ""},
		{"legacy xls with ole content", "tasks.xls", xlsHeader, ""},
		{"office lock file", "~$tasks.xlsx", xlsxHeader, "temporary Excel file"},
		{"wrong extension", "tasks.txt", []byte("plain text"), "not an Excel workbook"},
		{"renamed csv", "tasks.xlsx", []byte("Member,Quality\nAlice,0.9\n"), "does not contain .xlsx workbook content"},
		{"truncated header", "tasks.xlsx", []byte{0x50}, "does not contain .xlsx workbook content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, os.WriteFile(path, tt.content, 0644))

			err := v.ValidateWorkbookFile(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		err := v.ValidateWorkbookFile(filepath.Join(t.TempDir(), "absent.xlsx"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("directory instead of file", func(t *testing.T) {
		err := v.ValidateWorkbookFile(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})
}

func TestFileValidator_ValidateWorkbookUpload(t *testing.T) {
	const limit = 20 << 20
	v := newQuietValidator()

	tests := []struct {
		name     string
		filename string
		size     int64
		maxBytes int64
		header   []byte
		wantErr  string
	}{
		{"xlsx upload", "tasks.xlsx", 1024, limit, xlsxHeader, ""},
		{"legacy xls upload", "legacy.xls", 1024, limit, xlsHeader, ""},
		{"no size limit configured", "tasks.xlsx", 1 << 30, 0, xlsxHeader, ""},
		{"path components stripped from filename", "../../etc/tasks.xlsx", 1024, limit, xlsxHeader, ""},
		{"empty payload", "tasks.xlsx", 0, limit, nil, "is empty"},
		{"oversized payload", "tasks.xlsx", limit + 1, limit, xlsxHeader, "exceeds"},
		{"csv extension", "tasks.csv", 1024, limit, []byte("Member,Quality\n"), "not an Excel workbook"},
		{"lock file name", "~$tasks.xlsx", 1024, limit, xlsxHeader, "temporary Excel file"},
		{"zip content behind xls name", "tasks.xls", 1024, limit, xlsxHeader, "does not contain .xls workbook content"},
		{"text content behind xlsx name", "tasks.xlsx", 1024, limit, []byte("not a workbook"), "does not contain .xlsx workbook content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateWorkbookUpload(tt.filename, tt.size, tt.maxBytes, tt.header)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFileValidator_UploadRejectionsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	v := NewFileValidator(slog.New(slog.NewTextHandler(&buf, nil)))

	require.Error(t, v.ValidateWorkbookUpload("tasks.csv", 1024, 0, nil))

	log := buf.String()
	assert.Contains(t, log, "rejected workbook upload")
	assert.Contains(t, log, "tasks.csv")
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	v := newQuietValidator()

	t.Run("creates nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports", "2025-08")
		require.NoError(t, v.ValidateOutputDirectory(dir))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("leaves no probe file behind", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, v.ValidateOutputDirectory(dir))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("rejects a path blocked by a file", func(t *testing.T) {
		blocked := filepath.Join(t.TempDir(), "reports")
		require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))

		err := v.ValidateOutputDirectory(blocked)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create output directory")
	})
}
