package validation

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Workbook content signatures. An .xlsx file is a ZIP archive and a legacy
// .xls file is an OLE compound document.
var (
	zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}
	oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// FileValidator answers whether workbook inputs and report outputs are usable
// before the pipeline touches them. Failures come back as plain errors for
// the caller to surface; only rejected uploads are logged.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a validator. A nil logger falls back to the
// default logger.
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateWorkbookFile checks that a file on disk is a readable Excel
// workbook before the parser opens it. Beyond the name checks this reads the
// leading bytes and verifies the ZIP or OLE signature, so a renamed CSV fails
// with a clear message instead of a confusing archive error.
func (v *FileValidator) ValidateWorkbookFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("workbook %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a workbook", path)
	}

	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if err := checkWorkbookName(base, ext); err != nil {
		return err
	}

	header, err := readFileHeader(path, len(oleSignature))
	if err != nil {
		return fmt.Errorf("failed to read workbook header %s: %w", path, err)
	}
	return checkWorkbookSignature(base, ext, header)
}

// ValidateWorkbookUpload checks an uploaded workbook before its bytes reach
// the parser. It rejects bad names, empty or oversized payloads and content
// that does not match the extension.
func (v *FileValidator) ValidateWorkbookUpload(filename string, size, maxBytes int64, header []byte) error {
	base := filepath.Base(filename)
	if err := checkUpload(base, size, maxBytes, header); err != nil {
		v.logger.Warn("rejected workbook upload",
			slog.String("filename", base),
			slog.Int64("size_bytes", size),
			slog.String("reason", err.Error()))
		return err
	}
	return nil
}

// ValidateOutputDirectory ensures the report target exists and is writable,
// so a run fails up front rather than after the aggregation work is done.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".writecheck")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	os.Remove(probe)
	return nil
}

func checkUpload(base string, size, maxBytes int64, header []byte) error {
	ext := strings.ToLower(filepath.Ext(base))
	if err := checkWorkbookName(base, ext); err != nil {
		return err
	}

	if size <= 0 {
		return fmt.Errorf("file %s is empty", base)
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("file %s exceeds the %d byte upload limit", base, maxBytes)
	}

	return checkWorkbookSignature(base, ext, header)
}

// checkWorkbookName rejects non-workbook extensions and Office lock files.
func checkWorkbookName(base, ext string) error {
	if strings.HasPrefix(base, "~$") {
		return fmt.Errorf("file %s is a temporary Excel file", base)
	}
	if ext != ".xlsx" && ext != ".xls" {
		return fmt.Errorf("file %s is not an Excel workbook (extension: %s)", base, ext)
	}
	return nil
}

// checkWorkbookSignature matches the leading bytes against the signature the
// extension promises.
func checkWorkbookSignature(base, ext string, header []byte) error {
	var ok bool
	switch ext {
	case ".xlsx":
		ok = bytes.HasPrefix(header, zipSignature)
	case ".xls":
		ok = bytes.HasPrefix(header, oleSignature)
	}

	if !ok {
		return fmt.Errorf("file %s does not contain %s workbook content", base, ext)
	}
	return nil
}

// readFileHeader reads up to n leading bytes of a file.
func readFileHeader(path string, n int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := make([]byte, n)
	read, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return header[:read], nil
}
