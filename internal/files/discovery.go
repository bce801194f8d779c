package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one discovered file.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// IsWorkbookName reports whether a filename looks like a task workbook
// rather than an Office lock file or an unrelated format. Lock files
// ("~$Team Tasks.xlsx") appear whenever the workbook is open in Excel and
// must never reach the parser.
func IsWorkbookName(name string) bool {
	if strings.HasPrefix(name, "~$") {
		return false
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls")
}

// ListWorkbooks returns the workbooks in dir sorted oldest first. A missing
// directory yields an empty list, not an error: the uploads directory is
// created lazily on the first upload.
func ListWorkbooks(dir string) ([]FileInfo, error) {
	return listMatching(dir, IsWorkbookName)
}

// ListCSVReports returns the .csv files in dir sorted oldest first.
func ListCSVReports(dir string) ([]FileInfo, error) {
	return listMatching(dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".csv")
	})
}

// LatestWorkbook returns the most recently modified workbook in dir. The
// boolean is false when the directory holds no workbooks.
func LatestWorkbook(dir string) (FileInfo, bool, error) {
	books, err := ListWorkbooks(dir)
	if err != nil || len(books) == 0 {
		return FileInfo{}, false, err
	}
	return books[len(books)-1], true, nil
}

func listMatching(dir string, keep func(name string) bool) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var found []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !keep(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info, likely an
			// upload being replaced.
			continue
		}
		found = append(found, FileInfo{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].ModTime.Before(found[j].ModTime)
	})
	return found, nil
}
