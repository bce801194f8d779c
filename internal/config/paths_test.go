package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetPaths verifies that every path is derived from the executable
// directory, never from the working directory.
func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)
	require.NotNil(t, paths)

	assert.True(t, filepath.IsAbs(paths.ExecutableDir), "ExecutableDir should be absolute")

	exe := paths.ExecutableDir
	data := filepath.Join(exe, "data")

	assert.Equal(t, data, paths.DataDir)
	assert.Equal(t, filepath.Join(data, "uploads"), paths.UploadsDir)
	assert.Equal(t, filepath.Join(data, "reports"), paths.ReportsDir)
	assert.Equal(t, filepath.Join(exe, "logs"), paths.LogsDir)
	assert.Equal(t, filepath.Join(exe, "web"), paths.WebDir)
	assert.Equal(t, filepath.Join(exe, "web", "static"), paths.StaticDir)
	assert.Equal(t, filepath.Join(exe, "credentials.json"), paths.CredentialsFile)

	reports := paths.ReportsDir
	assert.Equal(t, filepath.Join(reports, "normalized.csv"), paths.NormalizedCSV)
	assert.Equal(t, filepath.Join(reports, "member_monthly.csv"), paths.MemberMonthlyCSV)
	assert.Equal(t, filepath.Join(reports, "team_monthly.csv"), paths.TeamMonthlyCSV)
}

func TestGetPaths_Consistent(t *testing.T) {
	first, err := GetPaths()
	require.NoError(t, err)

	second, err := GetPaths()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// testPaths builds a Paths rooted at dir, mirroring the layout GetPaths
// produces next to the executable.
func testPaths(dir string) *Paths {
	data := filepath.Join(dir, "data")
	reports := filepath.Join(data, "reports")
	return &Paths{
		ExecutableDir: dir,
		DataDir:       data,
		UploadsDir:    filepath.Join(data, "uploads"),
		ReportsDir:    reports,
		LogsDir:       filepath.Join(dir, "logs"),
		WebDir:        filepath.Join(dir, "web"),
		StaticDir:     filepath.Join(dir, "web", "static"),

		CredentialsFile: filepath.Join(dir, "credentials.json"),

		NormalizedCSV:    filepath.Join(reports, "normalized.csv"),
		MemberMonthlyCSV: filepath.Join(reports, "member_monthly.csv"),
		TeamMonthlyCSV:   filepath.Join(reports, "team_monthly.csv"),
	}
}

func TestEnsureDirectories(t *testing.T) {
	t.Run("creates full layout", func(t *testing.T) {
		paths := testPaths(t.TempDir())
		require.NoError(t, paths.EnsureDirectories())

		for _, dir := range []string{
			paths.DataDir,
			paths.UploadsDir,
			paths.ReportsDir,
			paths.LogsDir,
			paths.WebDir,
			paths.StaticDir,
		} {
			info, err := os.Stat(dir)
			require.NoError(t, err, "directory %s should exist", dir)
			assert.True(t, info.IsDir(), "%s should be a directory", dir)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		paths := testPaths(t.TempDir())
		require.NoError(t, paths.EnsureDirectories())
		assert.NoError(t, paths.EnsureDirectories())
	})

	t.Run("fails when blocked by a file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), []byte("in the way"), 0644))

		paths := testPaths(dir)
		err := paths.EnsureDirectories()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create directory")
	})
}

func TestPathHelpers(t *testing.T) {
	paths := testPaths(filepath.Join("/opt", "teampulse"))

	assert.Equal(t, filepath.Join("/opt", "teampulse", "data", "uploads", "tasks.xlsx"),
		paths.GetUploadPath("tasks.xlsx"))
	assert.Equal(t, filepath.Join("/opt", "teampulse", "data", "reports", "normalized.csv"),
		paths.GetReportPath("normalized.csv"))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()

	existing := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	assert.True(t, FileExists(existing))
	assert.False(t, FileExists(filepath.Join(dir, "absent.txt")))

	// Directories count as existing too
	assert.True(t, FileExists(dir))
}
