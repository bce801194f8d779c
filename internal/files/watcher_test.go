package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewWatcher(tmpDir, 0)
	require.NoError(t, err)
	require.NotNil(t, watcher)
	assert.Equal(t, defaultSettleDelay, watcher.settleDelay)

	err = watcher.Stop()
	assert.NoError(t, err)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher("/non/existent/directory", 0)
	assert.Error(t, err)
}

func TestWatcher_SettledEvent(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewWatcher(tmpDir, 50*time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	workbook := filepath.Join(tmpDir, "tasks.xlsx")
	content := []byte("workbook bytes")
	require.NoError(t, os.WriteFile(workbook, content, 0644))

	select {
	case event := <-watcher.Events():
		assert.Equal(t, WatchSettled, event.Type)
		assert.Equal(t, workbook, event.Path)
		assert.Equal(t, int64(len(content)), event.Size)
		assert.False(t, event.ModTime.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for settled event")
	}
}

func TestWatcher_IgnoresNonWorkbooks(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewWatcher(tmpDir, 50*time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	// Ignored files first, then a real workbook. If the ignored files
	// leaked through, their events would arrive before the workbook's.
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("notes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "~$tasks.xlsx"), []byte("lock"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "normalized.csv"), []byte("a,b"), 0644))

	workbook := filepath.Join(tmpDir, "tasks.xlsx")
	require.NoError(t, os.WriteFile(workbook, []byte("workbook bytes"), 0644))

	select {
	case event := <-watcher.Events():
		assert.Equal(t, WatchSettled, event.Type)
		assert.Equal(t, workbook, event.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for settled event")
	}
}

func TestWatcher_RapidWritesSettleOnce(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewWatcher(tmpDir, 150*time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	// Back to back writes simulate a chunked upload; only the final state
	// should be reported.
	workbook := filepath.Join(tmpDir, "tasks.xlsx")
	require.NoError(t, os.WriteFile(workbook, []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(workbook, []byte("full workbook bytes"), 0644))

	select {
	case event := <-watcher.Events():
		assert.Equal(t, WatchSettled, event.Type)
		assert.Equal(t, workbook, event.Path)
		assert.Equal(t, int64(len("full workbook bytes")), event.Size)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for settled event")
	}

	select {
	case event := <-watcher.Events():
		t.Fatalf("unexpected second event: %v %s", event.Type, event.Path)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_RemoveEmitsRemoved(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewWatcher(tmpDir, 50*time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	workbook := filepath.Join(tmpDir, "tasks.xlsx")
	require.NoError(t, os.WriteFile(workbook, []byte("workbook bytes"), 0644))

	select {
	case event := <-watcher.Events():
		require.Equal(t, WatchSettled, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for settled event")
	}

	require.NoError(t, os.Remove(workbook))

	select {
	case event := <-watcher.Events():
		assert.Equal(t, WatchRemoved, event.Type)
		assert.Equal(t, workbook, event.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for removed event")
	}
}

func TestWatchEventType_String(t *testing.T) {
	assert.Equal(t, "settled", WatchSettled.String())
	assert.Equal(t, "removed", WatchRemoved.String())
	assert.Equal(t, "unknown", WatchEventType(99).String())
}
