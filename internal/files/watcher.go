package files

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultSettleDelay is how long a workbook's size and mtime must hold
// still before a change is reported.
const defaultSettleDelay = 500 * time.Millisecond

// WatchEventType represents the kind of workbook change observed
type WatchEventType int

const (
	// WatchSettled is emitted when a new or changed workbook has finished
	// being written
	WatchSettled WatchEventType = iota
	// WatchRemoved is emitted when a workbook is deleted or renamed away
	WatchRemoved
)

// String returns the string representation of the event type
func (t WatchEventType) String() string {
	switch t {
	case WatchSettled:
		return "settled"
	case WatchRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// WatchEvent describes a settled change to a workbook in the watched directory
type WatchEvent struct {
	Type    WatchEventType
	Path    string
	Size    int64
	ModTime time.Time
}

// Watcher monitors a single directory for workbook changes. Editors and
// uploads write workbooks in several chunks, so raw filesystem events fire
// long before a file is complete; each change is held until the file's size
// and mtime stop moving for a full settle delay. Lock files and non-workbook
// files never produce events.
type Watcher struct {
	dir         string
	settleDelay time.Duration
	fsw         *fsnotify.Watcher

	pending map[string]*settlingFile // path -> in-flight settle state
	mu      sync.Mutex               // protects pending map

	events chan WatchEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// settlingFile tracks a workbook that may still be changing
type settlingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// NewWatcher creates a watcher for the given directory. A settleDelay of
// zero or less selects the default.
func NewWatcher(dir string, settleDelay time.Duration) (*Watcher, error) {
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir = filepath.Clean(dir)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	slog.Debug("watching workbook directory",
		slog.String("dir", dir),
		slog.Duration("settle_delay", settleDelay))

	return &Watcher{
		dir:         dir,
		settleDelay: settleDelay,
		fsw:         fsw,
		pending:     make(map[string]*settlingFile),
		events:      make(chan WatchEvent, 16),
		errors:      make(chan error, 4),
		done:        make(chan struct{}),
	}, nil
}

// Start processes filesystem events. It blocks until the context is
// cancelled; run it in its own goroutine and consume Events.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	go w.processEvents(ctx)

	<-ctx.Done()
	return nil
}

// processEvents drains fsnotify events until shutdown
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// handleEvent routes a raw fsnotify event, filtering out everything that
// is not a workbook
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if !IsWorkbookName(filepath.Base(path)) {
		return
	}

	// A rename away from the watched name behaves like a removal
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.cancelPending(path)
		w.emit(WatchEvent{
			Type: WatchRemoved,
			Path: path,
		})
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		w.startSettling(path)
	}
}

// startSettling begins or restarts the settle clock for a workbook
func (w *Watcher) startSettling(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Cancel existing timer if any
	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("failed to stat changed workbook",
			slog.String("path", path),
			slog.String("error", err.Error()))
		delete(w.pending, path)
		return
	}
	if info.IsDir() {
		return
	}

	pending := &settlingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	pending.timer = time.AfterFunc(w.settleDelay, func() {
		w.checkSettled(path)
	})
	w.pending[path] = pending
}

// checkSettled fires when the settle clock elapses and decides whether the
// workbook is done changing
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, exists := w.pending[path]
	if !exists {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Deleted mid-settle
		delete(w.pending, path)
		w.emit(WatchEvent{
			Type: WatchRemoved,
			Path: path,
		})
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		// Still being written, restart the clock
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(w.settleDelay, func() {
			w.checkSettled(path)
		})
		return
	}

	delete(w.pending, path)

	slog.Debug("workbook settled",
		slog.String("path", path),
		slog.Int64("size_bytes", info.Size()))

	w.emit(WatchEvent{
		Type:    WatchSettled,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// cancelPending drops any in-flight settle state for a path
func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
		delete(w.pending, path)
	}
}

// emit sends an event unless the watcher is shutting down
func (w *Watcher) emit(event WatchEvent) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

// Events returns the channel of settled workbook changes
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Errors returns the channel of watcher errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources. The event channels are
// left open; a consumer selecting on them must also watch its own context.
// A settle timer may still be running when Stop returns, but it finds its
// pending entry gone and emits nothing.
func (w *Watcher) Stop() error {
	close(w.done)

	// Cancel all pending timers
	w.mu.Lock()
	for _, pending := range w.pending {
		pending.timer.Stop()
	}
	clear(w.pending)
	w.mu.Unlock()

	w.fsw.Close()
	w.wg.Wait()

	return nil
}
