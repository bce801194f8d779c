package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one captured log record
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogBuffer collects every record a test logger emits, so assertions can run
// against messages and attributes instead of parsed output.
type LogBuffer struct {
	mu      sync.Mutex
	records []LogRecord
	t       *testing.T
}

// NewTestLogger returns a logger whose records land in the returned buffer.
// All levels are captured regardless of the default slog level.
func NewTestLogger(t *testing.T) (*slog.Logger, *LogBuffer) {
	buf := &LogBuffer{t: t}
	return slog.New(&bufferHandler{buf: buf}), buf
}

func (b *LogBuffer) append(r LogRecord) {
	b.mu.Lock()
	b.records = append(b.records, r)
	b.mu.Unlock()

	// Echo into the test log so failures show what was captured
	if b.t != nil {
		b.t.Logf("[%s] %s %v", r.Level, r.Message, r.Attrs)
	}
}

// GetRecords returns a copy of all captured records
func (b *LogBuffer) GetRecords() []LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := make([]LogRecord, len(b.records))
	copy(records, b.records)
	return records
}

// GetRecordsByLevel returns the captured records at exactly the given level
func (b *LogBuffer) GetRecordsByLevel(level slog.Level) []LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filtered []LogRecord
	for _, r := range b.records {
		if r.Level == level {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// ContainsMessage reports whether any record's message contains the substring
func (b *LogBuffer) ContainsMessage(message string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.records {
		if strings.Contains(r.Message, message) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any record carries the attribute
func (b *LogBuffer) ContainsAttr(key string, value any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.records {
		if val, ok := r.Attrs[key]; ok && val == value {
			return true
		}
	}
	return false
}

// Clear drops all captured records
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = b.records[:0]
}

// Count returns the number of captured records
func (b *LogBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// bufferHandler feeds records into a shared LogBuffer. WithAttrs and
// WithGroup derive new handlers, so attributes bound via Logger.With land in
// the captured records with the same keys JSON output would use.
type bufferHandler struct {
	buf    *LogBuffer
	attrs  []slog.Attr
	groups []string
}

func (h *bufferHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *bufferHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	h.buf.append(LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Bound attrs take the group path open at binding time
	bound := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	bound = append(bound, h.attrs...)
	for _, a := range attrs {
		bound = append(bound, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &bufferHandler{buf: h.buf, attrs: bound, groups: h.groups}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &bufferHandler{buf: h.buf, attrs: h.attrs, groups: groups}
}

// qualify maps a key to its dotted group path, matching how nested groups
// read in flattened assertions.
func (h *bufferHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// AssertLogContains fails the test unless a record at the level contains the
// message substring.
func AssertLogContains(t *testing.T, buf *LogBuffer, level slog.Level, message string) {
	t.Helper()

	records := buf.GetRecordsByLevel(level)
	for _, r := range records {
		if strings.Contains(r.Message, message) {
			return
		}
	}

	t.Errorf("Expected log message not found at level %s: %q", level, message)
	t.Logf("Captured logs at level %s:", level)
	for _, r := range records {
		t.Logf("  - %s", r.Message)
	}
}

// AssertLogAttr fails the test unless some record carries the attribute
func AssertLogAttr(t *testing.T, buf *LogBuffer, key string, expectedValue any) {
	t.Helper()

	if !buf.ContainsAttr(key, expectedValue) {
		t.Errorf("Expected log attribute not found: %s=%v", key, expectedValue)
		t.Logf("Captured logs:")
		for _, r := range buf.GetRecords() {
			t.Logf("  - %s: %v", r.Message, r.Attrs)
		}
	}
}
