package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestLogger(t *testing.T) {
	logger, buf := NewTestLogger(t)

	logger.Info("workbook loaded", slog.String("source", "tasks.xlsx"))
	logger.Error("load failed", slog.Int("row", 17))

	records := buf.GetRecords()
	require.Len(t, records, 2)

	assert.Equal(t, "workbook loaded", records[0].Message)
	assert.Equal(t, slog.LevelInfo, records[0].Level)
	assert.Equal(t, "tasks.xlsx", records[0].Attrs["source"])
	assert.False(t, records[0].Time.IsZero())

	assert.Equal(t, slog.LevelError, records[1].Level)
	// slog carries integer attrs as int64
	assert.Equal(t, int64(17), records[1].Attrs["row"])

	assert.True(t, buf.ContainsMessage("workbook"))
	assert.True(t, buf.ContainsAttr("source", "tasks.xlsx"))
	assert.False(t, buf.ContainsAttr("source", "other.xlsx"))
}

func TestGetRecordsByLevel(t *testing.T) {
	logger, buf := NewTestLogger(t)

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	// Debug lands too, the buffer captures below the default slog level
	require.Equal(t, 4, buf.Count())
	assert.Len(t, buf.GetRecordsByLevel(slog.LevelDebug), 1)
	assert.Len(t, buf.GetRecordsByLevel(slog.LevelInfo), 1)
	assert.Len(t, buf.GetRecordsByLevel(slog.LevelWarn), 1)
	assert.Len(t, buf.GetRecordsByLevel(slog.LevelError), 1)
}

func TestClearResetsBuffer(t *testing.T) {
	logger, buf := NewTestLogger(t)

	logger.Info("first")
	logger.Info("second")
	require.Equal(t, 2, buf.Count())

	buf.Clear()
	assert.Equal(t, 0, buf.Count())

	logger.Info("after clear")
	assert.Equal(t, 1, buf.Count())
	assert.True(t, buf.ContainsMessage("after clear"))
}

func TestDerivedLoggerAttrs(t *testing.T) {
	t.Run("bound attrs reach every record", func(t *testing.T) {
		logger, buf := NewTestLogger(t)

		bound := logger.With(slog.String("component", "watcher"))
		bound.Info("reload started")
		bound.Info("reload finished")

		records := buf.GetRecords()
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Equal(t, "watcher", r.Attrs["component"])
		}
	})

	t.Run("groups qualify record attrs", func(t *testing.T) {
		logger, buf := NewTestLogger(t)

		logger.WithGroup("req").Info("handled", slog.String("method", "GET"))

		records := buf.GetRecords()
		require.Len(t, records, 1)
		assert.Equal(t, "GET", records[0].Attrs["req.method"])
	})

	t.Run("attrs bound before a group stay unqualified", func(t *testing.T) {
		logger, buf := NewTestLogger(t)

		logger.With(slog.String("trace_id", "abc")).
			WithGroup("req").
			Info("handled", slog.String("path", "/api/leaderboard"))

		records := buf.GetRecords()
		require.Len(t, records, 1)
		assert.Equal(t, "abc", records[0].Attrs["trace_id"])
		assert.Equal(t, "/api/leaderboard", records[0].Attrs["req.path"])
	})

	t.Run("attrs bound inside a group take its path", func(t *testing.T) {
		logger, buf := NewTestLogger(t)

		logger.WithGroup("req").With(slog.String("id", "r1")).Info("handled")

		records := buf.GetRecords()
		require.Len(t, records, 1)
		assert.Equal(t, "r1", records[0].Attrs["req.id"])
	})

	t.Run("nested groups join with dots", func(t *testing.T) {
		logger, buf := NewTestLogger(t)

		logger.WithGroup("req").WithGroup("header").Info("handled", slog.String("accept", "text/csv"))

		records := buf.GetRecords()
		require.Len(t, records, 1)
		assert.Equal(t, "text/csv", records[0].Attrs["req.header.accept"])
	})
}

func TestAssertHelpers(t *testing.T) {
	logger, buf := NewTestLogger(t)

	logger.Info("snapshot ready", slog.String("component", "dashboard"))
	logger.Warn("retrying upload", slog.Int("attempt", 3))

	AssertLogContains(t, buf, slog.LevelInfo, "snapshot")
	AssertLogContains(t, buf, slog.LevelWarn, "retrying")
	AssertLogAttr(t, buf, "component", "dashboard")
	AssertLogAttr(t, buf, "attempt", int64(3))
}

func TestConcurrentLogging(t *testing.T) {
	logger, buf := NewTestLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent write", slog.Int("goroutine", n))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 10, buf.Count())
	for i := 0; i < 10; i++ {
		assert.True(t, buf.ContainsAttr("goroutine", int64(i)))
	}
}
