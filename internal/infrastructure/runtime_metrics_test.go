package infrastructure

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSampler(t *testing.T, interval time.Duration) *RuntimeSampler {
	t.Helper()

	providers := initTestOTel(t, quietOTelConfig())
	sampler, err := NewRuntimeSampler(providers.Meter, interval)
	require.NoError(t, err)
	return sampler
}

func TestRuntimeSampler_Collect(t *testing.T) {
	sampler := newTestSampler(t, time.Second)
	ctx := context.Background()

	stats := sampler.Collect(ctx)
	assert.Positive(t, stats.Goroutines)
	assert.Positive(t, stats.HeapBytes)
	assert.Positive(t, stats.SysBytes)
	assert.GreaterOrEqual(t, stats.Uptime, time.Duration(0))

	t.Run("gc cycles are published once", func(t *testing.T) {
		runtime.GC()
		first := sampler.Collect(ctx)
		second := sampler.Collect(ctx)

		assert.Positive(t, first.GCCycles)
		assert.GreaterOrEqual(t, second.GCCycles, first.GCCycles)
		assert.Equal(t, second.GCCycles, sampler.lastGCCount,
			"the sampler must not re-publish cycles it has seen")
	})
}

func TestRuntimeSampler_StopEndsTheLoop(t *testing.T) {
	sampler := newTestSampler(t, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sampler.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sampler.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler kept running after Stop")
	}
}

func TestRuntimeSampler_ContextCancelEndsTheLoop(t *testing.T) {
	sampler := newTestSampler(t, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sampler.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler kept running after context cancel")
	}
}
