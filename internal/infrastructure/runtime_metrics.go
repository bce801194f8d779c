package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is one sample of the Go runtime counters the sampler
// publishes.
type RuntimeStats struct {
	Goroutines  int
	HeapBytes   uint64
	SysBytes    uint64
	GCCycles    uint32
	LastGCPause time.Duration
	Uptime      time.Duration
}

// RuntimeSampler publishes Go runtime health through the OTel meter on a
// fixed interval, so the Prometheus endpoint carries process state next to
// the pipeline counters.
type RuntimeSampler struct {
	goroutines metric.Int64Gauge
	heapBytes  metric.Int64Gauge
	sysBytes   metric.Int64Gauge
	uptime     metric.Float64Gauge
	gcCycles   metric.Int64Counter
	gcPause    metric.Float64Histogram

	startTime time.Time
	interval  time.Duration
	stop      chan struct{}

	// NumGC at the previous sample, so cycle counts and pauses are
	// recorded once rather than re-published every tick.
	lastGCCount uint32
}

// NewRuntimeSampler creates the runtime instruments on meter. Sampling does
// not start until Start is called.
func NewRuntimeSampler(meter metric.Meter, interval time.Duration) (*RuntimeSampler, error) {
	goroutines, err := meter.Int64Gauge(
		"runtime_goroutines",
		metric.WithDescription("Number of live goroutines"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime instruments: %w", err)
	}

	heapBytes, err := meter.Int64Gauge(
		"runtime_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime instruments: %w", err)
	}

	sysBytes, err := meter.Int64Gauge(
		"runtime_sys_bytes",
		metric.WithDescription("Bytes of memory obtained from the OS"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime instruments: %w", err)
	}

	uptime, err := meter.Float64Gauge(
		"runtime_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime instruments: %w", err)
	}

	gcCycles, err := meter.Int64Counter(
		"runtime_gc_cycles_total",
		metric.WithDescription("Completed garbage collection cycles"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime instruments: %w", err)
	}

	gcPause, err := meter.Float64Histogram(
		"runtime_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause durations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime instruments: %w", err)
	}

	return &RuntimeSampler{
		goroutines: goroutines,
		heapBytes:  heapBytes,
		sysBytes:   sysBytes,
		uptime:     uptime,
		gcCycles:   gcCycles,
		gcPause:    gcPause,
		startTime:  time.Now(),
		interval:   interval,
		stop:       make(chan struct{}),
	}, nil
}

// Collect takes one sample, publishes it and returns the values.
func (rs *RuntimeSampler) Collect(ctx context.Context) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		SysBytes:   mem.Sys,
		GCCycles:   mem.NumGC,
		Uptime:     time.Since(rs.startTime),
	}

	rs.goroutines.Record(ctx, int64(stats.Goroutines))
	rs.heapBytes.Record(ctx, int64(stats.HeapBytes))
	rs.sysBytes.Record(ctx, int64(stats.SysBytes))
	rs.uptime.Record(ctx, stats.Uptime.Seconds())

	// Each pause lands in the histogram once. The runtime keeps the last
	// 256 pauses, which bounds how far a sample can catch up.
	newCycles := mem.NumGC - rs.lastGCCount
	if newCycles > 0 {
		if newCycles > 256 {
			newCycles = 256
		}
		rs.gcCycles.Add(ctx, int64(newCycles))
		for i := mem.NumGC - newCycles + 1; i <= mem.NumGC; i++ {
			pause := time.Duration(mem.PauseNs[(i+255)%256])
			rs.gcPause.Record(ctx, pause.Seconds())
			stats.LastGCPause = pause
		}
		rs.lastGCCount = mem.NumGC
	}

	return stats
}

// Start samples on the configured interval until Stop is called or the
// context ends. The first sample is taken immediately.
func (rs *RuntimeSampler) Start(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	rs.Collect(ctx)

	for {
		select {
		case <-ticker.C:
			rs.Collect(ctx)
		case <-rs.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the sampling loop.
func (rs *RuntimeSampler) Stop() {
	close(rs.stop)
}
