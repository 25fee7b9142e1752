package xpusim

import (
	"sync/atomic"
	"time"

	"github.com/xpusim/xpusim/internal/interfaces"
)

// CycleBuckets defines the Gemm-slice-duration histogram buckets, in
// cycles. Buckets scale with the kind of tile sizes a scenario realistically
// configures (single-digit buf_size/osize up to a few hundred).
var CycleBuckets = []uint64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024}

const numCycleBuckets = 11

// Metrics tracks simulation-wide event counts and a Gemm-slice-duration
// histogram. All fields are lock-free atomics so tile goroutines in the
// parallel run flavor can update them without contention.
type Metrics struct {
	RdLeftEvents  atomic.Uint64
	RdUpEvents    atomic.Uint64
	WrRightEvents atomic.Uint64
	WrDownEvents  atomic.Uint64
	GemmEvents    atomic.Uint64

	ChannelsClosed atomic.Uint64

	TotalGemmCycles  atomic.Uint64
	GemmCycleBuckets [numCycleBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSlice records one emitted Track slice by kind.
func (m *Metrics) RecordSlice(kind string) {
	switch kind {
	case "RdLeft":
		m.RdLeftEvents.Add(1)
	case "RdUp":
		m.RdUpEvents.Add(1)
	case "WrRight":
		m.WrRightEvents.Add(1)
	case "WrDown":
		m.WrDownEvents.Add(1)
	case "Gemm":
		m.GemmEvents.Add(1)
	}
}

// RecordGemm records one matmul firing of the given cycle duration.
func (m *Metrics) RecordGemm(cycles uint64) {
	m.GemmEvents.Add(1)
	m.TotalGemmCycles.Add(cycles)
	for i, bucket := range CycleBuckets {
		if cycles <= bucket {
			m.GemmCycleBuckets[i].Add(1)
		}
	}
}

// RecordChannelClosed records one channel endpoint transitioning to Closed.
func (m *Metrics) RecordChannelClosed() {
	m.ChannelsClosed.Add(1)
}

// Stop marks the run as finished.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics suitable for reporting.
type MetricsSnapshot struct {
	RdLeftEvents, RdUpEvents, WrRightEvents, WrDownEvents, GemmEvents uint64
	ChannelsClosed                                                    uint64
	TotalGemmCycles                                                   uint64
	AvgGemmCycles                                                     float64
	GemmCycleHistogram                                                [numCycleBuckets]uint64
	WallClockNs                                                       uint64
}

// Snapshot takes a point-in-time copy of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RdLeftEvents:    m.RdLeftEvents.Load(),
		RdUpEvents:      m.RdUpEvents.Load(),
		WrRightEvents:   m.WrRightEvents.Load(),
		WrDownEvents:    m.WrDownEvents.Load(),
		GemmEvents:      m.GemmEvents.Load(),
		ChannelsClosed:  m.ChannelsClosed.Load(),
		TotalGemmCycles: m.TotalGemmCycles.Load(),
	}
	if snap.GemmEvents > 0 {
		snap.AvgGemmCycles = float64(snap.TotalGemmCycles) / float64(snap.GemmEvents)
	}
	for i := 0; i < numCycleBuckets; i++ {
		snap.GemmCycleHistogram[i] = m.GemmCycleBuckets[i].Load()
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.WallClockNs = uint64(stop - start)
	} else {
		snap.WallClockNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// Reset zeroes all counters and restarts StartTime. Useful between test runs.
func (m *Metrics) Reset() {
	m.RdLeftEvents.Store(0)
	m.RdUpEvents.Store(0)
	m.WrRightEvents.Store(0)
	m.WrDownEvents.Store(0)
	m.GemmEvents.Store(0)
	m.ChannelsClosed.Store(0)
	m.TotalGemmCycles.Store(0)
	for i := 0; i < numCycleBuckets; i++ {
		m.GemmCycleBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver implements interfaces.Observer by discarding every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSlice(string, uint32, uint64) {}
func (NoOpObserver) ObserveMatmul(uint64)                {}
func (NoOpObserver) ObserveChannelClosed(string)         {}

// MetricsObserver implements interfaces.Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSlice(kind string, _ uint32, _ uint64) {
	o.metrics.RecordSlice(kind)
}

func (o *MetricsObserver) ObserveMatmul(cycles uint64) {
	o.metrics.RecordGemm(cycles)
}

func (o *MetricsObserver) ObserveChannelClosed(string) {
	o.metrics.RecordChannelClosed()
}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
