package xpusim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordSlice(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.RdLeftEvents+snap.GemmEvents)

	m.RecordSlice("RdLeft")
	m.RecordSlice("RdLeft")
	m.RecordSlice("RdUp")
	m.RecordSlice("WrRight")
	m.RecordSlice("WrDown")

	snap = m.Snapshot()
	assert.Equal(t, uint64(2), snap.RdLeftEvents)
	assert.Equal(t, uint64(1), snap.RdUpEvents)
	assert.Equal(t, uint64(1), snap.WrRightEvents)
	assert.Equal(t, uint64(1), snap.WrDownEvents)
}

func TestMetricsRecordGemm(t *testing.T) {
	m := NewMetrics()

	m.RecordGemm(5)
	m.RecordGemm(5)
	m.RecordGemm(20)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.GemmEvents)
	assert.Equal(t, uint64(30), snap.TotalGemmCycles)
	assert.InDelta(t, 10.0, snap.AvgGemmCycles, 0.01)
}

func TestMetricsRecordChannelClosed(t *testing.T) {
	m := NewMetrics()
	m.RecordChannelClosed()
	m.RecordChannelClosed()

	assert.Equal(t, uint64(2), m.Snapshot().ChannelsClosed)
}

func TestMetricsWallClock(t *testing.T) {
	m := NewMetrics()
	time.Sleep(5 * time.Millisecond)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.WallClockNs, uint64(5*time.Millisecond))

	m.Stop()
	stopped := m.Snapshot()
	time.Sleep(5 * time.Millisecond)
	afterStop := m.Snapshot()
	assert.InDelta(t, float64(stopped.WallClockNs), float64(afterStop.WallClockNs), float64(2*time.Millisecond))
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordSlice("Gemm")
	m.RecordGemm(10)
	m.RecordChannelClosed()

	require := assert.New(t)
	require.NotZero(m.Snapshot().GemmEvents)

	m.Reset()
	snap := m.Snapshot()
	require.Zero(snap.GemmEvents)
	require.Zero(snap.TotalGemmCycles)
	require.Zero(snap.ChannelsClosed)
}

func TestObservers(t *testing.T) {
	noop := NoOpObserver{}
	noop.ObserveSlice("Gemm", 0, 1)
	noop.ObserveMatmul(1)
	noop.ObserveChannelClosed("left")

	m := NewMetrics()
	observer := NewMetricsObserver(m)
	observer.ObserveSlice("RdLeft", 0, 1)
	observer.ObserveMatmul(7)
	observer.ObserveChannelClosed("right")

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RdLeftEvents)
	assert.Equal(t, uint64(1), snap.GemmEvents)
	assert.Equal(t, uint64(7), snap.TotalGemmCycles)
	assert.Equal(t, uint64(1), snap.ChannelsClosed)
}
