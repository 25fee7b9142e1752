package xpusim

import (
	"sync"

	"github.com/xpusim/xpusim/internal/interfaces"
)

// RecordingObserver implements interfaces.Observer by appending every event
// to an in-memory log, for use in tests that want to assert on exactly
// which slices and matmuls a run produced.
type RecordingObserver struct {
	mu      sync.Mutex
	Slices  []SliceEvent
	Matmuls []uint64
	Closed  []string
}

// SliceEvent is one recorded ObserveSlice call.
type SliceEvent struct {
	Kind     string
	ThreadID uint32
	Cycles   uint64
}

// NewRecordingObserver creates an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (r *RecordingObserver) ObserveSlice(kind string, threadID uint32, cycles uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Slices = append(r.Slices, SliceEvent{Kind: kind, ThreadID: threadID, Cycles: cycles})
}

func (r *RecordingObserver) ObserveMatmul(cycles uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Matmuls = append(r.Matmuls, cycles)
}

func (r *RecordingObserver) ObserveChannelClosed(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = append(r.Closed, endpoint)
}

// CountSlices returns how many times ObserveSlice was called with the given
// kind.
func (r *RecordingObserver) CountSlices(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.Slices {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

var _ interfaces.Observer = (*RecordingObserver)(nil)
