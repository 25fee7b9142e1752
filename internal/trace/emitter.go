package trace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TileTracks holds the per-tile UUIDs assigned to each of the five child
// tracks, as returned by BuildTrackTree for one thread.
type TileTracks struct {
	ThreadUUID uint64
	Child      [NumTracks]uint64
}

func newUUID() uint64 {
	id := uuid.New()
	lo := uint64(0)
	for _, b := range id[8:16] {
		lo = lo<<8 | uint64(b)
	}
	return lo
}

// CleanTraceDir removes and recreates dir: a stale trace file from a prior
// run must never be mistaken for the current one.
func CleanTraceDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("trace: clean dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("trace: create dir: %w", err)
	}
	return nil
}

// BuildTrackTree writes the process -> thread -> 5 children descriptor
// hierarchy to header_0_.perfetto under dir, one thread per tile ID in
// [0, numTiles). It returns the per-tile track UUIDs callers need to tag
// their TrackEvents with.
func BuildTrackTree(dir, processName string, numTiles int) ([]TileTracks, error) {
	path := filepath.Join(dir, "header_0_.perfetto")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: create header file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	processUUID := newUUID()
	if err := writePacket(w, Packet{Kind: KindTrackDescriptor, Descriptor: &TrackDescriptor{
		UUID:       processUUID,
		StaticName: processName,
	}}); err != nil {
		return nil, err
	}

	tracks := make([]TileTracks, numTiles)
	for i := 0; i < numTiles; i++ {
		threadUUID := newUUID()
		if err := writePacket(w, Packet{Kind: KindTrackDescriptor, Descriptor: &TrackDescriptor{
			UUID:       threadUUID,
			HasParent:  true,
			ParentUUID: processUUID,
			StaticName: fmt.Sprintf("%s%d", processName, i),
		}}); err != nil {
			return nil, err
		}

		var children [NumTracks]uint64
		for c := 0; c < NumTracks; c++ {
			childUUID := newUUID()
			if err := writePacket(w, Packet{Kind: KindTrackDescriptor, Descriptor: &TrackDescriptor{
				UUID:       childUUID,
				HasParent:  true,
				ParentUUID: threadUUID,
				StaticName: fmt.Sprintf("child%d", c),
			}}); err != nil {
				return nil, err
			}
			children[c] = childUUID
		}

		tracks[i] = TileTracks{ThreadUUID: threadUUID, Child: children}
	}

	return tracks, w.Flush()
}

// Writer streams begin/end slice pairs for one tile's trace file
// (gemm{id}.perfetto). A Writer is not safe for concurrent use; each tile
// owns exactly one.
type Writer struct {
	f     *os.File
	w     *bufio.Writer
	seqID uint32
}

// NewWriter opens gemm{id}.perfetto under dir for streaming writes.
func NewWriter(dir string, id int, seqID uint32) (*Writer, error) {
	path := filepath.Join(dir, fmt.Sprintf("gemm%d.perfetto", id))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: create tile trace file: %w", err)
	}
	return &Writer{f: f, w: bufio.NewWriter(f), seqID: seqID}, nil
}

// EmitSlice writes a begin/end packet pair for one completed phase, tagged
// with the track UUID the phase's Track enumerator was assigned.
func (tw *Writer) EmitSlice(trackUUID uint64, name string, begin, end uint64) error {
	for _, p := range MkTimeSlice(tw.seqID, trackUUID, name, begin, end) {
		if err := writePacket(tw.w, p); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes buffered packets and closes the underlying file.
func (tw *Writer) Close() error {
	if err := tw.w.Flush(); err != nil {
		tw.f.Close()
		return err
	}
	return tw.f.Close()
}
