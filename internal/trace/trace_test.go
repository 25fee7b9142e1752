package trace

import (
	"bufio"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackString(t *testing.T) {
	assert.Equal(t, "RdLeft", RdLeft.String())
	assert.Equal(t, "Gemm", Gemm.String())
	assert.Equal(t, 5, NumTracks)
}

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	desc := Packet{Kind: KindTrackDescriptor, Descriptor: &TrackDescriptor{
		UUID:       7,
		HasParent:  true,
		ParentUUID: 3,
		StaticName: "xpu0",
	}}
	require.NoError(t, writePacket(w, desc))

	for _, p := range MkTimeSlice(1, 42, "gemm", 10, 15) {
		require.NoError(t, writePacket(w, p))
	}
	require.NoError(t, w.Flush())

	r := bufio.NewReader(&buf)

	got, err := readPacket(r)
	require.NoError(t, err)
	require.Equal(t, KindTrackDescriptor, got.Kind)
	assert.Equal(t, uint64(7), got.Descriptor.UUID)
	assert.True(t, got.Descriptor.HasParent)
	assert.Equal(t, uint64(3), got.Descriptor.ParentUUID)
	assert.Equal(t, "xpu0", got.Descriptor.StaticName)

	begin, err := readPacket(r)
	require.NoError(t, err)
	require.Equal(t, KindTrackEvent, begin.Kind)
	assert.Equal(t, SliceBegin, begin.Event.Type)
	assert.Equal(t, uint64(10), begin.Event.Timestamp)
	assert.Equal(t, "gemm", begin.Event.Name)

	end, err := readPacket(r)
	require.NoError(t, err)
	assert.Equal(t, SliceEnd, end.Event.Type)
	assert.Equal(t, uint64(15), end.Event.Timestamp)
}

func TestBuildTrackTreeAssignsDistinctUUIDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, CleanTraceDir(dir))

	tracks, err := BuildTrackTree(dir, "xpu", 3)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	seen := map[uint64]bool{}
	for _, tile := range tracks {
		assert.False(t, seen[tile.ThreadUUID])
		seen[tile.ThreadUUID] = true
		for _, c := range tile.Child {
			assert.False(t, seen[c])
			seen[c] = true
		}
	}

	assert.FileExists(t, filepath.Join(dir, "header_0_.perfetto"))
}

func TestWriterEmitsSliceFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 0, 1)
	require.NoError(t, err)
	require.NoError(t, w.EmitSlice(99, "rd_left", 1, 2))
	require.NoError(t, w.Close())

	assert.FileExists(t, filepath.Join(dir, "gemm0.perfetto"))
}
