package trace

// EventType mirrors the begin/end pairing a slice event carries.
type EventType uint8

const (
	SliceBegin EventType = iota
	SliceEnd
)

// TrackDescriptor names one node of the process -> thread -> child track
// hierarchy.
type TrackDescriptor struct {
	UUID       uint64
	ParentUUID uint64
	HasParent  bool
	StaticName string
}

// TrackEvent is a single begin or end marker on a track.
type TrackEvent struct {
	Timestamp               uint64
	TrustedPacketSequenceID uint32
	TrackUUID               uint64
	Type                     EventType
	Name                     string
}

// PacketKind tags which of the two packet shapes a Packet carries.
type PacketKind uint8

const (
	KindTrackDescriptor PacketKind = iota
	KindTrackEvent
)

// Packet is the length-delimited unit this module's trace files are made
// of. The real visualization front-end speaks actual Perfetto protobuf;
// that wire format is out of scope here — this package only needs to
// uphold the packet-kind/ordering contract the front-end is described as
// consuming, not byte-for-byte compatibility with upstream Perfetto.
type Packet struct {
	Kind       PacketKind
	Descriptor *TrackDescriptor
	Event      *TrackEvent
}

// MkTimeSlice builds the begin/end packet pair for one emitted event.
func MkTimeSlice(seqID uint32, trackUUID uint64, name string, begin, end uint64) [2]Packet {
	return [2]Packet{
		{Kind: KindTrackEvent, Event: &TrackEvent{
			Timestamp:               begin,
			TrustedPacketSequenceID: seqID,
			TrackUUID:               trackUUID,
			Type:                    SliceBegin,
			Name:                    name,
		}},
		{Kind: KindTrackEvent, Event: &TrackEvent{
			Timestamp:               end,
			TrustedPacketSequenceID: seqID,
			TrackUUID:               trackUUID,
			Type:                    SliceEnd,
			Name:                    name,
		}},
	}
}
