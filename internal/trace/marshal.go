package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned when a length-delimited packet cannot be fully
// read from the stream.
var ErrTruncated = errors.New("trace: truncated packet")

// writePacket encodes one Packet field-at-a-time as a varint-length-prefixed
// payload, with a frame length up front so packets can be read back one at a
// time without knowing the full file size ahead of time — the one piece of
// real Perfetto's length-delimited proto wire format this module borrows.
func writePacket(w *bufio.Writer, p Packet) error {
	payload := marshalPayload(p)

	lenBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(lenBuf, uint64(len(payload)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func marshalPayload(p Packet) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(p.Kind))

	switch p.Kind {
	case KindTrackDescriptor:
		d := p.Descriptor
		buf = appendUvarint(buf, d.UUID)
		if d.HasParent {
			buf = append(buf, 1)
			buf = appendUvarint(buf, d.ParentUUID)
		} else {
			buf = append(buf, 0)
		}
		buf = appendString(buf, d.StaticName)
	case KindTrackEvent:
		e := p.Event
		buf = appendUvarint(buf, e.Timestamp)
		var seqBuf [4]byte
		binary.LittleEndian.PutUint32(seqBuf[:], e.TrustedPacketSequenceID)
		buf = append(buf, seqBuf[:]...)
		buf = appendUvarint(buf, e.TrackUUID)
		buf = append(buf, byte(e.Type))
		buf = appendString(buf, e.Name)
	}
	return buf
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// readPacket decodes one length-delimited Packet from r. It returns io.EOF
// (unwrapped) when the stream ends cleanly between packets.
func readPacket(r *bufio.Reader) (Packet, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return Packet{}, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, ErrTruncated
	}
	return unmarshalPayload(payload)
}

func unmarshalPayload(payload []byte) (Packet, error) {
	if len(payload) < 1 {
		return Packet{}, ErrTruncated
	}
	kind := PacketKind(payload[0])
	rest := payload[1:]

	switch kind {
	case KindTrackDescriptor:
		uuid, rest, err := readUvarint(rest)
		if err != nil {
			return Packet{}, err
		}
		if len(rest) < 1 {
			return Packet{}, ErrTruncated
		}
		hasParent := rest[0] == 1
		rest = rest[1:]
		var parentUUID uint64
		if hasParent {
			parentUUID, rest, err = readUvarint(rest)
			if err != nil {
				return Packet{}, err
			}
		}
		name, _, err := readString(rest)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Kind: KindTrackDescriptor, Descriptor: &TrackDescriptor{
			UUID:       uuid,
			HasParent:  hasParent,
			ParentUUID: parentUUID,
			StaticName: name,
		}}, nil
	case KindTrackEvent:
		ts, rest, err := readUvarint(rest)
		if err != nil {
			return Packet{}, err
		}
		if len(rest) < 4 {
			return Packet{}, ErrTruncated
		}
		seqID := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		trackUUID, rest, err := readUvarint(rest)
		if err != nil {
			return Packet{}, err
		}
		if len(rest) < 1 {
			return Packet{}, ErrTruncated
		}
		typ := EventType(rest[0])
		rest = rest[1:]
		name, _, err := readString(rest)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Kind: KindTrackEvent, Event: &TrackEvent{
			Timestamp:               ts,
			TrustedPacketSequenceID: seqID,
			TrackUUID:               trackUUID,
			Type:                    typ,
			Name:                    name,
		}}, nil
	default:
		return Packet{}, errors.New("trace: unknown packet kind")
	}
}

func readUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, ErrTruncated
	}
	return v, b[n:], nil
}

func readString(b []byte) (string, []byte, error) {
	length, rest, err := readUvarint(b)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < length {
		return "", nil, ErrTruncated
	}
	return string(rest[:length]), rest[length:], nil
}
