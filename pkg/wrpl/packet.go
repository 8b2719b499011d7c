package wrpl

import (
	"encoding/binary"
	"errors"
	"strconv"
)

// PacketType identifies the kind of a packet.
type PacketType uint8

// Packet types
const (
	PacketEndMarker        PacketType = 0
	PacketStartMarker      PacketType = 1
	PacketAircraftSmall    PacketType = 2
	PacketChat             PacketType = 3
	PacketMPI              PacketType = 4
	PacketNextSegment      PacketType = 5
	PacketECS              PacketType = 6
	PacketSnapshot         PacketType = 7
	PacketReplayHeaderInfo PacketType = 8
)

// Header flag and widths.
const (
	deltaFlag         = 0x10
	ShortHeaderLen    = 1
	ExplicitHeaderLen = 5
)

// ErrShortHeader is returned for a frame with no bytes at all.
var ErrShortHeader = errors.New("wrpl: empty frame, no packet header")

// Known reports whether t is one of the named packet types.
func (t PacketType) Known() bool {
	return t <= PacketReplayHeaderInfo
}

// String returns a human-readable name, "unknown (N)" for unnamed types.
func (t PacketType) String() string {
	switch t {
	case PacketEndMarker:
		return "end_marker"
	case PacketStartMarker:
		return "start_marker"
	case PacketAircraftSmall:
		return "aircraft_small"
	case PacketChat:
		return "chat"
	case PacketMPI:
		return "mpi"
	case PacketNextSegment:
		return "next_segment"
	case PacketECS:
		return "ecs"
	case PacketSnapshot:
		return "snapshot"
	case PacketReplayHeaderInfo:
		return "replay_header_info"
	default:
		return "unknown (" + strconv.Itoa(int(t)) + ")"
	}
}

// ParsePacketType maps a name produced by String back to its type.
func ParsePacketType(name string) (PacketType, bool) {
	for t := PacketEndMarker; t <= PacketReplayHeaderInfo; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// Header is the decoded start of a frame.
type Header struct {
	Type      PacketType
	Timestamp uint32 // milliseconds
	Len       int    // 1 (delta form) or 5 (explicit form)
	Delta     bool   // timestamp omitted, previous one reused
	Truncated bool   // explicit form with fewer than 4 timestamp bytes
}

// DecodeHeader decodes the packet header at the cursor.
//
// With bit 0x10 set the type is byte0^0x10 and the previous timestamp
// carries over. Otherwise byte0 is the type and 4 little-endian timestamp
// bytes follow. A timestamp cut short by the end of the frame falls back
// to last and is flagged Truncated; only an empty frame is an error.
func DecodeHeader(c *Cursor, last uint32) (Header, error) {
	b0, ok := c.ReadUint8()
	if !ok {
		return Header{}, ErrShortHeader
	}

	h := Header{Timestamp: last, Len: ShortHeaderLen}
	if b0&deltaFlag != 0 {
		h.Type = PacketType(b0 ^ deltaFlag)
		h.Delta = true
		return h, nil
	}

	h.Type = PacketType(b0)
	ts := c.Read(4)
	if len(ts) < 4 {
		h.Truncated = true
		return h, nil
	}
	h.Timestamp = binary.LittleEndian.Uint32(ts)
	h.Len = ExplicitHeaderLen
	return h, nil
}
