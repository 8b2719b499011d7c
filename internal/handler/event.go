package handler

import (
	"encoding/hex"

	"wrpl-inspect/pkg/wrpl"
)

// Event is the structured form of one diagnostic, as written by the jsonl
// sink and streamed by the parse service.
type Event struct {
	Event   string        `json:"event"` // packet, note or summary
	Packet  *PacketEvent  `json:"packet,omitempty"`
	Note    *NoteEvent    `json:"note,omitempty"`
	Summary *SummaryEvent `json:"summary,omitempty"`
}

type PacketEvent struct {
	Index        int         `json:"index"`
	Offset       int64       `json:"offset"`
	PrefixLen    int         `json:"prefix_len"`
	DeclaredSize int64       `json:"declared_size"`
	FrameSize    int         `json:"frame_size"`
	Incomplete   bool        `json:"incomplete,omitempty"`
	HeaderLen    int         `json:"header_len"`
	Type         string      `json:"type,omitempty"`
	TypeID       *uint8      `json:"type_id,omitempty"`
	Timestamp    uint32      `json:"timestamp_ms"`
	Delta        bool        `json:"delta,omitempty"`
	Truncated    bool        `json:"truncated,omitempty"`
	PayloadLen   int         `json:"payload_len"`
	Chat         *ChatFields `json:"chat,omitempty"`
	Mpi          *MpiFields  `json:"mpi,omitempty"`
	Error        string      `json:"error,omitempty"`
	Preview      string      `json:"preview"`
	PreviewMore  bool        `json:"preview_more,omitempty"`
}

type ChatFields struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	ChannelID uint8  `json:"channel_id"`
	Enemy     bool   `json:"enemy"`
	BitsRead  int    `json:"bits_read"`
}

type MpiFields struct {
	ObjectID  uint16      `json:"object_id"`
	MessageID uint16      `json:"message_id"`
	Blobs     []BlobField `json:"blobs,omitempty"`
}

type BlobField struct {
	Offset  int    `json:"offset"`
	Decoded int    `json:"decoded"`
	Error   string `json:"error,omitempty"`
}

type NoteEvent struct {
	Index  int    `json:"index"`
	Offset int64  `json:"offset"`
	Kind   string `json:"kind"`
	Stop   string `json:"stop,omitempty"`
	Detail string `json:"detail"`
	Bytes  string `json:"bytes,omitempty"`
}

type SummaryEvent struct {
	Packets           int    `json:"packets"`
	DecompressedBytes uint64 `json:"decompressed_bytes"`
	Offset            int64  `json:"offset"`
	Stop              string `json:"stop"`
	Detail            string `json:"detail"`
	Skipped           int    `json:"skipped"`
	Digest            string `json:"digest"`
}

// NewPacketEvent converts a record.
func NewPacketEvent(rec *wrpl.Record) Event {
	pe := &PacketEvent{
		Index:        rec.Index,
		Offset:       rec.Offset,
		PrefixLen:    rec.PrefixLen,
		DeclaredSize: rec.DeclaredSize,
		FrameSize:    rec.FrameSize,
		Incomplete:   rec.Incomplete,
		PayloadLen:   len(rec.Payload),
		Preview:      hex.EncodeToString(rec.Preview),
		PreviewMore:  rec.PreviewMore,
	}
	if rec.HasHeader {
		id := uint8(rec.Header.Type)
		pe.HeaderLen = rec.Header.Len
		pe.Type = rec.Header.Type.String()
		pe.TypeID = &id
		pe.Timestamp = rec.Header.Timestamp
		pe.Delta = rec.Header.Delta
		pe.Truncated = rec.Header.Truncated
	}
	if rec.Err != nil {
		pe.Error = rec.Err.Error()
	}
	switch b := rec.Body.(type) {
	case *wrpl.ChatPacket:
		pe.Chat = &ChatFields{
			Sender:    b.Sender,
			Message:   b.Message,
			ChannelID: b.ChannelID,
			Enemy:     b.Enemy,
			BitsRead:  b.BitsRead,
		}
	case *wrpl.MpiPacket:
		mf := &MpiFields{ObjectID: b.ObjectID, MessageID: b.MessageID}
		for _, blob := range b.Blobs {
			mf.Blobs = append(mf.Blobs, BlobField{Offset: blob.Offset, Decoded: blob.Decoded, Error: blob.Err})
		}
		pe.Mpi = mf
	}
	return Event{Event: "packet", Packet: pe}
}

// NewNoteEvent converts a note.
func NewNoteEvent(n wrpl.Note) Event {
	ne := &NoteEvent{
		Index:  n.Index,
		Offset: n.Offset,
		Kind:   n.Kind.String(),
		Detail: n.Detail,
		Bytes:  hex.EncodeToString(n.Bytes),
	}
	if n.Kind == wrpl.NoteStop {
		ne.Stop = n.Stop.String()
	}
	return Event{Event: "note", Note: ne}
}

// NewSummaryEvent converts a run summary.
func NewSummaryEvent(sum wrpl.Summary) Event {
	return Event{Event: "summary", Summary: &SummaryEvent{
		Packets:           sum.Packets,
		DecompressedBytes: sum.DecompressedBytes,
		Offset:            sum.Offset,
		Stop:              sum.Stop.String(),
		Detail:            sum.Detail,
		Skipped:           sum.Skipped,
		Digest:            hex.EncodeToString(sum.Digest),
	}}
}
