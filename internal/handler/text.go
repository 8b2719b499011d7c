package handler

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"wrpl-inspect/pkg/wrpl"
)

func init() {
	Register("text", NewTextHandler)
}

// TextConfig configures the text handler.
type TextConfig struct {
	Fields *bool `json:"fields"` // decoded chat and blob fields, default on
	Digest *bool `json:"digest"` // digest line in the summary, default on
}

// TextHandler writes the human-readable diagnostic stream.
type TextHandler struct {
	out     io.Writer
	fields  bool
	digest  bool
	pending []wrpl.Note
}

// NewTextHandler creates a new text handler writing to env.Out.
func NewTextHandler(raw json.RawMessage, env Env) (Handler, error) {
	var cfg TextConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return &TextHandler{
		out:    env.Out,
		fields: cfg.Fields == nil || *cfg.Fields,
		digest: cfg.Digest == nil || *cfg.Digest,
	}, nil
}

// Name returns the handler name.
func (h *TextHandler) Name() string { return "text" }

// OnBegin resets pending notes.
func (h *TextHandler) OnBegin(ctx *Context) Result {
	h.pending = h.pending[:0]
	return Result{Action: Continue}
}

// OnPacket writes one packet block.
func (h *TextHandler) OnPacket(ctx *Context, rec *wrpl.Record) Result {
	buf := GetBuffer()
	defer PutBuffer(buf)

	h.dropStale(rec.Index)
	packetBanner(buf, rec.Index, rec.Offset)
	fmt.Fprintf(buf, "  Read size prefix (%d decomp. bytes): Expected payload size = %d bytes\n", rec.PrefixLen, rec.DeclaredSize)
	h.flushNotes(buf, rec.Index, wrpl.NoteIncomplete)

	if rec.HasHeader {
		fmt.Fprintf(buf, "  Parsed Header (%d bytes): Type=%s, Timestamp=%dms\n", rec.Header.Len, rec.Header.Type, rec.Header.Timestamp)
		h.flushNotes(buf, rec.Index, wrpl.NoteTruncatedTimestamp)
		fmt.Fprintf(buf, "  Actual Payload Size: %d bytes\n", len(rec.Payload))
		h.writeBody(buf, rec.Body)
		h.flushNotes(buf, rec.Index, wrpl.NoteSkipped)
		writePreview(buf, rec.Preview, rec.PreviewMore)
	}
	h.flushNotes(buf, rec.Index, wrpl.NoteNoHeader)

	if _, err := h.out.Write(buf.Bytes()); err != nil {
		return Result{Action: Continue, Error: err}
	}
	return Result{Action: Continue}
}

// OnNote queues per-packet notes and writes stop notes.
func (h *TextHandler) OnNote(ctx *Context, n wrpl.Note) {
	if n.Kind != wrpl.NoteStop {
		h.pending = append(h.pending, n)
		return
	}
	if n.Stop == wrpl.StopEndOfData {
		h.pending = h.pending[:0]
		return
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	switch n.Stop {
	case wrpl.StopInvalidPrefix, wrpl.StopShortPrefix:
		packetBanner(buf, n.Index, n.Offset)
		fmt.Fprintf(buf, "Error reading/interpreting size prefix. Bytes: %s. Stopping.\n", hex.EncodeToString(n.Bytes))
	case wrpl.StopEmptyFrame:
		packetBanner(buf, n.Index, n.Offset)
		h.flushNotes(buf, n.Index, wrpl.NoteIncomplete)
		buf.WriteString("  No payload data read. Stopping.\n")
	case wrpl.StopPacketFailure, wrpl.StopInflate:
		packetBanner(buf, n.Index, n.Offset)
		h.flushNotes(buf, n.Index, wrpl.NoteIncomplete)
		fmt.Fprintf(buf, "  Error during packet processing loop: %s\n", n.Detail)
	default:
		fmt.Fprintf(buf, "Stopped (%s): %s\n", n.Stop, n.Detail)
	}
	h.pending = h.pending[:0]
	// a failed write shows up again in OnEnd
	_, _ = h.out.Write(buf.Bytes())
}

// OnEnd writes the summary.
func (h *TextHandler) OnEnd(ctx *Context, sum wrpl.Summary) Result {
	buf := GetBuffer()
	defer PutBuffer(buf)

	fmt.Fprintf(buf, "\n== End of stream processing (Comp. offset ~%#x) ==\n", sum.Offset)
	fmt.Fprintf(buf, "Total decompressed bytes processed: %d\n", sum.DecompressedBytes)
	fmt.Fprintf(buf, "Packets: %d, stop: %s\n", sum.Packets, sum.Stop)
	if sum.Skipped > 0 {
		fmt.Fprintf(buf, "Skipped packets: %d\n", sum.Skipped)
	}
	if h.digest {
		fmt.Fprintf(buf, "Compressed digest (blake2b-256): %x\n", sum.Digest)
	}
	if _, err := h.out.Write(buf.Bytes()); err != nil {
		return Result{Action: Continue, Error: err}
	}
	return Result{Action: Continue}
}

func (h *TextHandler) writeBody(buf *bytes.Buffer, body wrpl.Body) {
	switch b := body.(type) {
	case *wrpl.MpiPacket:
		fmt.Fprintf(buf, "  MPI Header:      ObjectID=0x%04X, MessageID=0x%04X\n", b.ObjectID, b.MessageID)
		if !h.fields {
			return
		}
		for _, blob := range b.Blobs {
			if blob.Err != "" {
				fmt.Fprintf(buf, "  Blob @%d: zstd frame, decode failed: %s\n", blob.Offset, blob.Err)
				continue
			}
			fmt.Fprintf(buf, "  Blob @%d: zstd frame, %d bytes decoded\n", blob.Offset, blob.Decoded)
		}
	case *wrpl.ChatPacket:
		if !h.fields {
			return
		}
		fmt.Fprintf(buf, "  Chat: Sender=%q, Message=%q, Channel=%d, Enemy=%t (%d bits)\n",
			b.Sender, b.Message, b.ChannelID, b.Enemy, b.BitsRead)
	}
}

// flushNotes writes and removes the pending notes of one kind for index.
func (h *TextHandler) flushNotes(buf *bytes.Buffer, index int, kind wrpl.NoteKind) {
	kept := h.pending[:0]
	for _, n := range h.pending {
		if n.Index != index || n.Kind != kind {
			kept = append(kept, n)
			continue
		}
		switch kind {
		case wrpl.NoteIncomplete:
			fmt.Fprintf(buf, "  Warning: Incomplete packet! %s.\n", n.Detail)
		case wrpl.NoteTruncatedTimestamp:
			buf.WriteString("  Warning: Truncated timestamp, previous value kept.\n")
		case wrpl.NoteSkipped:
			fmt.Fprintf(buf, "  Warning: Decode failed, passed through: %s\n", n.Detail)
		case wrpl.NoteNoHeader:
			buf.WriteString("  Warning: Empty frame, no header.\n")
		}
	}
	h.pending = kept
}

// dropStale forgets notes of records that never reached this sink, such as
// records an earlier typefilter dropped.
func (h *TextHandler) dropStale(index int) {
	kept := h.pending[:0]
	for _, n := range h.pending {
		if n.Index >= index {
			kept = append(kept, n)
		}
	}
	h.pending = kept
}

func packetBanner(buf *bytes.Buffer, index int, offset int64) {
	fmt.Fprintf(buf, "\n== Packet %d (Comp. offset ~%#x) ==\n", index, offset)
}

func writePreview(buf *bytes.Buffer, p []byte, more bool) {
	if len(p) == 0 {
		buf.WriteString("  Payload Hex: (empty)\n")
		return
	}
	buf.WriteString("  Payload Hex: ")
	for _, b := range p {
		fmt.Fprintf(buf, "%02X ", b)
	}
	if more {
		buf.WriteString("...")
	}
	buf.WriteByte('\n')
}
