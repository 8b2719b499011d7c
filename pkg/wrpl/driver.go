package wrpl

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPreviewBytes bounds the payload hex preview of a Record.
const DefaultPreviewBytes = 64

// StopReason says why a run ended.
type StopReason int

const (
	StopEndOfData StopReason = iota
	StopShortPrefix
	StopInvalidPrefix
	StopEmptyFrame
	StopPacketFailure
	StopInflate
	StopSink
	StopCanceled
)

func (s StopReason) String() string {
	switch s {
	case StopEndOfData:
		return "end_of_data"
	case StopShortPrefix:
		return "short_prefix"
	case StopInvalidPrefix:
		return "invalid_prefix"
	case StopEmptyFrame:
		return "empty_frame"
	case StopPacketFailure:
		return "packet_failure"
	case StopInflate:
		return "inflate_failure"
	case StopSink:
		return "sink_failure"
	case StopCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("stop(%d)", int(s))
	}
}

// Clean reports whether the run reached the end of the data.
func (s StopReason) Clean() bool { return s == StopEndOfData }

// NoteKind classifies a Note.
type NoteKind int

const (
	// NoteIncomplete: the frame is shorter than its declared size.
	NoteIncomplete NoteKind = iota
	// NoteTruncatedTimestamp: explicit header without 4 timestamp bytes.
	NoteTruncatedTimestamp
	// NoteNoHeader: zero-length frame, nothing to decode.
	NoteNoHeader
	// NoteSkipped: a packet failed to decode and was passed through.
	NoteSkipped
	// NoteStop: the run is ending; Summary.Stop has the reason.
	NoteStop
)

func (k NoteKind) String() string {
	switch k {
	case NoteIncomplete:
		return "incomplete"
	case NoteTruncatedTimestamp:
		return "truncated_timestamp"
	case NoteNoHeader:
		return "no_header"
	case NoteSkipped:
		return "skipped"
	case NoteStop:
		return "stop"
	default:
		return fmt.Sprintf("note(%d)", int(k))
	}
}

// Note is a diagnostic event that is not a packet.
type Note struct {
	Index  int
	Offset int64
	Kind   NoteKind
	Stop   StopReason // set for NoteStop
	Detail string
	Bytes  []byte // offending bytes, when there are any
}

// Record is the diagnostic view of one decoded packet.
type Record struct {
	Index        int
	Offset       int64 // approximate compressed offset at the start of the frame
	PrefixLen    int
	DeclaredSize int64
	FrameSize    int // bytes actually read for the frame
	Incomplete   bool
	HasHeader    bool
	Header       Header
	Payload      []byte // frame bytes after the header
	Body         Body
	Err          error // decode failure of a skipped packet
	Preview      []byte
	PreviewMore  bool // payload longer than Preview
}

// RunInfo identifies a run to the sink.
type RunInfo struct {
	ID string
}

// Summary describes a finished run.
type Summary struct {
	Packets           int
	DecompressedBytes uint64
	Offset            int64
	Stop              StopReason
	Detail            string
	Skipped           int
	Digest            []byte
}

// Sink receives the diagnostic stream of a run. Packet returning an
// error stops the run.
type Sink interface {
	Begin(info RunInfo)
	Packet(rec *Record) error
	Note(n Note)
	End(sum Summary)
}

// State is the cross-packet state of a run.
type State struct {
	LastTimestamp     uint32
	Index             int
	DecompressedBytes uint64
}

// Driver turns the decompressed byte stream into packets. A Driver owns
// its state and serves a single run.
type Driver struct {
	r          *Reader
	sink       Sink
	dec        *Decoder
	log        zerolog.Logger
	tracer     trace.Tracer
	preview    int
	skipBad    bool
	info       RunInfo
	readerOpts []ReaderOption

	state   State
	skipped int
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the operational logger.
func WithLogger(l zerolog.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

// WithTracer sets the tracer for the run span.
func WithTracer(t trace.Tracer) DriverOption {
	return func(d *Driver) { d.tracer = t }
}

// WithPreviewBytes bounds the hex preview. Zero disables it.
func WithPreviewBytes(n int) DriverOption {
	return func(d *Driver) {
		if n >= 0 {
			d.preview = n
		}
	}
}

// WithSkipBadPackets turns decode failures into NoteSkipped and keeps
// going instead of stopping the run.
func WithSkipBadPackets(skip bool) DriverOption {
	return func(d *Driver) { d.skipBad = skip }
}

// WithDecoder replaces the payload decoder.
func WithDecoder(dec *Decoder) DriverOption {
	return func(d *Driver) {
		if dec != nil {
			d.dec = dec
		}
	}
}

// WithRunID labels the run.
func WithRunID(id string) DriverOption {
	return func(d *Driver) { d.info.ID = id }
}

// WithReaderOptions configures the Reader that Parse creates.
func WithReaderOptions(opts ...ReaderOption) DriverOption {
	return func(d *Driver) { d.readerOpts = append(d.readerOpts, opts...) }
}

// NewDriver creates a Driver reading from r and reporting to sink.
func NewDriver(r *Reader, sink Sink, opts ...DriverOption) *Driver {
	d := &Driver{
		r:       r,
		sink:    sink,
		dec:     &Decoder{InspectBlobs: true},
		log:     zerolog.Nop(),
		tracer:  otel.Tracer("wrpl-inspect/wrpl"),
		preview: DefaultPreviewBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse decodes the compressed stream in src and reports to sink.
func Parse(ctx context.Context, src io.Reader, sink Sink, opts ...DriverOption) (Summary, error) {
	var probe Driver
	for _, opt := range opts {
		opt(&probe)
	}
	r := NewReader(src, probe.readerOpts...)
	defer r.Close()
	return NewDriver(r, sink, opts...).Run(ctx)
}

// State returns a copy of the cross-packet state.
func (d *Driver) State() State {
	return d.state
}

// Run reads packets until the end of the data or a stop condition. The
// returned error is non-nil only for an inflate failure; every other stop
// is described by Summary.Stop.
func (d *Driver) Run(ctx context.Context) (sum Summary, err error) {
	ctx, span := d.tracer.Start(ctx, "wrpl.Run", trace.WithAttributes(attribute.String("wrpl.run_id", d.info.ID)))
	defer span.End()

	d.sink.Begin(d.info)
	stop, detail, err := d.loop(ctx)

	sum = Summary{
		Packets:           d.state.Index,
		DecompressedBytes: d.state.DecompressedBytes,
		Offset:            d.r.Position(),
		Stop:              stop,
		Detail:            detail,
		Skipped:           d.skipped,
		Digest:            d.r.Digest(),
	}
	span.SetAttributes(
		attribute.Int("wrpl.packets", sum.Packets),
		attribute.Int64("wrpl.decompressed_bytes", int64(sum.DecompressedBytes)),
		attribute.String("wrpl.stop", stop.String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	ev := d.log.Info()
	if !stop.Clean() {
		ev = d.log.Warn()
	}
	ev.Str("run", d.info.ID).
		Int("packets", sum.Packets).
		Uint64("bytes", sum.DecompressedBytes).
		Str("stop", stop.String()).
		Msg("run finished")

	d.sink.End(sum)
	return sum, err
}

func (d *Driver) loop(ctx context.Context) (StopReason, string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return d.halt(StopCanceled, d.r.Position(), err.Error(), nil), err.Error(), nil
		}

		eof, err := d.r.EOF()
		if err != nil {
			return d.halt(StopInflate, d.r.Position(), err.Error(), nil), err.Error(), err
		}
		if eof {
			const detail = "clean end of data"
			return d.halt(StopEndOfData, d.r.Position(), detail, nil), detail, nil
		}

		if stop, detail, err := d.step(); stop != nil {
			return *stop, detail, err
		}
	}
}

// step reads and reports one packet. A non-nil stop ends the run.
func (d *Driver) step() (*StopReason, string, error) {
	offset := d.r.Position()
	stopWith := func(s StopReason, detail string, b []byte, err error) (*StopReason, string, error) {
		d.halt(s, offset, detail, b)
		return &s, detail, err
	}

	lookahead, err := d.r.Read(MaxPrefixLen)
	if err != nil {
		return stopWith(StopInflate, err.Error(), nil, err)
	}
	if len(lookahead) == 0 {
		return stopWith(StopEndOfData, "clean end of data before next size prefix", nil, nil)
	}

	c := NewCursor(lookahead)
	prefix, err := DecodeSize(c)
	if err != nil {
		s := StopInvalidPrefix
		if errors.Is(err, ErrShortPrefix) {
			s = StopShortPrefix
		}
		return stopWith(s, err.Error(), lookahead, nil)
	}
	d.r.Prepend(c.Remaining())

	frame, err := d.r.Read(int(prefix.Size))
	if err != nil {
		return stopWith(StopInflate, err.Error(), nil, err)
	}
	rec := &Record{
		Index:        d.state.Index,
		Offset:       offset,
		PrefixLen:    prefix.Len,
		DeclaredSize: prefix.Size,
		FrameSize:    len(frame),
	}
	if int64(len(frame)) != prefix.Size {
		rec.Incomplete = true
		detail := fmt.Sprintf("Expected %d, got %d", prefix.Size, len(frame))
		d.note(Note{Index: rec.Index, Offset: offset, Kind: NoteIncomplete, Detail: detail})
		if len(frame) == 0 {
			return stopWith(StopEmptyFrame, "no payload data read", nil, nil)
		}
	}
	d.state.DecompressedBytes += uint64(len(frame))

	fc := NewCursor(frame)
	h, err := DecodeHeader(fc, d.state.LastTimestamp)
	if err != nil {
		d.note(Note{Index: rec.Index, Offset: offset, Kind: NoteNoHeader, Detail: err.Error()})
	} else {
		rec.HasHeader = true
		rec.Header = h
		if h.Truncated {
			d.note(Note{Index: rec.Index, Offset: offset, Kind: NoteTruncatedTimestamp,
				Detail: "unexpected end of frame reading timestamp after type byte"})
		}
		if !h.Delta && !h.Truncated {
			d.state.LastTimestamp = h.Timestamp
		}
		rec.Payload = fc.Remaining()

		body, err := d.dec.Decode(h.Type, rec.Payload)
		if err != nil {
			detail := fmt.Sprintf("%v (type=%s, %d payload bytes: %s)", err, h.Type, len(rec.Payload), previewHex(rec.Payload, d.preview))
			if !d.skipBad {
				return stopWith(StopPacketFailure, detail, nil, nil)
			}
			d.skipped++
			rec.Err = err
			body = DecodeGeneric(rec.Payload)
			d.note(Note{Index: rec.Index, Offset: offset, Kind: NoteSkipped, Detail: detail})
		}
		rec.Body = body
	}

	shown := rec.Payload
	if mp, ok := rec.Body.(*MpiPacket); ok {
		shown = mp.Payload
	}
	rec.Preview, rec.PreviewMore = shown, false
	if len(shown) > d.preview {
		rec.Preview, rec.PreviewMore = shown[:d.preview], true
	}

	d.log.Debug().
		Int("index", rec.Index).
		Int64("offset", offset).
		Int64("size", prefix.Size).
		Str("type", rec.Header.Type.String()).
		Uint32("ts", rec.Header.Timestamp).
		Msg("packet")

	if err := d.sink.Packet(rec); err != nil {
		return stopWith(StopSink, err.Error(), nil, nil)
	}
	d.state.Index++
	return nil, "", nil
}

func (d *Driver) note(n Note) {
	d.log.Warn().Int("index", n.Index).Int64("offset", n.Offset).Str("kind", n.Kind.String()).Msg(n.Detail)
	d.sink.Note(n)
}

func (d *Driver) halt(s StopReason, offset int64, detail string, b []byte) StopReason {
	if !s.Clean() {
		d.log.Warn().Int("index", d.state.Index).Int64("offset", offset).Str("stop", s.String()).Msg(detail)
	}
	d.sink.Note(Note{Index: d.state.Index, Offset: offset, Kind: NoteStop, Stop: s, Detail: detail, Bytes: b})
	return s
}

func previewHex(p []byte, n int) string {
	if len(p) > n {
		return hex.EncodeToString(p[:n]) + "..."
	}
	return hex.EncodeToString(p)
}
