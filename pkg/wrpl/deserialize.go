package wrpl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	ErrInsufficientData      = errors.New("insufficient data in packet payload")
	ErrInvalidFormat         = errors.New("invalid packet format")
	ErrBitstreamRead         = errors.New("bitstream read operation failed")
	ErrUnsupportedPacketType = errors.New("unsupported packet type for deserialization")
)

// DeserializeError is a failure decoding the payload of one packet.
type DeserializeError struct {
	Type PacketType
	Err  error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("wrpl: %s packet: %v", e.Type, e.Err)
}

func (e *DeserializeError) Unwrap() error { return e.Err }

// Body is the decoded payload of a packet: *ChatPacket, *MpiPacket or
// *GenericPacket.
type Body interface {
	body()
}

// ChatPacket is a chat line.
type ChatPacket struct {
	Sender    string
	Message   string
	ChannelID uint8
	Enemy     bool
	BitsRead  int
}

// MpiPacket is an object message addressed by object and message id.
type MpiPacket struct {
	ObjectID  uint16
	MessageID uint16
	Payload   []byte
	Blobs     []Blob
}

// Blob is a zstd frame found inside an MPI payload.
type Blob struct {
	Offset  int    // offset in Payload
	Decoded int    // decoded bytes
	Err     string // decode failure, empty on success
}

// GenericPacket carries a payload without further decoding.
type GenericPacket struct {
	Payload []byte
}

func (*ChatPacket) body()    {}
func (*MpiPacket) body()     {}
func (*GenericPacket) body() {}

// MpiHeaderLen is the object id + message id prefix of an MPI payload.
const MpiHeaderLen = 4

// Decoder dispatches payloads to the per-type deserializers.
// The zero value is ready to use.
type Decoder struct {
	// NewBitReader builds the bit cursor for chat payloads.
	// Defaults to NewBitStream.
	NewBitReader BitReaderFunc

	// InspectBlobs looks for zstd frames in MPI payloads.
	InspectBlobs bool

	// Strict fails types without a dedicated deserializer with
	// ErrUnsupportedPacketType instead of returning a GenericPacket.
	Strict bool
}

// Decode decodes payload according to t.
func (d *Decoder) Decode(t PacketType, payload []byte) (Body, error) {
	var (
		body Body
		err  error
	)
	switch t {
	case PacketChat:
		body, err = d.DecodeChat(payload)
	case PacketMPI:
		body, err = d.DecodeMPI(payload)
	default:
		if d.Strict {
			err = ErrUnsupportedPacketType
		} else {
			body = DecodeGeneric(payload)
		}
	}
	if err != nil {
		return nil, &DeserializeError{Type: t, Err: err}
	}
	return body, nil
}

// DecodeChat decodes a chat payload: a skipped length-prefixed field, the
// sender, the message, then an optional channel byte and enemy bit.
func (d *Decoder) DecodeChat(payload []byte) (*ChatPacket, error) {
	if len(payload) == 0 {
		return nil, ErrInsufficientData
	}
	newReader := d.NewBitReader
	if newReader == nil {
		newReader = func(p []byte) BitReader { return NewBitStream(p) }
	}
	br := newReader(payload)

	skip, ok := br.ReadCompressedUint()
	if !ok {
		return nil, ErrBitstreamRead
	}
	if _, ok := readRaw(br, int(skip)); !ok {
		return nil, ErrBitstreamRead
	}

	cp := &ChatPacket{}
	sender, ok := readLenBytes(br)
	if !ok {
		return nil, ErrBitstreamRead
	}
	cp.Sender = string(sender)

	message, ok := readLenBytes(br)
	if !ok {
		return nil, ErrBitstreamRead
	}
	cp.Message = string(message)

	if br.UnreadBits() >= 8 {
		if cp.ChannelID, ok = br.ReadUint8(); !ok {
			return nil, ErrBitstreamRead
		}
	}
	if br.UnreadBits() >= 1 {
		bit, ok := br.ReadBits(1)
		if !ok {
			return nil, ErrBitstreamRead
		}
		cp.Enemy = bit == 1
	}

	cp.BitsRead = len(payload)*8 - br.UnreadBits()
	return cp, nil
}

func readLenBytes(br BitReader) ([]byte, bool) {
	n, ok := br.ReadCompressedUint()
	if !ok {
		return nil, false
	}
	return readRaw(br, int(n))
}

func readRaw(br BitReader, n int) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	if br.UnreadBits() < n*8 {
		return nil, false
	}
	out := make([]byte, n)
	for i := range out {
		b, ok := br.ReadUint8()
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

// DecodeMPI splits off the little-endian object and message ids.
// The rest of the payload is kept untouched.
func (d *Decoder) DecodeMPI(payload []byte) (*MpiPacket, error) {
	if len(payload) < MpiHeaderLen {
		return nil, ErrInsufficientData
	}
	mp := &MpiPacket{
		ObjectID:  binary.LittleEndian.Uint16(payload[0:2]),
		MessageID: binary.LittleEndian.Uint16(payload[2:4]),
		Payload:   payload[MpiHeaderLen:],
	}
	if d.InspectBlobs {
		mp.Blobs = findBlobs(mp.Payload)
	}
	return mp, nil
}

// DecodeGeneric keeps the payload as is. It never fails.
func DecodeGeneric(payload []byte) *GenericPacket {
	return &GenericPacket{Payload: payload}
}

// zstdMagic bytes for detecting compressed frames.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// findBlobs decodes every zstd frame starting in p. A frame that fails to
// decode is reported with its error and scanning resumes after its magic.
// Bytes trailing a decoded frame are not an error.
func findBlobs(p []byte) []Blob {
	var blobs []Blob
	for off := 0; off < len(p); {
		i := bytes.Index(p[off:], zstdMagic)
		if i < 0 {
			break
		}
		off += i
		out, err := getDecoder().DecodeAll(p[off:], nil)
		b := Blob{Offset: off, Decoded: len(out)}
		if err != nil && !(errors.Is(err, zstd.ErrMagicMismatch) && len(out) > 0) {
			b.Err = err.Error()
		}
		blobs = append(blobs, b)
		off += len(zstdMagic)
	}
	return blobs
}

// sharedDecoder is lazily initialized Zstd decoder.
var (
	sharedDecoder     *zstd.Decoder
	sharedDecoderOnce sync.Once
)

func getDecoder() *zstd.Decoder {
	sharedDecoderOnce.Do(func() {
		var err error
		sharedDecoder, err = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(64*1024*1024), // 64MB max
		)
		if err != nil {
			panic("failed to create zstd decoder: " + err.Error())
		}
	})
	return sharedDecoder
}
