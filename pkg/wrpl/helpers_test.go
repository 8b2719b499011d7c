package wrpl

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// encodeSize builds a size prefix of the given form (1 to 5 bytes).
func encodeSize(size uint32, form int) []byte {
	switch form {
	case 1:
		return []byte{0x80 | byte(size&0x7F)}
	case 2:
		v := size ^ bias2
		return []byte{byte(v >> 8), byte(v)}
	case 3:
		v := size ^ bias3
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	case 4:
		v := size ^ bias4
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		b := []byte{0x00, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(b[1:], size)
		return b
	}
}

// sizeForm picks the shortest form able to carry size. The 1-byte form
// keeps bit 6 clear, so it tops out at 63.
func sizeForm(size int) int {
	switch {
	case size < 1<<6:
		return 1
	case size < 1<<14:
		return 2
	case size < 1<<21:
		return 3
	case size < 1<<28:
		return 4
	default:
		return 5
	}
}

// frame builds a prefixed frame. A nil ts selects the delta header form.
func frame(t PacketType, ts *uint32, payload []byte) []byte {
	var body []byte
	if ts == nil {
		body = append(body, byte(t)|deltaFlag)
	} else {
		body = append(body, byte(t))
		body = binary.LittleEndian.AppendUint32(body, *ts)
	}
	body = append(body, payload...)
	out := encodeSize(uint32(len(body)), sizeForm(len(body)))
	return append(out, body...)
}

func u32(v uint32) *uint32 { return &v }

// deflate compresses data into a zlib stream.
func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

// deflateStored compresses data without compression so that byte
// positions in the stream stay predictable.
func deflateStored(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.NoCompression)
	if err != nil {
		t.Fatalf("zlib writer: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

// bitWriter writes bits most significant first, the way BitStream reads them.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) bit(b bool) {
	if w.n%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if b {
		w.buf[w.n/8] |= 0x80 >> (w.n % 8)
	}
	w.n++
}

func (w *bitWriter) bits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.bit(v>>uint(i)&1 == 1)
	}
}

// compressed writes a 16-bit compact unsigned integer.
func (w *bitWriter) compressed(v uint16) {
	if v>>8 != 0 {
		w.bit(false)
		w.bits(uint64(v&0xFF), 8)
		w.bits(uint64(v>>8), 8)
		return
	}
	w.bit(true)
	if v&0xF0 == 0 {
		w.bit(true)
		w.bits(uint64(v), 4)
		return
	}
	w.bit(false)
	w.bits(uint64(v), 8)
}

func (w *bitWriter) raw(p []byte) {
	for _, b := range p {
		w.bits(uint64(b), 8)
	}
}

func (w *bitWriter) lenBytes(p []byte) {
	w.compressed(uint16(len(p)))
	w.raw(p)
}

// recordingSink records everything a Driver reports.
type recordingSink struct {
	began   int
	info    RunInfo
	records []*Record
	notes   []Note
	summary *Summary
	failAt  int // Packet fails for this index when > 0
}

func (s *recordingSink) Begin(info RunInfo) {
	s.began++
	s.info = info
}

func (s *recordingSink) Packet(rec *Record) error {
	if s.failAt > 0 && rec.Index == s.failAt {
		return errSinkFull
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Note(n Note) { s.notes = append(s.notes, n) }

func (s *recordingSink) End(sum Summary) { s.summary = &sum }

func (s *recordingSink) notesOf(kind NoteKind) []Note {
	var out []Note
	for _, n := range s.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
