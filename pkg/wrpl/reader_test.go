package wrpl

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func sequence(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}
	return out
}

func TestReader_ReadAcrossChunks(t *testing.T) {
	data := sequence(10000)
	r := NewReader(bytes.NewReader(deflate(t, data)), WithChunkSize(64))

	var got []byte
	for _, n := range []int{1, 5, 333, 4096, 7000} {
		b, err := r.Read(n)
		if err != nil {
			t.Fatalf("Read(%d): %v", n, err)
		}
		got = append(got, b...)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("decoded %d bytes, mismatch with input", len(got))
	}

	eof, err := r.EOF()
	if err != nil || !eof {
		t.Errorf("EOF() = %v, %v; want true", eof, err)
	}
	if b, err := r.Read(5); err != nil || len(b) != 0 {
		t.Errorf("Read after end = %v, %v", b, err)
	}
}

func TestReader_ShortReadOnlyAtEnd(t *testing.T) {
	r := NewReader(bytes.NewReader(deflate(t, sequence(10))))

	b, err := r.Read(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 10 {
		t.Errorf("Read(100) returned %d bytes, want 10", len(b))
	}
}

func TestReader_Prepend(t *testing.T) {
	r := NewReader(bytes.NewReader(deflate(t, []byte("abcdefgh"))))

	head, err := r.Read(5)
	if err != nil {
		t.Fatal(err)
	}
	r.Prepend(head[2:])
	if r.Buffered() != 6 {
		t.Errorf("Buffered() = %d, want 6", r.Buffered())
	}

	rest, err := r.Read(100)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "cdefgh" {
		t.Errorf("after prepend read %q, want %q", rest, "cdefgh")
	}
}

func TestReader_PrependBeyondConsumed(t *testing.T) {
	r := NewReader(bytes.NewReader(deflate(t, []byte("xyz"))))

	r.Prepend([]byte("0123456789"))
	got, err := r.Read(100)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "0123456789xyz" {
		t.Errorf("got %q", got)
	}
}

func TestReader_EmptySource(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))

	eof, err := r.EOF()
	if err != nil || !eof {
		t.Errorf("EOF() = %v, %v; want true, nil", eof, err)
	}
}

func TestReader_TruncatedStreamEndsCleanly(t *testing.T) {
	data := sequence(4000)
	z := deflateStored(t, data)
	r := NewReader(bytes.NewReader(z[:len(z)/2]))

	got, err := r.Read(len(data))
	if err != nil {
		t.Fatalf("truncated input should not be fatal: %v", err)
	}
	if len(got) == 0 || len(got) >= len(data) {
		t.Fatalf("decoded %d bytes from half a stream", len(got))
	}
	if !bytes.Equal(got, data[:len(got)]) {
		t.Error("decoded bytes are not a prefix of the input")
	}
	if eof, err := r.EOF(); err != nil || !eof {
		t.Errorf("EOF() = %v, %v", eof, err)
	}
}

func TestReader_CorruptStreamIsFatal(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"bad header checksum", []byte{0x78, 0x00, 0x01, 0x02, 0x03}},
		// Stored block whose NLEN is not the complement of LEN.
		{"bad stored block", []byte{0x78, 0x01, 0x01, 0x05, 0x00, 0x00, 0x00, 'h', 'e', 'l', 'l', 'o'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tt.in))
			_, err := r.Read(10)
			var ie *InflateError
			if !errors.As(err, &ie) {
				t.Fatalf("error = %v, want *InflateError", err)
			}
			if _, err2 := r.EOF(); !errors.As(err2, &ie) {
				t.Errorf("error is not sticky: %v", err2)
			}
		})
	}
}

type failingSource struct{ err error }

func (f failingSource) Read([]byte) (int, error) { return 0, f.err }

func TestReader_SourceFailureIsFatal(t *testing.T) {
	boom := errors.New("disk on fire")
	r := NewReader(failingSource{err: boom})

	_, err := r.Read(1)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped source error", err)
	}
}

func TestReader_PositionAndDigest(t *testing.T) {
	z := deflateStored(t, sequence(3000))
	r := NewReader(bytes.NewReader(z), WithChunkSize(256))

	if _, err := r.Read(1000); err != nil {
		t.Fatal(err)
	}
	mid := r.Position()
	if mid <= 0 || mid >= int64(len(z)) {
		t.Errorf("Position() mid-stream = %d of %d", mid, len(z))
	}
	if _, err := io.ReadAll(readerFunc{r}); err != nil {
		t.Fatal(err)
	}
	if got := r.Position(); got != int64(len(z)) {
		t.Errorf("Position() at end = %d, want %d", got, len(z))
	}

	again := NewReader(bytes.NewReader(z))
	again.Read(1 << 20)
	if !bytes.Equal(r.Digest(), again.Digest()) || len(r.Digest()) != 32 {
		t.Error("digest should depend only on the consumed input")
	}
}

// readerFunc adapts Reader to io.Reader for draining.
type readerFunc struct{ r *Reader }

func (f readerFunc) Read(p []byte) (int, error) {
	b, err := f.r.Read(len(p))
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, io.EOF
	}
	return copy(p, b), nil
}

type countingEngine struct {
	inner    Engine
	produced int
}

func (c *countingEngine) Produce(p []byte) (int, error) {
	n, err := c.inner.Produce(p)
	c.produced += n
	return n, err
}

func (c *countingEngine) Close() error { return c.inner.Close() }

func TestReader_InjectedEngine(t *testing.T) {
	var eng *countingEngine
	factory := func(in Input) (Engine, error) {
		inner, err := ZlibEngine(in)
		if err != nil {
			return nil, err
		}
		eng = &countingEngine{inner: inner}
		return eng, nil
	}
	r := NewReader(bytes.NewReader(deflate(t, sequence(500))), WithEngine(factory))
	if _, err := r.Read(500); err != nil {
		t.Fatal(err)
	}
	if eng == nil || eng.produced != 500 {
		t.Errorf("engine not used or produced wrong amount: %+v", eng)
	}
}
