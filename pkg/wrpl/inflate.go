package wrpl

import (
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/blake2b"
)

// DefaultChunkSize is the size of the compressed chunks fed to the engine
// and the size of each decoded batch it produces.
const DefaultChunkSize = 16 * 1024

// Input is the compressed side of an Engine. Reader feeds it from the
// source one chunk at a time.
type Input interface {
	io.Reader
	io.ByteReader
}

// Engine is an incremental inflate engine.
//
// Produce decodes up to len(p) bytes. io.EOF reports that the compressed
// stream finished; io.ErrUnexpectedEOF reports that the engine needs more
// input and the source has none left. Anything else is a decode failure.
type Engine interface {
	Produce(p []byte) (int, error)
	Close() error
}

// EngineFactory builds an Engine pulling compressed bytes from in.
type EngineFactory func(in Input) (Engine, error)

// ZlibEngine is the default EngineFactory: a zlib container (RFC 1950)
// around a deflate stream.
func ZlibEngine(in Input) (Engine, error) {
	zr, err := zlib.NewReader(in)
	if err != nil {
		return nil, err
	}
	return &zlibEngine{zr: zr}, nil
}

type zlibEngine struct {
	zr io.ReadCloser
}

func (e *zlibEngine) Produce(p []byte) (int, error) { return e.zr.Read(p) }

func (e *zlibEngine) Close() error { return e.zr.Close() }

// InflateError is a fatal decompression failure. Corruption inside the
// compressed stream cannot be skipped, so it ends the whole run.
type InflateError struct {
	Offset int64 // approximate compressed offset
	Err    error
}

func (e *InflateError) Error() string {
	return fmt.Sprintf("wrpl: inflate failed near compressed offset %#x: %v", e.Offset, e.Err)
}

func (e *InflateError) Unwrap() error { return e.Err }

// feeder hands source bytes to the engine in fixed-size chunks and tracks
// how much of the source the engine has consumed.
type feeder struct {
	src    io.Reader
	chunk  []byte
	pos    int // next unread byte in chunk
	end    int // valid bytes in chunk
	fed    int64
	srcErr error // non-EOF source failure
	eof    bool
	digest hash.Hash
}

func newFeeder(src io.Reader, chunkSize int) *feeder {
	d, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes
	return &feeder{
		src:    src,
		chunk:  make([]byte, chunkSize),
		digest: d,
	}
}

// feed pulls the next chunk from the source.
func (f *feeder) feed() error {
	if f.eof {
		return io.EOF
	}
	if f.srcErr != nil {
		return f.srcErr
	}
	n, err := io.ReadAtLeast(f.src, f.chunk, 1)
	if n > 0 {
		f.digest.Write(f.chunk[:n])
		f.fed += int64(n)
		f.pos, f.end = 0, n
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		f.eof = true
		return io.EOF
	}
	f.srcErr = err
	return err
}

func (f *feeder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos == f.end {
		if err := f.feed(); err != nil {
			return 0, err
		}
	}
	n := copy(p, f.chunk[f.pos:f.end])
	f.pos += n
	return n, nil
}

func (f *feeder) ReadByte() (byte, error) {
	if f.pos == f.end {
		if err := f.feed(); err != nil {
			return 0, err
		}
	}
	b := f.chunk[f.pos]
	f.pos++
	return b, nil
}

// consumed returns the number of source bytes handed to the engine.
func (f *feeder) consumed() int64 {
	return f.fed - int64(f.end-f.pos)
}
