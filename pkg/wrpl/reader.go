package wrpl

import (
	"errors"
	"io"
)

// maxStalls bounds engine calls that return neither bytes nor an error.
const maxStalls = 64

// Reader decodes a compressed stream on demand. Decoded bytes wait in a
// pending buffer until Read consumes them; Prepend pushes bytes back.
type Reader struct {
	in        *feeder
	newEngine EngineFactory
	engine    Engine
	batch     int

	buf      []byte // pending bytes live in buf[offset:buffered]
	offset   int
	buffered int

	finished bool
	err      error
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithChunkSize sets the compressed chunk size and decoded batch size.
func WithChunkSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithEngine replaces the default zlib engine.
func WithEngine(f EngineFactory) ReaderOption {
	return func(r *Reader) {
		if f != nil {
			r.newEngine = f
		}
	}
}

// NewReader creates a Reader over the compressed bytes in src.
// The engine is created lazily, so header errors surface on the first Read.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		newEngine: ZlibEngine,
		batch:     DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.in = newFeeder(src, r.batch)
	r.buf = make([]byte, 2*r.batch)
	return r
}

// Read returns up to n decoded bytes. Fewer than n bytes come back only at
// the end of the data. A non-nil error is always an *InflateError.
func (r *Reader) Read(n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	if err := r.fill(n); err != nil {
		return nil, err
	}
	k := r.Buffered()
	if k > n {
		k = n
	}
	out := make([]byte, k)
	copy(out, r.buf[r.offset:r.offset+k])
	r.offset += k
	return out, nil
}

// Prepend pushes p back in front of the pending bytes.
func (r *Reader) Prepend(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(p) <= r.offset {
		r.offset -= len(p)
		copy(r.buf[r.offset:], p)
		return
	}
	pending := r.Buffered()
	nb := make([]byte, len(p)+pending+r.batch)
	copy(nb, p)
	copy(nb[len(p):], r.buf[r.offset:r.buffered])
	r.buf = nb
	r.offset = 0
	r.buffered = len(p) + pending
}

// EOF reports whether the engine finished and nothing is pending.
// It always attempts one more pull before answering.
func (r *Reader) EOF() (bool, error) {
	if err := r.fill(1); err != nil {
		return false, err
	}
	return r.finished && r.Buffered() == 0, nil
}

// Position returns the approximate compressed offset the engine has
// reached. Only meaningful for diagnostics.
func (r *Reader) Position() int64 {
	return r.in.consumed()
}

// Buffered returns the number of decoded bytes not yet consumed.
func (r *Reader) Buffered() int {
	return r.buffered - r.offset
}

// Digest returns the BLAKE2b-256 sum of the compressed bytes pulled from
// the source so far.
func (r *Reader) Digest() []byte {
	return r.in.digest.Sum(nil)
}

// Close releases the engine.
func (r *Reader) Close() error {
	if r.engine == nil {
		return nil
	}
	return r.engine.Close()
}

// fill decodes until at least n bytes are pending or the engine finishes.
func (r *Reader) fill(n int) error {
	stalls := 0
	for r.Buffered() < n && !r.finished {
		if r.err != nil {
			return r.err
		}
		if r.engine == nil {
			e, err := r.newEngine(r.in)
			if err != nil {
				if r.endOfInput(err) {
					r.finished = true
					return nil
				}
				return r.fail(err)
			}
			r.engine = e
		}

		r.ensureSpace(r.batch)
		m, err := r.engine.Produce(r.buf[r.buffered : r.buffered+r.batch])
		r.buffered += m
		if err != nil {
			if r.endOfInput(err) {
				r.finished = true
				return nil
			}
			return r.fail(err)
		}
		if m == 0 {
			if stalls++; stalls > maxStalls {
				return r.fail(io.ErrNoProgress)
			}
			continue
		}
		stalls = 0
	}
	return r.err
}

// endOfInput reports whether err is the engine's end-of-stream or
// need-more-input signal with no source input left.
func (r *Reader) endOfInput(err error) bool {
	if r.in.srcErr != nil {
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (r *Reader) fail(err error) error {
	if r.in.srcErr != nil {
		err = r.in.srcErr
	}
	r.err = &InflateError{Offset: r.Position(), Err: err}
	return r.err
}

// ensureSpace ensures at least k free bytes after buffered.
// Compacts the buffer and grows it as needed.
func (r *Reader) ensureSpace(k int) {
	if len(r.buf)-r.buffered >= k {
		return
	}

	// Compact: move unread data to start
	if r.offset > 0 {
		copy(r.buf, r.buf[r.offset:r.buffered])
		r.buffered -= r.offset
		r.offset = 0
		if len(r.buf)-r.buffered >= k {
			return
		}
	}

	newSize := len(r.buf) * 2
	if newSize < r.buffered+k {
		newSize = r.buffered + k
	}
	nb := make([]byte, newSize)
	copy(nb, r.buf[:r.buffered])
	r.buf = nb
}
