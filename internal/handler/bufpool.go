package handler

import (
	"bytes"
	"sync"
)

// maxPooledBuffer keeps unusually large formatted records out of the pool.
const maxPooledBuffer = 64 << 10

// bufferPool provides reusable buffers for formatting records.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// GetBuffer returns an empty buffer from the pool.
// Caller must return it via PutBuffer after use.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(buf *bytes.Buffer) {
	if buf != nil && buf.Cap() <= maxPooledBuffer {
		bufferPool.Put(buf)
	}
}
