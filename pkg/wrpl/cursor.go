package wrpl

// Cursor is a read-only sequential view over a fixed buffer.
// Short reads at the end of the buffer are silent; callers check lengths.
type Cursor struct {
	data   []byte
	offset int
}

// NewCursor creates a cursor positioned at the start of data.
// The cursor does not copy data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Read returns up to n bytes and advances past them.
// The returned slice aliases the underlying buffer.
func (c *Cursor) Read(n int) []byte {
	if n < 0 {
		n = 0
	}
	if avail := len(c.data) - c.offset; n > avail {
		n = avail
	}
	b := c.data[c.offset : c.offset+n]
	c.offset += n
	return b
}

// ReadUint8 reads a single byte. ok is false at the end of the buffer.
func (c *Cursor) ReadUint8() (b byte, ok bool) {
	if c.offset >= len(c.data) {
		return 0, false
	}
	b = c.data[c.offset]
	c.offset++
	return b, true
}

// Remaining returns the unconsumed suffix without advancing.
func (c *Cursor) Remaining() []byte {
	return c.data[c.offset:]
}

// Len returns the number of unconsumed bytes.
func (c *Cursor) Len() int {
	return len(c.data) - c.offset
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.offset
}
