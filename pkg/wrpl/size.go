package wrpl

import (
	"encoding/binary"
	"errors"
)

// MaxPrefixLen is the longest size prefix a frame can carry.
const MaxPrefixLen = 5

var (
	ErrShortPrefix   = errors.New("wrpl: size prefix truncated")
	ErrInvalidPrefix = errors.New("wrpl: invalid size prefix")
	ErrNegativeSize  = errors.New("wrpl: negative payload size")
)

// Bias values folded into the multi-byte forms. They clear the mode bits
// that share the leading byte with the size.
const (
	bias2 = 0x4000
	bias3 = 0x200000
	bias4 = 0x10000000
)

// SizePrefix is a decoded frame length prefix.
type SizePrefix struct {
	Size int64 // declared payload size
	Len  int   // prefix bytes consumed
}

// DecodeSize decodes the variable-length size prefix at the cursor.
//
//	1xxxxxxx (bit 6 clear)  1 byte   low 7 bits
//	11xxxxxx                invalid
//	01xxxxxx                2 bytes  big-endian ^ 0x4000
//	001xxxxx                3 bytes  big-endian ^ 0x200000
//	0001xxxx                4 bytes  big-endian ^ 0x10000000
//	0000xxxx                5 bytes  little-endian uint32 from bytes 1..4
//
// ErrInvalidPrefix and ErrNegativeSize come back with the prefix length
// actually consumed. ErrShortPrefix means the cursor ran out of bytes.
func DecodeSize(c *Cursor) (SizePrefix, error) {
	b0, ok := c.ReadUint8()
	if !ok {
		return SizePrefix{}, ErrShortPrefix
	}

	if b0&0x80 != 0 {
		if b0&0x40 != 0 {
			return SizePrefix{Size: -1, Len: 1}, ErrInvalidPrefix
		}
		return SizePrefix{Size: int64(b0 & 0x7F), Len: 1}, nil
	}

	var size int64
	var n int
	switch {
	case b0&0x40 != 0:
		rest := c.Read(1)
		if len(rest) < 1 {
			return SizePrefix{}, ErrShortPrefix
		}
		size = int64(uint32(b0)<<8|uint32(rest[0])) ^ bias2
		n = 2
	case b0&0x20 != 0:
		rest := c.Read(2)
		if len(rest) < 2 {
			return SizePrefix{}, ErrShortPrefix
		}
		size = int64(uint32(b0)<<16|uint32(rest[0])<<8|uint32(rest[1])) ^ bias3
		n = 3
	case b0&0x10 != 0:
		rest := c.Read(3)
		if len(rest) < 3 {
			return SizePrefix{}, ErrShortPrefix
		}
		size = int64(uint32(b0)<<24|uint32(rest[0])<<16|uint32(rest[1])<<8|uint32(rest[2])) ^ bias4
		n = 4
	default:
		rest := c.Read(4)
		if len(rest) < 4 {
			return SizePrefix{}, ErrShortPrefix
		}
		return SizePrefix{Size: int64(binary.LittleEndian.Uint32(rest)), Len: 5}, nil
	}

	if size < 0 {
		return SizePrefix{Size: -1, Len: n}, ErrNegativeSize
	}
	return SizePrefix{Size: size, Len: n}, nil
}
