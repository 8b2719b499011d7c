package wrpl

// BitReader is the bit-level cursor the chat deserializer reads through.
// Every read reports ok=false instead of failing when bits run out.
type BitReader interface {
	// ReadCompressedUint reads a compact unsigned integer whose encoded
	// width grows with its magnitude.
	ReadCompressedUint() (uint32, bool)
	// ReadBits reads n bits (n <= 64), first bit most significant.
	ReadBits(n int) (uint64, bool)
	ReadUint8() (uint8, bool)
	// UnreadBits returns the number of bits left.
	UnreadBits() int
}

// BitReaderFunc builds a BitReader over a payload.
type BitReaderFunc func(payload []byte) BitReader

// BitStream is the default BitReader. Bits are taken most significant
// first within each byte. Compact integers use the RakNet layout: for each
// upper byte one flag bit (1 = byte is zero, keep going; 0 = the remaining
// bytes follow in full, least significant first), and for the last byte a
// flag bit selecting a 4-bit nibble (1) or a full byte (0).
type BitStream struct {
	data   []byte
	offset int // bits consumed
	size   int // bits available
	width  int // compact integer width in bytes
}

// NewBitStream creates a BitStream whose compact integers are 16 bits wide.
func NewBitStream(data []byte) *BitStream {
	return NewBitStreamWidth(data, 2)
}

// NewBitStreamWidth creates a BitStream with compact integers of width
// bytes (1 to 4).
func NewBitStreamWidth(data []byte, width int) *BitStream {
	if width < 1 {
		width = 1
	}
	if width > 4 {
		width = 4
	}
	return &BitStream{data: data, size: len(data) * 8, width: width}
}

func (b *BitStream) readBit() (bool, bool) {
	if b.offset >= b.size {
		return false, false
	}
	bit := b.data[b.offset>>3]&(0x80>>(b.offset&7)) != 0
	b.offset++
	return bit, true
}

// ReadBits implements BitReader.
func (b *BitStream) ReadBits(n int) (uint64, bool) {
	if n < 0 || n > 64 || b.UnreadBits() < n {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit, _ := b.readBit()
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, true
}

// ReadUint8 implements BitReader.
func (b *BitStream) ReadUint8() (uint8, bool) {
	v, ok := b.ReadBits(8)
	return uint8(v), ok
}

// ReadCompressedUint implements BitReader.
func (b *BitStream) ReadCompressedUint() (uint32, bool) {
	cur := b.width - 1
	for cur > 0 {
		zero, ok := b.readBit()
		if !ok {
			return 0, false
		}
		if zero {
			cur--
			continue
		}
		var v uint32
		for i := 0; i <= cur; i++ {
			x, ok := b.ReadUint8()
			if !ok {
				return 0, false
			}
			v |= uint32(x) << (8 * i)
		}
		return v, true
	}

	half, ok := b.readBit()
	if !ok {
		return 0, false
	}
	if half {
		v, ok := b.ReadBits(4)
		return uint32(v), ok
	}
	v, ok := b.ReadUint8()
	return uint32(v), ok
}

// UnreadBits implements BitReader.
func (b *BitStream) UnreadBits() int {
	return b.size - b.offset
}

// ReadOffset returns the number of bits consumed.
func (b *BitStream) ReadOffset() int {
	return b.offset
}
