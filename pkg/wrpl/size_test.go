package wrpl

import (
	"errors"
	"testing"
)

func TestDecodeSize_OneByteForm(t *testing.T) {
	for b := 0x80; b < 0xC0; b++ {
		c := NewCursor([]byte{byte(b), 0xFF, 0xFF})
		got, err := DecodeSize(c)
		if err != nil {
			t.Fatalf("DecodeSize(%02x): %v", b, err)
		}
		if got.Size != int64(b&0x7F) || got.Len != 1 {
			t.Errorf("DecodeSize(%02x) = %+v, want size %d len 1", b, got, b&0x7F)
		}
		if c.Offset() != 1 {
			t.Errorf("DecodeSize(%02x) consumed %d bytes", b, c.Offset())
		}
	}
}

func TestDecodeSize_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		form  int
		sizes []uint32
	}{
		{"1 byte", 1, []uint32{0, 1, 0x3F}},
		{"2 bytes", 2, []uint32{0, 1, 0x40, 0x7F, 0x80, 0x1234, 0x3FFF}},
		{"3 bytes", 3, []uint32{0, 0x4000, 0xABCDE, 0x1FFFFF}},
		{"4 bytes", 4, []uint32{0, 0x200000, 0x0ABCDEF1, 0x0FFFFFFF}},
		{"5 bytes", 5, []uint32{0, 1, 0x10000000, 0xDEADBEEF, 0xFFFFFFFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, size := range tt.sizes {
				c := NewCursor(encodeSize(size, tt.form))
				got, err := DecodeSize(c)
				if err != nil {
					t.Fatalf("size %#x: %v", size, err)
				}
				if got.Size != int64(size) || got.Len != tt.form {
					t.Errorf("size %#x: got %+v, want len %d", size, got, tt.form)
				}
				if c.Len() != 0 {
					t.Errorf("size %#x: %d bytes left over", size, c.Len())
				}
			}
		})
	}
}

func TestDecodeSize_InvalidLeadingBits(t *testing.T) {
	for b := 0xC0; b <= 0xFF; b++ {
		for _, rest := range [][]byte{nil, {0x00}, {0xFF, 0xFF, 0xFF, 0xFF}} {
			in := append([]byte{byte(b)}, rest...)
			got, err := DecodeSize(NewCursor(in))
			if !errors.Is(err, ErrInvalidPrefix) {
				t.Fatalf("DecodeSize(% x) error = %v, want ErrInvalidPrefix", in, err)
			}
			if got.Len != 1 {
				t.Errorf("DecodeSize(% x) len = %d, want 1", in, got.Len)
			}
		}
	}
}

func TestDecodeSize_ShortPrefix(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"2-byte form cut", []byte{0x40}},
		{"3-byte form cut", []byte{0x20, 0x00}},
		{"4-byte form cut", []byte{0x10, 0x00, 0x00}},
		{"5-byte form cut", []byte{0x00, 0x01, 0x02, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSize(NewCursor(tt.in)); !errors.Is(err, ErrShortPrefix) {
				t.Errorf("error = %v, want ErrShortPrefix", err)
			}
		})
	}
}

func TestDecodeSize_LeavesLookahead(t *testing.T) {
	c := NewCursor([]byte{0x84, 0x10, 0x00, 0x00, 0x00})
	if _, err := DecodeSize(c); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 4 {
		t.Errorf("remaining = %d, want 4", c.Len())
	}
}

func TestSizeForm_ShortestDecodable(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{63, 1},
		{64, 2},
		{105, 2},
		{1<<14 - 1, 2},
		{1 << 14, 3},
	}

	for _, tt := range tests {
		b := encodeSize(uint32(tt.size), sizeForm(tt.size))
		if len(b) != tt.want {
			t.Errorf("size %d: form %d, want %d", tt.size, len(b), tt.want)
		}
		got, err := DecodeSize(NewCursor(b))
		if err != nil || got.Size != int64(tt.size) {
			t.Errorf("size %d: decoded %+v, %v", tt.size, got, err)
		}
	}
}
