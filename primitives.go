package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// read255Uint16 decodes a WOFF2 255UInt16 value (W3C WOFF2 §5.1) from r.
func read255Uint16(r *parse.BinaryReader) uint16 {
	code := r.ReadUint8()
	switch code {
	case 253:
		return r.ReadUint16()
	case 255:
		return uint16(r.ReadUint8()) + 253
	case 254:
		return uint16(r.ReadUint8()) + 2*253
	default:
		return uint16(code)
	}
}

// write255Uint16 encodes v using the most compact 255UInt16 form.
func write255Uint16(w *parse.BinaryWriter, v uint16) {
	if v < 253 {
		w.WriteUint8(uint8(v))
	} else if v < 253+256 {
		w.WriteUint8(255)
		w.WriteUint8(uint8(v - 253))
	} else if v < 2*253+256 {
		w.WriteUint8(254)
		w.WriteUint8(uint8(v - 2*253))
	} else {
		w.WriteUint8(253)
		w.WriteUint16(v)
	}
}

// readUintBase128 decodes a WOFF2 UIntBase128 value (W3C WOFF2 §5.1): up to
// five 7-bit groups, MSB-first, continuation bit in each byte's top bit. A
// leading 0x80 byte and an accumulator overflow are both rejected.
func readUintBase128(r *parse.BinaryReader) (uint32, error) {
	var accum uint32
	for i := 0; i < 5; i++ {
		b := r.ReadUint8()
		if r.EOF() {
			return 0, ErrInvalidFontData
		}
		if i == 0 && b == 0x80 {
			return 0, fmt.Errorf("readUintBase128: must not start with leading zeros")
		}
		if accum&0xFE000000 != 0 {
			return 0, fmt.Errorf("readUintBase128: overflow")
		}
		accum = accum<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return accum, nil
		}
	}
	return 0, fmt.Errorf("readUintBase128: exceeds 5 bytes")
}

// writeUintBase128 encodes v in the minimal number of 7-bit groups.
func writeUintBase128(w *parse.BinaryWriter, v uint32) {
	var buf [5]byte
	n := 0
	buf[4] = byte(v & 0x7F)
	n++
	v >>= 7
	for v != 0 {
		n++
		buf[5-n] = byte(v&0x7F) | 0x80
		v >>= 7
	}
	w.WriteBytes(buf[5-n:])
}

// bitReader reads individual bits from a byte slice, most-significant-bit
// first within each byte, matching the WOFF2 bbox/overlap-simple bitmaps
// (W3C WOFF2 §5.3): bit 0 of the bitmap is the top bit of byte 0.
type bitReader struct {
	b   []byte
	pos int
}

func newBitReader(b []byte) *bitReader {
	return &bitReader{b: b}
}

func (r *bitReader) read() bool {
	byteIndex := r.pos >> 3
	bitIndex := 7 - uint(r.pos&7)
	r.pos++
	if byteIndex >= len(r.b) {
		return false
	}
	return r.b[byteIndex]&(1<<bitIndex) != 0
}

// bitWriter is the encode-side counterpart of bitReader, used only by tests
// that assemble synthetic WOFF2 fixtures.
type bitWriter struct {
	b []byte
}

func newBitWriter(size int) *bitWriter {
	return &bitWriter{b: make([]byte, size)}
}

func (w *bitWriter) write(pos int, v bool) {
	if !v {
		return
	}
	byteIndex := pos >> 3
	bitIndex := 7 - uint(pos&7)
	w.b[byteIndex] |= 1 << bitIndex
}

func (w *bitWriter) bytes() []byte {
	return w.b
}
