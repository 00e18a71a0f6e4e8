package woff2

import (
	"encoding/binary"
	"testing"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/test"
)

// buildMinimalWOFF2 assembles a two-table ("head", "maxp"), untransformed,
// single-font WOFF2 container. The compressed payload is a one-byte
// placeholder; tests must supply a BrotliDecompressor that ignores it and
// returns data verbatim, exercising the decoder's directory/assembly logic
// independent of a real brotli implementation.
func buildMinimalWOFF2(t *testing.T, head, maxp []byte) (file []byte, data []byte) {
	data = append(append([]byte{}, head...), maxp...)

	dir := parse.NewBinaryWriter([]byte{})
	dir.WriteUint8(1) // head: knownTags index 1, transformVersion 0
	writeUintBase128(dir, uint32(len(head)))
	dir.WriteUint8(4) // maxp: knownTags index 4, transformVersion 0
	writeUintBase128(dir, uint32(len(maxp)))
	dirBytes := dir.Bytes()

	compressed := []byte{0x00}

	w := parse.NewBinaryWriter([]byte{})
	w.WriteBytes([]byte("wOF2"))
	w.WriteUint32(stringToTag("true"))
	w.WriteUint32(0) // length, patched below
	w.WriteUint16(2) // numTables
	w.WriteUint16(0) // reserved
	w.WriteUint32(0) // totalSfntSize, patched below
	w.WriteUint32(uint32(len(compressed)))
	w.WriteUint16(1) // majorVersion
	w.WriteUint16(0) // minorVersion
	w.WriteUint32(0) // metaOffset
	w.WriteUint32(0) // metaLength
	w.WriteUint32(0) // metaOrigLength
	w.WriteUint32(0) // privOffset
	w.WriteUint32(0) // privLength
	w.WriteBytes(dirBytes)
	w.WriteBytes(compressed)
	file = w.Bytes()

	binary.BigEndian.PutUint32(file[8:], uint32(len(file)))

	numTables := uint32(2)
	sfntOffset := 12 + 16*numTables
	sfntOffset += pad4(uint32(len(head))) + uint32(len(head))
	sfntOffset += pad4(uint32(len(maxp))) + uint32(len(maxp))
	binary.BigEndian.PutUint32(file[16:], sfntOffset)

	return file, data
}

func fakeBrotli(data []byte) BrotliDecompressor {
	return func(compressed []byte, sizeHint uint32) ([]byte, error) {
		return data, nil
	}
}

func TestParseWOFF2Minimal(t *testing.T) {
	head := make([]byte, 54)
	head[0], head[1], head[2], head[3] = 0x00, 0x01, 0x00, 0x00 // sfntVersion
	binary.BigEndian.PutUint32(head[8:], 0xDEADBEEF)            // checkSumAdjustment, must be cleared by the decoder
	maxp := make([]byte, 6)
	binary.BigEndian.PutUint32(maxp[0:], 0x00010000)
	binary.BigEndian.PutUint16(maxp[4:], 3) // numGlyphs

	file, _ := buildMinimalWOFF2(t, head, maxp)
	out, err := ParseWOFF2WithBrotli(file, fakeBrotli(append(append([]byte{}, head...), maxp...)))
	test.Error(t, err)

	test.T(t, string(out[0:4]), "true")
	numTables := binary.BigEndian.Uint16(out[4:6])
	test.T(t, numTables, uint16(2))

	// Directory entries are written in sorted tag order: head, then maxp.
	headEntryOff := uint32(12)
	headTag := out[headEntryOff : headEntryOff+4]
	test.T(t, string(headTag), "head")
	maxpEntryOff := headEntryOff + 16
	test.T(t, string(out[maxpEntryOff:maxpEntryOff+4]), "maxp")

	headTableOffset := binary.BigEndian.Uint32(out[headEntryOff+8:])
	headTableLength := binary.BigEndian.Uint32(out[headEntryOff+12:])
	test.T(t, headTableLength, uint32(54))
	// checkSumAdjustment must have been overwritten, not left as 0xDEADBEEF.
	adjustment := binary.BigEndian.Uint32(out[headTableOffset+8:])
	test.That(t, adjustment != 0xDEADBEEF)

	maxpTableOffset := binary.BigEndian.Uint32(out[maxpEntryOff+8:])
	test.T(t, binary.BigEndian.Uint16(out[maxpTableOffset+4:]), uint16(3))
}

func TestParseWOFF2BadSignature(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file, data := buildMinimalWOFF2(t, head, maxp)
	file[0] = 'x'
	_, err := ParseWOFF2WithBrotli(file, fakeBrotli(data))
	test.T(t, err.Error(), "header: bad signature")
}

func TestParseWOFF2DecompressedSizeMismatch(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file, _ := buildMinimalWOFF2(t, head, maxp)
	// Return one byte fewer than uncompressedSize declares.
	_, err := ParseWOFF2WithBrotli(file, fakeBrotli(make([]byte, 59)))
	test.T(t, err.Error(), "sum of table lengths must match decompressed font data size: invalid font data")
}

// TestParseWOFF2ImplausibleRatio exercises the plausibility guard
// end-to-end through ParseWOFF2WithBrotli, with the ratio computed against
// hdr.totalSfntSize rather than the directory's summed table lengths
// (SPEC_FULL.md §4.5, DESIGN.md "Resolved").
func TestParseWOFF2ImplausibleRatio(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file, data := buildMinimalWOFF2(t, head, maxp)
	// Declare a totalSfntSize wildly out of proportion to the whole input
	// length (53 bytes), independent of the directory's modest summed table
	// lengths (60 bytes).
	binary.BigEndian.PutUint32(file[16:], 1_000_000)
	_, err := ParseWOFF2WithBrotli(file, fakeBrotli(data))
	test.T(t, err.Error(), "compression ratio 18867.9 exceeds plausible maximum")
}

func TestParseWOFF2ExceedsMemory(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file, data := buildMinimalWOFF2(t, head, maxp)
	old := MaxMemory
	MaxMemory = 10
	defer func() { MaxMemory = old }()
	_, err := ParseWOFF2WithBrotli(file, fakeBrotli(data))
	test.T(t, err, ErrExceedsMemory)
}

// TestParseWOFF2CollectionVersionAndDSIGGating builds a single-font WOFF2
// TrueType Collection (flavor "ttcf") by hand for each collection-directory
// version the format defines, checking that the synthesized TTC header
// carries the parsed version through unchanged and that the 12-byte DSIG
// placeholder is emitted only for version 0x00020000.
func TestParseWOFF2CollectionVersionAndDSIGGating(t *testing.T) {
	head := make([]byte, 54)
	head[0], head[1], head[2], head[3] = 0x00, 0x01, 0x00, 0x00
	maxp := make([]byte, 6)
	binary.BigEndian.PutUint32(maxp[0:], 0x00010000)

	for _, tt := range []struct {
		version    uint32
		ttcHdrSize uint32 // bytes from "ttcf" tag through the last per-font offset pointer, before any DSIG block
	}{
		{0x00010000, 16}, // ttcf(4) + version(4) + numFonts(4) + 1 offset pointer(4), no DSIG
		{0x00020000, 28}, // same, plus a 12-byte DSIG placeholder
	} {
		dir := parse.NewBinaryWriter([]byte{})
		dir.WriteUint8(1)
		writeUintBase128(dir, uint32(len(head)))
		dir.WriteUint8(4)
		writeUintBase128(dir, uint32(len(maxp)))
		dirBytes := dir.Bytes()

		coll := parse.NewBinaryWriter([]byte{})
		coll.WriteUint32(tt.version)
		write255Uint16(coll, 1)
		write255Uint16(coll, 2)
		coll.WriteUint32(stringToTag("true"))
		write255Uint16(coll, 0)
		write255Uint16(coll, 1)
		collBytes := coll.Bytes()

		compressed := []byte{0x00}

		w := parse.NewBinaryWriter([]byte{})
		w.WriteBytes([]byte("wOF2"))
		w.WriteUint32(stringToTag("ttcf"))
		w.WriteUint32(0) // length, patched below
		w.WriteUint16(2)
		w.WriteUint16(0)
		w.WriteUint32(0) // totalSfntSize, patched below
		w.WriteUint32(uint32(len(compressed)))
		w.WriteUint16(1)
		w.WriteUint16(0)
		w.WriteUint32(0)
		w.WriteUint32(0)
		w.WriteUint32(0)
		w.WriteUint32(0)
		w.WriteUint32(0)
		w.WriteBytes(dirBytes)
		w.WriteBytes(collBytes)
		w.WriteBytes(compressed)
		file := w.Bytes()

		binary.BigEndian.PutUint32(file[8:], uint32(len(file)))

		headPadded := uint32(len(head)) + pad4(uint32(len(head)))
		maxpPadded := uint32(len(maxp)) + pad4(uint32(len(maxp)))
		totalSfntSize := tt.ttcHdrSize + 12 + 2*16 + headPadded + maxpPadded
		binary.BigEndian.PutUint32(file[16:], totalSfntSize)

		data := append(append([]byte{}, head...), maxp...)
		out, err := ParseWOFF2WithBrotli(file, fakeBrotli(data))
		test.Error(t, err)

		test.T(t, string(out[0:4]), "ttcf")
		test.T(t, binary.BigEndian.Uint32(out[4:8]), tt.version)
		test.T(t, binary.BigEndian.Uint32(out[8:12]), uint32(1))
		fontOffset := binary.BigEndian.Uint32(out[12:16])
		test.T(t, fontOffset, tt.ttcHdrSize)
	}
}
