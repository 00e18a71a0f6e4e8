package woff2

import (
	"testing"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/test"
)

func buildHmtxBody(flags byte, advanceWidths []uint16, lsbs []int16) []byte {
	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint8(flags)
	for _, a := range advanceWidths {
		w.WriteUint16(a)
	}
	for _, l := range lsbs {
		w.WriteInt16(l)
	}
	return w.Bytes()
}

func TestReconstructHmtxBothElided(t *testing.T) {
	// numGlyphs=3, numHMetrics=2; both proportional and monospaced lsbs elided.
	body := buildHmtxBody(0x03, []uint16{100, 200}, nil)
	xMins := []int16{-1, -2, -3}
	out, err := reconstructHmtx(body, 3, 2, xMins)
	test.Error(t, err)

	r := parse.NewBinaryReader(out)
	test.T(t, r.ReadUint16(), uint16(100))
	test.T(t, r.ReadInt16(), int16(-1))
	test.T(t, r.ReadUint16(), uint16(200))
	test.T(t, r.ReadInt16(), int16(-2))
	test.T(t, r.ReadInt16(), int16(-3))
}

func TestReconstructHmtxProportionalOnly(t *testing.T) {
	// bit0 set (proportional elided), bit1 clear (monospace lsbs present).
	body := buildHmtxBody(0x01, []uint16{50, 60}, []int16{9, 10})
	xMins := []int16{-5, -6, 7, 8}
	out, err := reconstructHmtx(body, 4, 2, xMins)
	test.Error(t, err)

	r := parse.NewBinaryReader(out)
	test.T(t, r.ReadUint16(), uint16(50))
	test.T(t, r.ReadInt16(), int16(-5))
	test.T(t, r.ReadUint16(), uint16(60))
	test.T(t, r.ReadInt16(), int16(-6))
	test.T(t, r.ReadInt16(), int16(9))
	test.T(t, r.ReadInt16(), int16(10))
}

func TestReconstructHmtxReservedBitsSet(t *testing.T) {
	body := buildHmtxBody(0x04, []uint16{1}, nil)
	_, err := reconstructHmtx(body, 1, 1, []int16{0})
	test.T(t, err.Error(), "hmtx: reserved bits in flags must not be set")
}

func TestReconstructHmtxNeitherBitSet(t *testing.T) {
	body := buildHmtxBody(0x00, []uint16{1}, []int16{2})
	_, err := reconstructHmtx(body, 1, 1, []int16{0})
	test.T(t, err.Error(), "hmtx: must reconstruct at least one left side bearing array")
}

func TestReconstructHmtxNumHMetricsOutOfRange(t *testing.T) {
	_, err := reconstructHmtx(nil, 1, 0, nil)
	test.T(t, err.Error(), "hmtx: numberOfHMetrics out of range")
	_, err = reconstructHmtx(nil, 1, 2, nil)
	test.T(t, err.Error(), "hmtx: numberOfHMetrics out of range")
}

func TestReadNumHMetrics(t *testing.T) {
	w := parse.NewBinaryWriter(make([]byte, 0, 36))
	w.WriteBytes(make([]byte, 34))
	w.WriteUint16(8)
	n, err := readNumHMetrics(w.Bytes())
	test.Error(t, err)
	test.T(t, n, uint16(8))
}

func TestReadNumGlyphs(t *testing.T) {
	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint32(0x00010000)
	w.WriteUint16(42)
	n, err := readNumGlyphs(w.Bytes())
	test.Error(t, err)
	test.T(t, n, uint16(42))
}

func TestExtractXMins(t *testing.T) {
	// Two glyphs: glyph 0 has an outline, glyph 1 is empty (loca[1]==loca[2]).
	glyf := parse.NewBinaryWriter([]byte{})
	glyf.WriteInt16(1)   // numberOfContours
	glyf.WriteInt16(-7)  // xMin
	glyf.WriteInt16(0)
	glyf.WriteInt16(0)
	glyf.WriteInt16(0)
	for glyf.Len()%4 != 0 {
		glyf.WriteUint8(0)
	}
	glyfBytes := glyf.Bytes()

	loca := parse.NewBinaryWriter([]byte{})
	loca.WriteUint16(0)
	loca.WriteUint16(uint16(len(glyfBytes)) >> 1)
	loca.WriteUint16(uint16(len(glyfBytes)) >> 1) // empty glyph: same offset
	locaBytes := loca.Bytes()

	xMins, err := extractXMins(glyfBytes, locaBytes, 0, 2)
	test.Error(t, err)
	test.T(t, xMins[0], int16(-7))
	test.T(t, xMins[1], int16(0))
}
