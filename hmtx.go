package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// reconstructHmtx inverts the WOFF2 hmtx transform (SPEC_FULL.md §4.7),
// substituting elided left-side bearings with the corresponding glyph's
// glyf x_min. numHMetrics is hhea.numberOfHMetrics, read by the caller
// before calling this (tables are processed in sorted-tag order so hhea
// always precedes hmtx).
func reconstructHmtx(b []byte, numGlyphs, numHMetrics uint16, xMins []int16) ([]byte, error) {
	if numHMetrics < 1 || numGlyphs < numHMetrics {
		return nil, fmt.Errorf("hmtx: numberOfHMetrics out of range")
	}
	if len(xMins) != int(numGlyphs) {
		return nil, ErrInvalidFontData
	}

	r := parse.NewBinaryReader(b)
	flags := r.ReadUint8()
	if r.EOF() {
		return nil, ErrInvalidFontData
	}
	// Bit set means the corresponding lsb array was elided by the encoder and
	// must be reconstructed from x_min (SPEC_FULL.md §9 "Resolved (hmtx
	// elision-bit polarity)").
	reconstructProportional := flags&0x01 != 0
	reconstructMonospaced := flags&0x02 != 0
	if flags&0xFC != 0 {
		return nil, fmt.Errorf("hmtx: reserved bits in flags must not be set")
	}
	if !reconstructProportional && !reconstructMonospaced {
		return nil, fmt.Errorf("hmtx: must reconstruct at least one left side bearing array")
	}

	want := uint32(1) + uint32(numHMetrics)*2
	if !reconstructProportional {
		want += uint32(numHMetrics) * 2
	}
	if !reconstructMonospaced {
		want += (uint32(numGlyphs) - uint32(numHMetrics)) * 2
	}
	if want != uint32(len(b)) {
		return nil, ErrInvalidFontData
	}

	advanceWidths := make([]uint16, numHMetrics)
	lsbs := make([]int16, numGlyphs)
	for i := uint16(0); i < numHMetrics; i++ {
		advanceWidths[i] = r.ReadUint16()
	}
	if !reconstructProportional {
		for i := uint16(0); i < numHMetrics; i++ {
			lsbs[i] = r.ReadInt16()
		}
	}
	if !reconstructMonospaced {
		for i := numHMetrics; i < numGlyphs; i++ {
			lsbs[i] = r.ReadInt16()
		}
	}
	if r.EOF() {
		return nil, ErrInvalidFontData
	}

	iMin, iMax := uint16(0), numGlyphs
	if !reconstructProportional {
		iMin = numHMetrics
	} else if !reconstructMonospaced {
		iMax = numHMetrics
	}
	for i := iMin; i < iMax; i++ {
		lsbs[i] = xMins[i]
	}

	w := parse.NewBinaryWriter(make([]byte, 0, 4*uint32(numHMetrics)+2*uint32(numGlyphs-numHMetrics)))
	for i := uint16(0); i < numHMetrics; i++ {
		w.WriteUint16(advanceWidths[i])
		w.WriteInt16(lsbs[i])
	}
	for i := numHMetrics; i < numGlyphs; i++ {
		w.WriteInt16(lsbs[i])
	}
	return w.Bytes(), nil
}

// readNumHMetrics reads hhea.numberOfHMetrics (offset 34, u16 — Microsoft
// OpenType `hhea` table) from an already-reconstructed hhea table body.
func readNumHMetrics(hhea []byte) (uint16, error) {
	if len(hhea) < 36 {
		return 0, fmt.Errorf("hhea: %w", ErrInvalidFontData)
	}
	r := parse.NewBinaryReader(hhea)
	_ = r.ReadBytes(34)
	n := r.ReadUint16()
	if r.EOF() {
		return 0, ErrInvalidFontData
	}
	return n, nil
}

// readNumGlyphs reads maxp.numGlyphs (offset 4, u16 — Microsoft OpenType
// `maxp` table) from an already-parsed maxp table body.
func readNumGlyphs(maxp []byte) (uint16, error) {
	if len(maxp) < 6 {
		return 0, fmt.Errorf("maxp: %w", ErrInvalidFontData)
	}
	r := parse.NewBinaryReader(maxp)
	_ = r.ReadUint32() // version
	n := r.ReadUint16()
	if r.EOF() {
		return 0, ErrInvalidFontData
	}
	return n, nil
}

// extractXMins reads each glyph's x_min directly out of a finalized glyf
// table using loca's offsets, for the (rare) case where hmtx was transformed
// but glyf itself was not, so no xMins vector was produced as a side effect
// of §4.6. Glyphs with an empty outline (loca[i] == loca[i+1]) get x_min 0,
// matching the donor package's reconstructHmtx.
func extractXMins(glyf, loca []byte, indexFormat, numGlyphs uint16) ([]int16, error) {
	locaLength := (uint32(numGlyphs) + 1) * 2
	if indexFormat != 0 {
		locaLength *= 2
	}
	if uint32(len(loca)) != locaLength {
		return nil, ErrInvalidFontData
	}

	r := parse.NewBinaryReader(loca)
	readOffset := func() uint32 {
		if indexFormat != 0 {
			return r.ReadUint32()
		}
		return uint32(r.ReadUint16()) << 1
	}

	rGlyf := parse.NewBinaryReader(glyf)
	xMins := make([]int16, numGlyphs)
	offset := readOffset()
	for i := uint16(0); i < numGlyphs; i++ {
		offsetNext := readOffset()
		if offsetNext != offset {
			rGlyf.Seek(offset)
			_ = rGlyf.ReadInt16() // numberOfContours
			xMins[i] = rGlyf.ReadInt16()
			if rGlyf.EOF() {
				return nil, ErrInvalidFontData
			}
		}
		offset = offsetNext
	}
	if r.EOF() {
		return nil, ErrInvalidFontData
	}
	return xMins, nil
}
