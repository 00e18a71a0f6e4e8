package woff2

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// Composite glyph component flags (Microsoft OpenType spec, `glyf` table).
const (
	argsAreWords    = 0x0001
	weHaveAScale    = 0x0008
	moreComponents  = 0x0020
	weHaveXYScale   = 0x0040
	weHaveTwoByTwo  = 0x0080
	weHaveInstructs = 0x0100
)

// glyfResult is everything the reconstructor needs from inverting the glyf
// transform: the reassembled glyf and loca table bodies, plus the per-glyph
// x_min vector hmtx reconstruction needs when left-side bearings were
// elided (SPEC_FULL.md §3, §4.7).
type glyfResult struct {
	glyf        []byte
	loca        []byte
	numGlyphs   uint16
	indexFormat uint16
	xMins       []int16
}

// reconstructGlyfLoca inverts the WOFF2 glyf transform (SPEC_FULL.md §4.6).
// origLocaLength is the directory's declared original length of the paired
// loca table, validated against what this inversion computes.
func reconstructGlyfLoca(b []byte, origLocaLength uint32) (*glyfResult, error) {
	r := parse.NewBinaryReader(b)
	if r.Len() < 36 {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	_ = r.ReadUint16() // reserved
	optionFlags := r.ReadUint16()
	numGlyphs := r.ReadUint16()
	indexFormat := r.ReadUint16()
	nContourStreamSize := r.ReadUint32()
	nPointsStreamSize := r.ReadUint32()
	flagStreamSize := r.ReadUint32()
	glyphStreamSize := r.ReadUint32()
	compositeStreamSize := r.ReadUint32()
	bboxStreamSize := r.ReadUint32()
	instructionStreamSize := r.ReadUint32()
	if r.EOF() || nContourStreamSize != 2*uint32(numGlyphs) {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}

	bitmapSize := ((uint32(numGlyphs) + 31) >> 5) << 2
	if bboxStreamSize < bitmapSize {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	nContourStream := parse.NewBinaryReader(r.ReadBytes(nContourStreamSize))
	nPointsStream := parse.NewBinaryReader(r.ReadBytes(nPointsStreamSize))
	flagStream := parse.NewBinaryReader(r.ReadBytes(flagStreamSize))
	glyphStream := parse.NewBinaryReader(r.ReadBytes(glyphStreamSize))
	compositeStream := parse.NewBinaryReader(r.ReadBytes(compositeStreamSize))
	bboxBitmap := newBitReader(r.ReadBytes(bitmapSize))
	bboxStream := parse.NewBinaryReader(r.ReadBytes(bboxStreamSize - bitmapSize))
	instructionStream := parse.NewBinaryReader(r.ReadBytes(instructionStreamSize))
	var overlapSimpleBitmap *bitReader
	if optionFlags&0x0001 != 0 {
		overlapSimpleBitmap = newBitReader(r.ReadBytes(bitmapSize))
	}
	if r.EOF() {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}

	locaLength := (uint32(numGlyphs) + 1) * 2
	if indexFormat != 0 {
		locaLength *= 2
	}
	if locaLength != origLocaLength {
		return nil, fmt.Errorf("loca: origLength must match numGlyphs+1 entries")
	}

	w := parse.NewBinaryWriter([]byte{})
	loca := parse.NewBinaryWriter(make([]byte, 0, locaLength))
	xMins := make([]int16, numGlyphs)

	for iGlyph := uint16(0); iGlyph < numGlyphs; iGlyph++ {
		if indexFormat == 0 {
			if w.Len()%2 != 0 || math.MaxUint16 < w.Len()>>1 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			loca.WriteUint16(uint16(w.Len() >> 1))
		} else {
			loca.WriteUint32(w.Len())
		}

		explicitBbox := bboxBitmap.read()
		nContours := nContourStream.ReadInt16()
		if nContourStream.EOF() {
			return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}

		switch {
		case nContours == 0: // empty glyph
			if explicitBbox {
				return nil, fmt.Errorf("glyf: empty glyph cannot have bbox definition")
			}
			continue
		case nContours > 0: // simple glyph
			var xMin, yMin, xMax, yMax int16
			if explicitBbox {
				xMin = bboxStream.ReadInt16()
				yMin = bboxStream.ReadInt16()
				xMax = bboxStream.ReadInt16()
				yMax = bboxStream.ReadInt16()
				if bboxStream.EOF() {
					return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
			}

			var nPoints uint16
			endPts := make([]uint16, nContours)
			for iContour := int16(0); iContour < nContours; iContour++ {
				n := read255Uint16(nPointsStream)
				if math.MaxUint16-nPoints < n {
					return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				nPoints += n
				endPts[iContour] = nPoints - 1
			}
			if nPointsStream.EOF() || 1<<27 <= uint32(nPoints) {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}

			var x, y int32
			var xMin32, yMin32, xMax32, yMax32 int32
			outlineFlags := make([]byte, 0, nPoints)
			xCoords := make([]int16, 0, nPoints)
			yCoords := make([]int16, 0, nPoints)
			for iPoint := uint16(0); iPoint < nPoints; iPoint++ {
				flag := flagStream.ReadUint8()
				onCurve := flag&0x80 == 0
				flag &= 0x7F

				dx, dy, err := decodeTriplet(flag, glyphStream)
				if err != nil {
					return nil, err
				}
				xCoords = append(xCoords, dx)
				yCoords = append(yCoords, dy)

				var outlineFlag byte
				if onCurve {
					outlineFlag |= 0x01 // ON_CURVE_POINT
				}
				if overlapSimpleBitmap != nil && iPoint == 0 && overlapSimpleBitmap.read() {
					outlineFlag |= 0x40 // OVERLAP_SIMPLE
				}
				outlineFlags = append(outlineFlags, outlineFlag)

				if !explicitBbox {
					nx, err := checkedAddInt32(x, int32(dx))
					if err != nil {
						return nil, err
					}
					ny, err := checkedAddInt32(y, int32(dy))
					if err != nil {
						return nil, err
					}
					x, y = nx, ny
					if iPoint == 0 {
						xMin32, xMax32 = x, x
						yMin32, yMax32 = y, y
					} else {
						if x < xMin32 {
							xMin32 = x
						} else if xMax32 < x {
							xMax32 = x
						}
						if y < yMin32 {
							yMin32 = y
						} else if yMax32 < y {
							yMax32 = y
						}
					}
				}
			}
			if flagStream.EOF() || glyphStream.EOF() {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			if !explicitBbox {
				// The running coordinate sum is tracked in 32-bit space and
				// only rejected on genuine int32 overflow; the bbox itself
				// is stored as int16 in glyf, so it is truncated here, not
				// range-checked (matches the Rust original this format was
				// distilled from, which truncates with `as i16`).
				xMin, xMax = int16(xMin32), int16(xMax32)
				yMin, yMax = int16(yMin32), int16(yMax32)
			}
			xMins[iGlyph] = xMin

			instructionLength := read255Uint16(glyphStream)
			if 1<<30 <= uint32(instructionLength) {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			instructions := instructionStream.ReadBytes(uint32(instructionLength))
			if instructionStream.EOF() {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}

			w.WriteInt16(nContours)
			w.WriteInt16(xMin)
			w.WriteInt16(yMin)
			w.WriteInt16(xMax)
			w.WriteInt16(yMax)
			for _, e := range endPts {
				if e >= 65536 {
					return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				w.WriteUint16(e)
			}
			w.WriteUint16(instructionLength)
			w.WriteBytes(instructions)
			for _, f := range outlineFlags {
				w.WriteUint8(f)
			}
			for _, c := range xCoords {
				w.WriteInt16(c)
			}
			for _, c := range yCoords {
				w.WriteInt16(c)
			}
		default: // composite glyph (nContours == -1)
			if !explicitBbox {
				return nil, fmt.Errorf("glyf: composite glyph must have bbox definition")
			}
			xMin := bboxStream.ReadInt16()
			yMin := bboxStream.ReadInt16()
			xMax := bboxStream.ReadInt16()
			yMax := bboxStream.ReadInt16()
			if bboxStream.EOF() {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			xMins[iGlyph] = xMin

			w.WriteInt16(nContours)
			w.WriteInt16(xMin)
			w.WriteInt16(yMin)
			w.WriteInt16(xMax)
			w.WriteInt16(yMax)

			hasInstructions := false
			for {
				flag := compositeStream.ReadUint16()
				numBytes := 4
				if flag&argsAreWords != 0 {
					numBytes += 2
				}
				if flag&weHaveAScale != 0 {
					numBytes += 2
				} else if flag&weHaveXYScale != 0 {
					numBytes += 4
				} else if flag&weHaveTwoByTwo != 0 {
					numBytes += 8
				}
				body := compositeStream.ReadBytes(uint32(numBytes))
				if compositeStream.EOF() {
					return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				w.WriteUint16(flag)
				w.WriteBytes(body)
				if flag&weHaveInstructs != 0 {
					hasInstructions = true
				}
				if flag&moreComponents == 0 {
					break
				}
			}
			if hasInstructions {
				instructionLength := read255Uint16(glyphStream)
				instructions := instructionStream.ReadBytes(uint32(instructionLength))
				if instructionStream.EOF() {
					return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				w.WriteUint16(instructionLength)
				w.WriteBytes(instructions)
			}
		}

		for w.Len()%4 != 0 {
			w.WriteUint8(0)
		}
	}

	if indexFormat == 0 {
		loca.WriteUint16(uint16(w.Len() >> 1))
	} else {
		loca.WriteUint32(w.Len())
	}

	return &glyfResult{
		glyf:        w.Bytes(),
		loca:        loca.Bytes(),
		numGlyphs:   numGlyphs,
		indexFormat: indexFormat,
		xMins:       xMins,
	}, nil
}

// checkedAddInt32 adds a and b, rejecting only a genuine signed-32-bit
// overflow; it does not reject a sum that merely exceeds the 16-bit range a
// glyf bbox is ultimately stored in (SPEC_FULL.md §9 "Resolved (triplet
// running-coordinate overflow width)").
func checkedAddInt32(a, b int32) (int32, error) {
	if (a > 0 && b > math.MaxInt32-a) || (a < 0 && b < math.MinInt32-a) {
		return 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	return a + b, nil
}

// decodeTriplet decodes one point's (dx, dy) pair from the triplet-coded
// glyph coordinate stream given its already-stripped 7-bit flag
// (SPEC_FULL.md §4.6 "Triplet decoder").
func decodeTriplet(flag byte, glyphStream *parse.BinaryReader) (dx, dy int16, err error) {
	withSign := func(flag byte, bit uint, magnitude int16) int16 {
		if flag&(1<<bit) != 0 {
			return magnitude
		}
		return -magnitude
	}
	switch {
	case flag < 10:
		c0 := int16(glyphStream.ReadUint8())
		dy = withSign(flag, 0, int16(flag&0x0E)<<7+c0)
	case flag < 20:
		c0 := int16(glyphStream.ReadUint8())
		dx = withSign(flag, 0, int16((flag-10)&0x0E)<<7+c0)
	case flag < 84:
		c0 := int16(glyphStream.ReadUint8())
		dx = withSign(flag, 0, 1+int16((flag-20)&0x30)+c0>>4)
		dy = withSign(flag, 1, 1+int16((flag-20)&0x0C)<<2+(c0&0x0F))
	case flag < 120:
		c0 := int16(glyphStream.ReadUint8())
		c1 := int16(glyphStream.ReadUint8())
		dx = withSign(flag, 0, 1+int16((flag-84)/12)<<8+c0)
		dy = withSign(flag, 1, 1+(int16((flag-84)%12)>>2)<<8+c1)
	case flag < 124:
		c0 := int16(glyphStream.ReadUint8())
		c1 := int16(glyphStream.ReadUint8())
		c2 := int16(glyphStream.ReadUint8())
		dx = withSign(flag, 0, c0<<4+c1>>4)
		dy = withSign(flag, 1, (c1&0x0F)<<8+c2)
	default:
		c0 := int16(glyphStream.ReadUint8())
		c1 := int16(glyphStream.ReadUint8())
		c2 := int16(glyphStream.ReadUint8())
		c3 := int16(glyphStream.ReadUint8())
		dx = withSign(flag, 0, c0<<8+c1)
		dy = withSign(flag, 1, c2<<8+c3)
	}
	if glyphStream.EOF() {
		return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	return dx, dy, nil
}
