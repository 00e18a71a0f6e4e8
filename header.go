package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// header is the unified WOFF1/WOFF2 view of the fixed container header
// (SPEC_FULL.md §3).
type header struct {
	signature            string
	flavor               uint32
	length               uint32
	numTables            uint16
	totalSfntSize        uint32
	totalCompressedSize  uint32 // WOFF2 only; 0 for WOFF1
	majorVersion         uint16
	minorVersion         uint16
	metaOffset           uint32
	metaLength           uint32
	metaOrigLength       uint32
	privOffset           uint32
	privLength           uint32

	// collectionVersion is the WOFF2 collection directory's own version
	// field (0x00010000 or 0x00020000), set by the caller once the
	// collection directory has been parsed. Meaningless and unused unless
	// isCollection() is true.
	collectionVersion uint32
}

// isCollection reports whether the header's flavor marks a TrueType Collection.
func (h *header) isCollection() bool {
	return h.flavor == stringToTag("ttcf")
}

// parseHeader reads the fixed-size WOFF1/WOFF2 header and validates the
// invariants common to both formats (SPEC_FULL.md §4.2). signature must be
// "wOFF" or "wOF2"; the caller already knows which one it expects.
func parseHeader(r *parse.BinaryReader, b []byte, woff2 bool) (*header, error) {
	if r.Len() < 44 {
		return nil, ErrInvalidFontData
	}
	h := &header{}
	h.signature = r.ReadString(4)
	want := "wOFF"
	if woff2 {
		want = "wOF2"
	}
	if h.signature != want {
		return nil, fmt.Errorf("bad signature")
	}
	h.flavor = r.ReadUint32()
	h.length = r.ReadUint32()
	h.numTables = r.ReadUint16()
	reserved := r.ReadUint16()
	h.totalSfntSize = r.ReadUint32()
	if woff2 {
		h.totalCompressedSize = r.ReadUint32()
	}
	h.majorVersion = r.ReadUint16()
	h.minorVersion = r.ReadUint16()
	h.metaOffset = r.ReadUint32()
	h.metaLength = r.ReadUint32()
	h.metaOrigLength = r.ReadUint32()
	h.privOffset = r.ReadUint32()
	h.privLength = r.ReadUint32()
	if r.EOF() {
		return nil, ErrInvalidFontData
	}
	if h.length != uint32(len(b)) {
		return nil, fmt.Errorf("length in header must match file size")
	}
	if h.numTables == 0 {
		return nil, fmt.Errorf("numTables in header must not be zero")
	}
	if reserved != 0 {
		return nil, fmt.Errorf("reserved in header must be zero")
	}
	if h.totalSfntSize < 1 {
		return nil, fmt.Errorf("totalSfntSize must be at least 1")
	}
	if err := h.validateRegion(h.metaOffset, h.metaLength, uint32(len(b))); err != nil {
		return nil, fmt.Errorf("metadata block: %w", err)
	}
	if err := h.validateRegion(h.privOffset, h.privLength, uint32(len(b))); err != nil {
		return nil, fmt.Errorf("private block: %w", err)
	}
	return h, nil
}

// validateRegion checks that an optional, possibly-absent (offset==0 &&
// length==0) metadata/private block lies fully within the input.
func (h *header) validateRegion(offset, length, inputLen uint32) error {
	if offset == 0 && length == 0 {
		return nil
	}
	if offset >= inputLen || inputLen-offset < length {
		return ErrInvalidFontData
	}
	return nil
}
