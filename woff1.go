package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// woff1DirEntry is one raw WOFF 1.0 table-directory entry (20 bytes on the
// wire): tag, absolute file offset, compressed length, original length and
// original checksum (SPEC_FULL.md §4.10).
type woff1DirEntry struct {
	tag          string
	offset       uint32
	compLength   uint32
	origLength   uint32
	origChecksum uint32
}

// parseWOFF1Directory reads the fixed-size WOFF 1.0 table directory.
func parseWOFF1Directory(r *parse.BinaryReader, numTables uint16) ([]woff1DirEntry, error) {
	entries := make([]woff1DirEntry, 0, numTables)
	seen := map[string]bool{}
	for i := 0; i < int(numTables); i++ {
		tag := tagToString(r.ReadUint32())
		offset := r.ReadUint32()
		compLength := r.ReadUint32()
		origLength := r.ReadUint32()
		origChecksum := r.ReadUint32()
		if r.EOF() {
			return nil, ErrInvalidFontData
		}
		if seen[tag] {
			return nil, fmt.Errorf("%s: table defined more than once", tag)
		}
		if compLength > origLength {
			return nil, fmt.Errorf("%s: %w", tag, ErrInvalidFontData)
		}
		seen[tag] = true
		entries = append(entries, woff1DirEntry{tag, offset, compLength, origLength, origChecksum})
	}
	return entries, nil
}

// verifyWOFF1Checksum checks a decompressed table's bytes against the
// origChecksum its WOFF 1.0 directory entry declared. head is special-cased:
// the encoder computes its checksum with checkSumAdjustment zeroed, since
// that field is only known once the whole font has been reassembled.
func verifyWOFF1Checksum(tag string, table []byte, origChecksum uint32) error {
	if tag != "head" {
		if calcChecksum(table) != origChecksum {
			return fmt.Errorf("%s: bad checksum", tag)
		}
		return nil
	}
	if len(table) < 12 {
		return fmt.Errorf("head: %w", ErrInvalidFontData)
	}
	zeroed := make([]byte, len(table))
	copy(zeroed, table)
	zeroed[8], zeroed[9], zeroed[10], zeroed[11] = 0, 0, 0, 0
	if calcChecksum(zeroed) != origChecksum {
		return fmt.Errorf("head: bad checksum")
	}
	return nil
}

// ParseWOFF decompresses and reconstructs a byte-exact SFNT font from a
// WOFF 1.0 container, using the default zlib decompressor (SPEC_FULL.md §6).
func ParseWOFF(b []byte) ([]byte, error) {
	return ParseWOFFWithZlib(b, defaultZlibDecompressor)
}

// ParseWOFFWithZlib is ParseWOFF with an injectable zlib decompressor
// (SPEC_FULL.md §9 "Codec as capability").
func ParseWOFFWithZlib(b []byte, decompress ZlibDecompressor) ([]byte, error) {
	r := parse.NewBinaryReader(b)
	hdr, err := parseHeader(r, b, false)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if hdr.isCollection() {
		return nil, fmt.Errorf("WOFF 1.0 does not support font collections: %w", ErrInvalidFontData)
	}

	woffEntries, err := parseWOFF1Directory(r, hdr.numTables)
	if err != nil {
		return nil, fmt.Errorf("table directory: %w", err)
	}

	// Container-level plausibility guard: declared totalSfntSize against the
	// whole WOFF1 input, the same ratio formula used for a WOFF2 container
	// (SPEC_FULL.md §4.5). Per-table decompression below
	// still sizes and checks each gzip/zlib stream against that table's own
	// origLength, since that is the only size a per-table stream can be
	// hinted or validated against.
	if err := checkPlausibility(len(b), hdr.totalSfntSize); err != nil {
		return nil, err
	}

	// Tables may appear in the body in any order and may overlap the
	// directory region itself on malformed input; validate each entry's
	// span against the whole file independently of file-order.
	var uncompressedSize uint32
	for _, e := range woffEntries {
		if e.offset >= uint32(len(b)) || uint32(len(b))-e.offset < e.compLength {
			return nil, fmt.Errorf("%s: %w", e.tag, ErrInvalidFontData)
		}
		if uncompressedSize > MaxMemory-e.origLength {
			return nil, ErrExceedsMemory
		}
		uncompressedSize += e.origLength
	}

	data := make([]byte, 0, uncompressedSize)
	entries := make([]tableDirEntry, len(woffEntries))
	for i, e := range woffEntries {
		var table []byte
		if e.compLength == e.origLength {
			table = b[e.offset : e.offset+e.origLength]
		} else {
			if err := checkPlausibility(int(e.compLength), e.origLength); err != nil {
				return nil, fmt.Errorf("%s: %w", e.tag, err)
			}
			table, err = decompress(b[e.offset:e.offset+e.compLength], e.origLength)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.tag, err)
			}
			if uint32(len(table)) != e.origLength {
				return nil, fmt.Errorf("%s: decompressed size does not match declared original length: %w", e.tag, ErrInvalidFontData)
			}
		}

		if err := verifyWOFF1Checksum(e.tag, table, e.origChecksum); err != nil {
			return nil, err
		}

		// glyf/loca have no transform concept in WOFF 1.0; force the shared
		// tableDirEntry.transformed() polarity rule to report "untransformed"
		// for every tag here (SPEC_FULL.md §9 "Resolved (source ambiguity)").
		transformVersion := 0
		if e.tag == "glyf" || e.tag == "loca" {
			transformVersion = 1
		}

		offset := uint32(len(data))
		data = append(data, table...)
		entries[i] = tableDirEntry{tag: e.tag, origLength: e.origLength, transformVersion: transformVersion, offset: offset}
	}

	font := fontEntry{flavor: hdr.flavor, tableIndices: make([]int, len(entries))}
	for i := range entries {
		font.tableIndices[i] = i
	}
	if err := resolveFontIndices(&font, entries); err != nil {
		return nil, err
	}

	if hdr.totalSfntSize > MaxMemory {
		return nil, ErrExceedsMemory
	}
	out, err := assemble(data, entries, []fontEntry{font}, hdr)
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != hdr.totalSfntSize {
		return nil, fmt.Errorf("reconstructed size does not match declared totalSfntSize: %w", ErrInvalidFontData)
	}
	return out, nil
}
