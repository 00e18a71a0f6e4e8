package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// fontEntry is one font's view into the shared table-directory pool of a
// TrueType Collection (SPEC_FULL.md §3, §4.4).
type fontEntry struct {
	flavor       uint32
	tableIndices []int // indices into the shared tableDirEntry vector, in WOFF2 collection-directory order
	iHead        int
	iHhea        int
	iGlyf        int
	iLoca        int
	hasHead      bool
	hasHhea      bool
	hasGlyf      bool
	hasLoca      bool
}

// tags returns the table tags this font carries, in the order of its
// table-index list; callers sort them to iterate tables in canonical order
// (SPEC_FULL.md §4.8).
func (f *fontEntry) tags(entries []tableDirEntry) []string {
	tags := make([]string, len(f.tableIndices))
	for i, idx := range f.tableIndices {
		tags[i] = entries[idx].tag
	}
	return tags
}

// parseCollectionDirectory reads the WOFF2 collection directory when flavor
// is "ttcf", or fabricates a synthetic single-font directory otherwise so
// the reconstructor has one code path (SPEC_FULL.md §4.4). The returned
// version is the collection directory's own fixed version field
// (0x00010000 or 0x00020000); it must be carried through to the synthesized
// TTC header unchanged, since it also gates whether a DSIG placeholder block
// is emitted (SPEC_FULL.md §4.9, §9 "Resolved (TTC collection-directory
// version, and DSIG conditionality)"). It is meaningless for non-collection
// input and callers must not use it in that case.
func parseCollectionDirectory(r *parse.BinaryReader, flavor uint32, entries []tableDirEntry) ([]fontEntry, uint32, error) {
	if flavor != stringToTag("ttcf") {
		font := fontEntry{flavor: flavor, tableIndices: make([]int, len(entries))}
		for i := range entries {
			font.tableIndices[i] = i
		}
		if err := resolveFontIndices(&font, entries); err != nil {
			return nil, 0, err
		}
		return []fontEntry{font}, 0, nil
	}

	version := r.ReadUint32()
	if version != 0x00010000 && version != 0x00020000 {
		return nil, 0, fmt.Errorf("collection directory: bad version")
	}
	numFonts := read255Uint16(r)
	if r.EOF() || numFonts == 0 {
		return nil, 0, ErrInvalidFontData
	}

	fonts := make([]fontEntry, 0, numFonts)
	for i := 0; i < int(numFonts); i++ {
		numTables := read255Uint16(r)
		flavor := r.ReadUint32()
		if r.EOF() {
			return nil, 0, ErrInvalidFontData
		}
		font := fontEntry{flavor: flavor, tableIndices: make([]int, numTables)}
		for j := 0; j < int(numTables); j++ {
			idx := read255Uint16(r)
			if r.EOF() || int(idx) >= len(entries) {
				return nil, 0, fmt.Errorf("collection directory: table index out of range")
			}
			font.tableIndices[j] = int(idx)
		}
		if err := resolveFontIndices(&font, entries); err != nil {
			return nil, 0, err
		}
		fonts = append(fonts, font)
	}
	return fonts, version, nil
}

// resolveFontIndices caches the positions of head/hhea/glyf/loca within a
// font's own table-index list. glyf/loca adjacency is a shared
// table-directory invariant (enforced once in parseWOFF2Directory), not a
// per-font one: a font's own table-index list may name them in any order.
func resolveFontIndices(font *fontEntry, entries []tableDirEntry) error {
	for pos, idx := range font.tableIndices {
		switch entries[idx].tag {
		case "head":
			font.iHead, font.hasHead = pos, true
		case "hhea":
			font.iHhea, font.hasHhea = pos, true
		case "glyf":
			font.iGlyf, font.hasGlyf = pos, true
		case "loca":
			font.iLoca, font.hasLoca = pos, true
		}
	}
	if font.hasGlyf != font.hasLoca {
		return fmt.Errorf("glyf and loca must both be present or both be absent in a font")
	}
	return nil
}
