package woff2

import (
	"encoding/binary"
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// patch is a deferred write of a big-endian u32 into the finished output
// buffer. Directory entries are reserved before the table bodies they
// describe are written, so their checksum/offset/length fields (and, for
// head, checkSumAdjustment) cannot be filled in until the whole buffer is
// final — applying them eagerly against an in-progress *parse.BinaryWriter
// would risk writing into a backing array the writer has since outgrown and
// replaced.
type patch struct {
	offset uint32
	value  uint32
}

// finalizedTable is the destination offset, length and checksum of a table
// once its body has been written to the output, keyed by the shared
// table-directory index so it can be looked up again when a later font in a
// TrueType Collection reuses it (SPEC_FULL.md §3 "Reconstructed table
// record", §9 "Shared-table reuse across a collection").
type finalizedTable struct {
	offset   uint32
	length   uint32
	checksum uint32
}

// glyphAux is what hmtx reconstruction needs out of a font's glyf/loca pair,
// cached per shared directory index alongside finalizedTable so a later font
// reusing glyf/loca does not need to redecode them.
type glyphAux struct {
	numGlyphs   uint16
	indexFormat uint16
	xMins       []int16
}

// reconstructor holds the state threaded through the reconstruction of every
// font in a (possibly single-font) collection: the decompressed payload, the
// shared table directory, and the caches that implement table reuse
// (SPEC_FULL.md §4.8).
type reconstructor struct {
	data      []byte
	entries   []tableDirEntry
	finalized map[int]*finalizedTable
	glyfAux   map[int]*glyphAux
	numHM     map[int]uint16 // hhea dir index -> numberOfHMetrics
	numGlyphs map[int]uint16 // maxp dir index -> numGlyphs
}

func newReconstructor(data []byte, entries []tableDirEntry) *reconstructor {
	return &reconstructor{
		data:      data,
		entries:   entries,
		finalized: map[int]*finalizedTable{},
		glyfAux:   map[int]*glyphAux{},
		numHM:     map[int]uint16{},
		numGlyphs: map[int]uint16{},
	}
}

// rawEntryBytes returns an entry's raw (still-transformed, for glyf/loca/hmtx)
// span within the decompressed payload.
func (rc *reconstructor) rawEntryBytes(idx int) ([]byte, error) {
	e := &rc.entries[idx]
	n := e.dataLength()
	if uint32(len(rc.data))-e.offset < n {
		return nil, ErrInvalidFontData
	}
	return rc.data[e.offset : e.offset+n], nil
}

// reconstructFont processes one font's tables in sorted-tag order, writing
// newly-finalized table bodies to w and queuing patches for dirOffsets (a
// map from tag to the absolute output offset of that tag's 16-byte directory
// entry, already populated with the tag itself by the output assembler) with
// checksum/offset/length. It returns the sum of this font's table checksums
// and the absolute output offset of its head table; the caller combines the
// former with the checksum of the font's own offset-table-and-directory
// region to derive `head.checkSumAdjustment` (SPEC_FULL.md §4.8).
func (rc *reconstructor) reconstructFont(w *parse.BinaryWriter, font *fontEntry, dirOffsets map[string]uint32, patches *[]patch) (uint32, uint32, error) {
	tags := font.tags(rc.entries)
	order := make([]int, len(tags))
	for i := range order {
		order[i] = i
	}
	sortByTag(order, tags)

	iHead, hasHead := -1, false
	var tableChecksumSum uint32
	for _, pos := range order {
		dirIdx := font.tableIndices[pos]
		tag := rc.entries[dirIdx].tag

		ft, isNew, err := rc.finalizeTable(w, font, dirIdx, tag)
		if err != nil {
			return 0, 0, fmt.Errorf("%s: %w", tag, err)
		}
		if tag == "head" {
			iHead, hasHead = dirIdx, true
			if !isNew {
				return 0, 0, fmt.Errorf("head: cannot be shared across collection fonts")
			}
		}

		entryOffset, ok := dirOffsets[tag]
		if !ok {
			return 0, 0, fmt.Errorf("%s: no directory slot reserved", tag)
		}
		*patches = append(*patches,
			patch{entryOffset + 4, ft.checksum},
			patch{entryOffset + 8, ft.offset},
			patch{entryOffset + 12, ft.length},
		)
		// Each table's checksum folds into this font's checkSumAdjustment
		// regardless of whether its bytes were freshly written or reused
		// from an earlier font in the collection (Checksum Law,
		// SPEC_FULL.md §8).
		tableChecksumSum += ft.checksum
	}
	if !hasHead {
		return 0, 0, fmt.Errorf("head: must be present")
	}
	headFinal := rc.finalized[iHead]
	return tableChecksumSum, headFinal.offset, nil
}

// finalizeTable returns the finalized location of dirIdx's table, decoding
// and writing it to w if this is the first time it is encountered (isNew),
// or returning the cached record if a previous font already finalized it.
func (rc *reconstructor) finalizeTable(w *parse.BinaryWriter, font *fontEntry, dirIdx int, tag string) (*finalizedTable, bool, error) {
	if ft, ok := rc.finalized[dirIdx]; ok {
		return ft, false, nil
	}

	e := &rc.entries[dirIdx]
	var body []byte
	switch {
	case tag == "glyf" && e.transformed():
		iLoca, err := rc.pairedLoca(dirIdx)
		if err != nil {
			return nil, false, err
		}
		raw, err := rc.rawEntryBytes(dirIdx)
		if err != nil {
			return nil, false, err
		}
		res, err := reconstructGlyfLoca(raw, rc.entries[iLoca].origLength)
		if err != nil {
			return nil, false, err
		}
		rc.glyfAux[dirIdx] = &glyphAux{numGlyphs: res.numGlyphs, indexFormat: res.indexFormat, xMins: res.xMins}

		body = res.glyf
		locaFt, err := rc.writeTable(w, res.loca)
		if err != nil {
			return nil, false, err
		}
		rc.finalized[iLoca] = locaFt

	case tag == "loca" && e.transformed():
		iGlyf, ok := rc.sharedGlyfFor(dirIdx)
		if !ok {
			return nil, false, fmt.Errorf("loca: must come after glyf table")
		}
		if _, err := rc.finalizeTable(w, font, iGlyf, "glyf"); err != nil {
			return nil, false, err
		}
		if ft, ok := rc.finalized[dirIdx]; ok {
			return ft, false, nil
		}
		return nil, false, fmt.Errorf("loca: was not produced by glyf reconstruction")

	case tag == "hmtx" && e.transformVersion == 1:
		iHhea, iMaxp, iGlyf, err := rc.hmtxPrereqs(font, dirIdx)
		if err != nil {
			return nil, false, err
		}
		numHM, err := rc.resolveNumHMetrics(w, font, iHhea)
		if err != nil {
			return nil, false, err
		}
		numGlyphs, err := rc.resolveNumGlyphs(w, font, iMaxp)
		if err != nil {
			return nil, false, err
		}
		aux, err := rc.resolveGlyfAux(w, font, iGlyf, numGlyphs)
		if err != nil {
			return nil, false, err
		}
		raw, err := rc.rawEntryBytes(dirIdx)
		if err != nil {
			return nil, false, err
		}
		body, err = reconstructHmtx(raw, numGlyphs, numHM, aux.xMins)
		if err != nil {
			return nil, false, err
		}

	case e.transformed():
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedTransform, e.transformVersion)

	default:
		raw, err := rc.rawEntryBytes(dirIdx)
		if err != nil {
			return nil, false, err
		}
		if tag == "head" {
			if len(raw) < 18 {
				return nil, false, fmt.Errorf("head: %w", ErrInvalidFontData)
			}
			head := make([]byte, len(raw))
			copy(head, raw)
			binary.BigEndian.PutUint32(head[8:], 0) // clear checkSumAdjustment
			body = head
		} else {
			body = raw
		}
	}

	ft, err := rc.writeTable(w, body)
	if err != nil {
		return nil, false, err
	}
	rc.finalized[dirIdx] = ft
	return ft, true, nil
}

// writeTable appends a 4-byte-padded table body to w and records its
// checksum (computed over the padded bytes, per the Checksum Law).
func (rc *reconstructor) writeTable(w *parse.BinaryWriter, body []byte) (*finalizedTable, error) {
	offset := w.Len()
	w.WriteBytes(body)
	padding := pad4(uint32(len(body)))
	for i := uint32(0); i < padding; i++ {
		w.WriteUint8(0)
	}
	length := uint32(len(body))
	checksum := calcChecksum(w.Bytes()[offset : offset+length+padding])
	return &finalizedTable{offset: offset, length: length, checksum: checksum}, nil
}

// pairedLoca returns the shared directory index of the loca entry paired
// with the glyf entry at dirIdx (already validated adjacent by
// parseWOFF2Directory).
func (rc *reconstructor) pairedLoca(dirIdx int) (int, error) {
	if dirIdx+1 >= len(rc.entries) || rc.entries[dirIdx+1].tag != "loca" {
		return 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	return dirIdx + 1, nil
}

// sharedGlyfFor returns the glyf entry paired with the loca entry at dirIdx.
func (rc *reconstructor) sharedGlyfFor(dirIdx int) (int, bool) {
	if dirIdx == 0 || rc.entries[dirIdx-1].tag != "glyf" {
		return 0, false
	}
	return dirIdx - 1, true
}

// hmtxPrereqs locates this font's hhea, maxp and glyf shared-directory
// indices, required before hmtx can be reconstructed (SPEC_FULL.md §4.7).
func (rc *reconstructor) hmtxPrereqs(font *fontEntry, hmtxDirIdx int) (iHhea, iMaxp, iGlyf int, err error) {
	if !font.hasHhea {
		return 0, 0, 0, fmt.Errorf("hmtx: hhea table must be defined in order to rebuild hmtx table")
	}
	if !font.hasGlyf {
		return 0, 0, 0, fmt.Errorf("hmtx: glyf table must be defined in order to rebuild hmtx table")
	}
	iMaxpPos, ok := findTag(font, rc.entries, "maxp")
	if !ok {
		return 0, 0, 0, fmt.Errorf("hmtx: maxp table must be defined in order to rebuild hmtx table")
	}
	return font.tableIndices[font.iHhea], font.tableIndices[iMaxpPos], font.tableIndices[font.iGlyf], nil
}

func findTag(font *fontEntry, entries []tableDirEntry, tag string) (int, bool) {
	for pos, idx := range font.tableIndices {
		if entries[idx].tag == tag {
			return pos, true
		}
	}
	return 0, false
}

// resolveNumHMetrics finalizes (if needed) the hhea table at dirIdx and
// returns its numberOfHMetrics field, caching the result for reuse.
func (rc *reconstructor) resolveNumHMetrics(w *parse.BinaryWriter, font *fontEntry, dirIdx int) (uint16, error) {
	if n, ok := rc.numHM[dirIdx]; ok {
		return n, nil
	}
	if _, _, err := rc.finalizeTable(w, font, dirIdx, "hhea"); err != nil {
		return 0, err
	}
	raw, err := rc.rawEntryBytes(dirIdx)
	if err != nil {
		return 0, err
	}
	n, err := readNumHMetrics(raw)
	if err != nil {
		return 0, err
	}
	rc.numHM[dirIdx] = n
	return n, nil
}

// resolveNumGlyphs finalizes (if needed) the maxp table at dirIdx and
// returns its numGlyphs field, caching the result for reuse.
func (rc *reconstructor) resolveNumGlyphs(w *parse.BinaryWriter, font *fontEntry, dirIdx int) (uint16, error) {
	if n, ok := rc.numGlyphs[dirIdx]; ok {
		return n, nil
	}
	if _, _, err := rc.finalizeTable(w, font, dirIdx, "maxp"); err != nil {
		return 0, err
	}
	raw, err := rc.rawEntryBytes(dirIdx)
	if err != nil {
		return 0, err
	}
	n, err := readNumGlyphs(raw)
	if err != nil {
		return 0, err
	}
	rc.numGlyphs[dirIdx] = n
	return n, nil
}

// resolveGlyfAux finalizes (if needed) the glyf/loca pair at dirIdx and
// returns the per-glyph x_min vector hmtx reconstruction needs, computing it
// directly from the final glyf/loca bytes when glyf itself was untransformed.
func (rc *reconstructor) resolveGlyfAux(w *parse.BinaryWriter, font *fontEntry, dirIdx int, numGlyphs uint16) (*glyphAux, error) {
	if aux, ok := rc.glyfAux[dirIdx]; ok {
		return aux, nil
	}
	if _, _, err := rc.finalizeTable(w, font, dirIdx, "glyf"); err != nil {
		return nil, err
	}
	if aux, ok := rc.glyfAux[dirIdx]; ok {
		return aux, nil
	}
	// glyf was untransformed: no xMins side-effect was produced, so extract
	// x_min directly from the finalized glyf/loca bytes.
	iLoca, err := rc.pairedLoca(dirIdx)
	if err != nil {
		return nil, err
	}
	glyfFt := rc.finalized[dirIdx]
	locaFt := rc.finalized[iLoca]
	glyfBytes := w.Bytes()[glyfFt.offset : glyfFt.offset+glyfFt.length]
	locaBytes := w.Bytes()[locaFt.offset : locaFt.offset+locaFt.length]
	var indexFormat uint16
	if rc.entries[iLoca].origLength == (uint32(numGlyphs)+1)*4 {
		indexFormat = 1
	}
	xMins, err := extractXMins(glyfBytes, locaBytes, indexFormat, numGlyphs)
	if err != nil {
		return nil, err
	}
	aux := &glyphAux{numGlyphs: numGlyphs, indexFormat: indexFormat, xMins: xMins}
	rc.glyfAux[dirIdx] = aux
	return aux, nil
}

// sortByTag sorts order (indices into tags) so tags[order[i]] is ascending,
// matching the reconstructor's canonical per-font processing order
// (SPEC_FULL.md §4.8).
func sortByTag(order []int, tags []string) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && tags[order[j-1]] > tags[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
}
