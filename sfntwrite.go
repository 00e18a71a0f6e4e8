package woff2

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/tdewolff/parse/v2"
)

// sfntSearchParams computes the binary-search helper fields (searchRange,
// entrySelector, rangeShift) that belong in every SFNT offset table,
// derived from numTables the same way every OpenType writer does.
func sfntSearchParams(numTables uint16) (searchRange, entrySelector, rangeShift uint16) {
	entries := uint16(1)
	for entries*2 <= numTables {
		entries *= 2
		entrySelector++
	}
	searchRange = entries * 16
	rangeShift = numTables*16 - searchRange
	return
}

// writeOffsetTable appends a 12-byte SFNT offset table followed by
// numTables zero-initialized 16-byte directory entries (tag filled in,
// checksum/offset/length patched later), returning the absolute output
// offset of each tag's directory entry.
func writeOffsetTable(w *parse.BinaryWriter, flavor uint32, tags []string) map[string]uint32 {
	numTables := uint16(len(tags))
	searchRange, entrySelector, rangeShift := sfntSearchParams(numTables)

	w.WriteUint32(flavor)
	w.WriteUint16(numTables)
	w.WriteUint16(searchRange)
	w.WriteUint16(entrySelector)
	w.WriteUint16(rangeShift)

	dirOffsets := make(map[string]uint32, numTables)
	for _, tag := range tags {
		entryOffset := w.Len()
		dirOffsets[tag] = entryOffset
		w.WriteUint32(stringToTag(tag))
		w.WriteUint32(0) // checksum, patched
		w.WriteUint32(0) // offset, patched
		w.WriteUint32(0) // length, patched
	}
	return dirOffsets
}

// assemble reconstructs every font in the collection (or the lone font, for
// a non-collection input) into a single SFNT/TTC byte stream
// (SPEC_FULL.md §4.9).
func assemble(data []byte, entries []tableDirEntry, fonts []fontEntry, hdr *header) ([]byte, error) {
	rc := newReconstructor(data, entries)
	w := parse.NewBinaryWriter(make([]byte, 0, hdr.totalSfntSize))
	var patches []patch

	type pending struct {
		dirOffsets map[string]uint32
		font       *fontEntry
		dirStart   uint32 // offset of this font's offset table
		dirEnd     uint32 // offset just past this font's last directory entry
	}

	var ttcOffsetPatches []uint32
	if hdr.isCollection() {
		if hdr.collectionVersion != 0x00010000 && hdr.collectionVersion != 0x00020000 {
			return nil, fmt.Errorf("collection directory: bad version")
		}
		w.WriteUint32(stringToTag("ttcf"))
		w.WriteUint32(hdr.collectionVersion)
		w.WriteUint32(uint32(len(fonts)))
		for range fonts {
			ttcOffsetPatches = append(ttcOffsetPatches, w.Len())
			w.WriteUint32(0) // offset table pointer, patched
		}
		// DSIG fields are only present in a version-0x00020000 TTC header.
		if hdr.collectionVersion == 0x00020000 {
			w.WriteUint32(0) // DSIG tag
			w.WriteUint32(0) // DSIG length
			w.WriteUint32(0) // DSIG offset
		}
	} else if len(fonts) != 1 {
		return nil, fmt.Errorf("non-collection input must describe exactly one font")
	}

	pendings := make([]pending, len(fonts))
	for i := range fonts {
		font := &fonts[i]
		dirStart := w.Len()
		if hdr.isCollection() {
			patches = append(patches, patch{ttcOffsetPatches[i], dirStart})
		}
		tags := font.tags(entries)
		sort.Strings(tags)
		dirOffsets := writeOffsetTable(w, font.flavor, tags)
		pendings[i] = pending{dirOffsets: dirOffsets, font: font, dirStart: dirStart, dirEnd: w.Len()}
	}

	type headAdjustment struct {
		tableChecksumSum uint32
		headOffset       uint32
		dirStart, dirEnd uint32
	}
	adjustments := make([]headAdjustment, 0, len(fonts))
	for _, p := range pendings {
		tableChecksumSum, headOffset, err := rc.reconstructFont(w, p.font, p.dirOffsets, &patches)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, headAdjustment{tableChecksumSum, headOffset, p.dirStart, p.dirEnd})
	}

	out := w.Bytes()
	// The checksum/offset/length fields of every directory entry must be in
	// place before a font's own offset-table-and-directory region can be
	// checksummed for its checkSumAdjustment (Checksum Law, SPEC_FULL.md §8).
	for _, p := range patches {
		if uint32(len(out))-p.offset < 4 {
			return nil, ErrInvalidFontData
		}
		binary.BigEndian.PutUint32(out[p.offset:], p.value)
	}
	for _, a := range adjustments {
		headerChecksum := calcChecksum(out[a.dirStart:a.dirEnd])
		fileChecksum := a.tableChecksumSum + headerChecksum
		checksumAdjustment := 0xB1B0AFBA - fileChecksum
		if uint32(len(out))-(a.headOffset+8) < 4 {
			return nil, ErrInvalidFontData
		}
		binary.BigEndian.PutUint32(out[a.headOffset+8:], checksumAdjustment)
	}
	return out, nil
}
