package woff2

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// tableDirEntry is one WOFF2 table-directory entry, resolved against the
// known-tags table and carrying the running offset into the decompressed
// payload (SPEC_FULL.md §3, §4.3).
type tableDirEntry struct {
	tag              string
	origLength       uint32
	transformVersion int
	transformLength  uint32 // 0 when untransformed
	offset           uint32 // offset into the decompressed payload
}

// transformed reports whether this entry carries transformed data, following
// the W3C specification's convention rather than the ambiguous reading some
// source implementations invite (SPEC_FULL.md §4.3, §9 "Resolved (source
// ambiguity)"): for glyf/loca, version 0 means transformed; for every other
// tag version 0 means untransformed and a non-zero version (only 1, for
// hmtx, is understood by this decoder) means transformed.
func (e *tableDirEntry) transformed() bool {
	if e.tag == "glyf" || e.tag == "loca" {
		return e.transformVersion == 0
	}
	return e.transformVersion != 0
}

// dataLength is the number of decompressed-payload bytes this entry occupies.
func (e *tableDirEntry) dataLength() uint32 {
	if e.transformed() {
		return e.transformLength
	}
	return e.origLength
}

// parseWOFF2Directory reads the N-entry WOFF2 table directory that follows
// the fixed header and returns the shared table-directory vector together
// with the total decompressed payload size it implies.
func parseWOFF2Directory(r *parse.BinaryReader, numTables uint16, flavor uint32) ([]tableDirEntry, uint32, error) {
	entries := make([]tableDirEntry, 0, numTables)
	seen := map[string]int{}
	var uncompressedSize uint32
	for i := 0; i < int(numTables); i++ {
		flags := r.ReadUint8()
		if r.EOF() {
			return nil, 0, ErrInvalidFontData
		}
		tagIndex := int(flags & 0x3F)
		transformVersion := int((flags & 0xC0) >> 6)

		var tag string
		if tagIndex == tagLiteral {
			tag = tagToString(r.ReadUint32())
			if r.EOF() {
				return nil, 0, ErrInvalidFontData
			}
		} else {
			tag = knownTags[tagIndex]
		}
		if _, ok := seen[tag]; ok {
			return nil, 0, fmt.Errorf("%s: table defined more than once", tag)
		}

		origLength, err := readUintBase128(r)
		if err != nil {
			return nil, 0, err
		}

		entry := tableDirEntry{tag: tag, origLength: origLength, transformVersion: transformVersion}
		if entry.transformed() {
			transformLength, err := readUintBase128(r)
			if err != nil {
				return nil, 0, err
			}
			if tag != "loca" && transformLength == 0 {
				return nil, 0, fmt.Errorf("%s: transformLength must be set", tag)
			}
			if tag == "loca" && transformLength != 0 {
				return nil, 0, fmt.Errorf("loca: transformLength must be zero")
			}
			entry.transformLength = transformLength
		}

		n := entry.dataLength()
		if math.MaxUint32-uncompressedSize < n {
			return nil, 0, ErrInvalidFontData
		}
		entry.offset = uncompressedSize
		uncompressedSize += n

		seen[tag] = len(entries)
		entries = append(entries, entry)
	}

	iGlyf, hasGlyf := seen["glyf"]
	iLoca, hasLoca := seen["loca"]
	if hasGlyf != hasLoca || (hasGlyf && entries[iGlyf].transformVersion != entries[iLoca].transformVersion) {
		return nil, 0, fmt.Errorf("glyf and loca tables must be both present and either be both transformed or untransformed")
	}
	if hasGlyf && iLoca != iGlyf+1 {
		return nil, 0, fmt.Errorf("loca: must come after glyf table")
	}
	return entries, uncompressedSize, nil
}
