package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// ParseWOFF2 decompresses and reconstructs a byte-exact SFNT/TTC font from a
// WOFF2 container, using the default brotli decompressor (SPEC_FULL.md §6).
func ParseWOFF2(b []byte) ([]byte, error) {
	return ParseWOFF2WithBrotli(b, defaultBrotliDecompressor)
}

// ParseWOFF2WithBrotli is ParseWOFF2 with an injectable brotli decompressor,
// so callers can supply their own implementation or instrumentation
// (SPEC_FULL.md §9 "Codec as capability").
func ParseWOFF2WithBrotli(b []byte, decompress BrotliDecompressor) ([]byte, error) {
	r := parse.NewBinaryReader(b)
	hdr, err := parseHeader(r, b, true)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	entries, uncompressedSize, err := parseWOFF2Directory(r, hdr.numTables, hdr.flavor)
	if err != nil {
		return nil, fmt.Errorf("table directory: %w", err)
	}
	if uncompressedSize > MaxMemory {
		return nil, ErrExceedsMemory
	}

	// The collection directory, when present, sits between the table
	// directory and the compressed payload and is never itself compressed.
	fonts, collectionVersion, err := parseCollectionDirectory(r, hdr.flavor, entries)
	if err != nil {
		return nil, fmt.Errorf("collection directory: %w", err)
	}
	hdr.collectionVersion = collectionVersion

	compressed := r.ReadBytes(hdr.totalCompressedSize)
	if r.EOF() {
		return nil, fmt.Errorf("compressed font data: %w", ErrInvalidFontData)
	}
	if err := checkPlausibility(len(b), hdr.totalSfntSize); err != nil {
		return nil, err
	}

	data, err := decompress(compressed, hdr.totalSfntSize)
	if err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if uint32(len(data)) != uncompressedSize {
		return nil, fmt.Errorf("sum of table lengths must match decompressed font data size: %w", ErrInvalidFontData)
	}

	if hdr.totalSfntSize > MaxMemory {
		return nil, ErrExceedsMemory
	}
	out, err := assemble(data, entries, fonts, hdr)
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != hdr.totalSfntSize {
		return nil, fmt.Errorf("reconstructed size does not match declared totalSfntSize: %w", ErrInvalidFontData)
	}
	return out, nil
}
