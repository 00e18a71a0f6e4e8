package woff2

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// kMaxPlausibleCompressionRatio bounds how much larger the decompressed
// payload may be than the compressed input; it defends against a tiny input
// declaring an enormous uncompressed size (SPEC_FULL.md §4.5).
const kMaxPlausibleCompressionRatio = 100.0

// BrotliDecompressor is the capability the WOFF2 decoder uses to turn the
// single concatenated compressed payload into plaintext table bytes. It must
// return the full decompressed data or fail; sizeHint is the declared
// totalSfntSize, an estimate for preallocation, and the caller checks the
// returned length against the table directory. It must not retain the
// compressed slice past the call (SPEC_FULL.md §6, §9 "Codec as capability").
type BrotliDecompressor func(compressed []byte, sizeHint uint32) ([]byte, error)

// defaultBrotliDecompressor is the production BrotliDecompressor, backed by
// github.com/andybalholm/brotli — the same library the donor package's
// ParseWOFF2/WriteWOFF2 already depend on.
func defaultBrotliDecompressor(compressed []byte, sizeHint uint32) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(compressed))
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	return buf.Bytes(), nil
}

// ZlibDecompressor is the WOFF1 counterpart of BrotliDecompressor: each table
// is compressed independently with raw zlib (RFC 1950), per the WOFF 1.0
// specification (SPEC_FULL.md §4.10).
type ZlibDecompressor func(compressed []byte, sizeHint uint32) ([]byte, error)

// defaultZlibDecompressor is the production ZlibDecompressor, backed by
// github.com/klauspost/compress/zlib, a drop-in faster replacement for the
// standard library's compress/zlib used throughout this example corpus.
func defaultZlibDecompressor(compressed []byte, sizeHint uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return buf.Bytes(), nil
}

// checkPlausibility rejects a declared uncompressed size that is wildly out
// of proportion to the compressed input it is claimed to expand from.
func checkPlausibility(compressedLen int, uncompressedSize uint32) error {
	if compressedLen == 0 {
		if uncompressedSize == 0 {
			return nil
		}
		return fmt.Errorf("compression ratio implausible")
	}
	ratio := float64(uncompressedSize) / float64(compressedLen)
	if ratio > kMaxPlausibleCompressionRatio {
		return fmt.Errorf("compression ratio %.1f exceeds plausible maximum", ratio)
	}
	return nil
}
