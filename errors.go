package woff2

import "fmt"

// MaxMemory is the maximum memory that can be allocated while reconstructing a font.
var MaxMemory uint32 = 30 * 1024 * 1024

// ErrExceedsMemory is returned if reconstruction would exceed MaxMemory.
var ErrExceedsMemory = fmt.Errorf("memory limit exceeded")

// ErrInvalidFontData is returned if the container or the font data it describes is malformed.
var ErrInvalidFontData = fmt.Errorf("invalid font data")

// ErrUnsupportedTransform is returned when a table directory entry declares a
// transform version this decoder does not know how to invert.
var ErrUnsupportedTransform = fmt.Errorf("unsupported table transform")
