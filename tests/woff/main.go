//go:build gofuzz
// +build gofuzz

package fuzz

import "github.com/tdewolff/woff2"

// Fuzz is a fuzz test.
func Fuzz(data []byte) int {
	_, _ = woff2.ParseWOFF(data)
	return 1
}
