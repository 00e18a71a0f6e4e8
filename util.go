package woff2

import "encoding/binary"

// pad4 returns the number of zero bytes needed to round n up to a multiple of 4.
func pad4(n uint32) uint32 {
	return (4 - n&3) & 3
}

// calcChecksum computes the big-endian u32 SFNT table checksum: the sum of the
// table's bytes read as big-endian u32s, treating any trailing partial word as
// zero-padded.
func calcChecksum(b []byte) uint32 {
	var sum uint32
	n := len(b) - len(b)%4
	for i := 0; i < n; i += 4 {
		sum += binary.BigEndian.Uint32(b[i : i+4])
	}
	if rem := len(b) - n; rem != 0 {
		var last [4]byte
		copy(last[:], b[n:])
		sum += binary.BigEndian.Uint32(last[:])
	}
	return sum
}

func tagToString(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return string(b)
}

func stringToTag(s string) uint32 {
	return binary.BigEndian.Uint32([]byte(s))
}
