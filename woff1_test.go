package woff2

import (
	"encoding/binary"
	"testing"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/test"
)

func buildMinimalWOFF1(head, maxp []byte) []byte {
	frontSize := uint32(44 + 20*2)

	dir := parse.NewBinaryWriter([]byte{})
	dir.WriteUint32(stringToTag("head"))
	dir.WriteUint32(frontSize)
	dir.WriteUint32(uint32(len(head)))
	dir.WriteUint32(uint32(len(head)))
	dir.WriteUint32(calcChecksum(head))
	dir.WriteUint32(stringToTag("maxp"))
	dir.WriteUint32(frontSize + uint32(len(head)))
	dir.WriteUint32(uint32(len(maxp)))
	dir.WriteUint32(uint32(len(maxp)))
	dir.WriteUint32(calcChecksum(maxp))

	w := parse.NewBinaryWriter([]byte{})
	w.WriteBytes([]byte("wOFF"))
	w.WriteUint32(stringToTag("true"))
	w.WriteUint32(0) // length, patched below
	w.WriteUint16(2) // numTables
	w.WriteUint16(0) // reserved
	w.WriteUint32(0) // totalSfntSize, patched below
	w.WriteUint16(1) // majorVersion
	w.WriteUint16(0) // minorVersion
	w.WriteUint32(0) // metaOffset
	w.WriteUint32(0) // metaLength
	w.WriteUint32(0) // metaOrigLength
	w.WriteUint32(0) // privOffset
	w.WriteUint32(0) // privLength
	w.WriteBytes(dir.Bytes())
	w.WriteBytes(head)
	w.WriteBytes(maxp)
	file := w.Bytes()

	binary.BigEndian.PutUint32(file[8:], uint32(len(file)))

	numTables := uint32(2)
	sfntOffset := 12 + 16*numTables
	sfntOffset += pad4(uint32(len(head))) + uint32(len(head))
	sfntOffset += pad4(uint32(len(maxp))) + uint32(len(maxp))
	binary.BigEndian.PutUint32(file[16:], sfntOffset)
	return file
}

func TestParseWOFFMinimal(t *testing.T) {
	head := make([]byte, 54)
	head[0], head[1], head[2], head[3] = 0x00, 0x01, 0x00, 0x00
	maxp := make([]byte, 6)
	binary.BigEndian.PutUint32(maxp[0:], 0x00010000)
	binary.BigEndian.PutUint16(maxp[4:], 7)

	file := buildMinimalWOFF1(head, maxp)
	out, err := ParseWOFF(file)
	test.Error(t, err)
	test.T(t, string(out[0:4]), "true")

	maxpEntryOff := uint32(12) + 16
	maxpTableOffset := binary.BigEndian.Uint32(out[maxpEntryOff+8:])
	test.T(t, binary.BigEndian.Uint16(out[maxpTableOffset+4:]), uint16(7))
}

func TestParseWOFFRejectsCollection(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file := buildMinimalWOFF1(head, maxp)
	binary.BigEndian.PutUint32(file[4:], stringToTag("ttcf"))
	_, err := ParseWOFF(file)
	test.T(t, err.Error(), "WOFF 1.0 does not support font collections: invalid font data")
}

func TestParseWOFFBadChecksum(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file := buildMinimalWOFF1(head, maxp)
	// Corrupt maxp's declared origChecksum (second directory entry, last field).
	binary.BigEndian.PutUint32(file[44+20+16:], 0xBADBAD00)
	_, err := ParseWOFF(file)
	test.T(t, err.Error(), "maxp: bad checksum")
}

func TestParseWOFFImplausibleRatio(t *testing.T) {
	head := make([]byte, 54)
	maxp := make([]byte, 6)
	file := buildMinimalWOFF1(head, maxp)
	// Declare a totalSfntSize wildly out of proportion to the actual file
	// size, exercising the container-level plausibility guard end-to-end
	// through ParseWOFF rather than just the isolated checkPlausibility
	// helper (SPEC_FULL.md §4.5).
	binary.BigEndian.PutUint32(file[16:], uint32(len(file))*1000)
	_, err := ParseWOFF(file)
	test.T(t, err.Error(), "compression ratio 1000.0 exceeds plausible maximum")
}

func TestVerifyWOFF1ChecksumHead(t *testing.T) {
	head := make([]byte, 54)
	binary.BigEndian.PutUint32(head[8:], 0x12345678) // checkSumAdjustment, excluded from the checksum
	zeroed := make([]byte, len(head))
	copy(zeroed, head)
	zeroed[8], zeroed[9], zeroed[10], zeroed[11] = 0, 0, 0, 0
	err := verifyWOFF1Checksum("head", head, calcChecksum(zeroed))
	test.Error(t, err)
}
