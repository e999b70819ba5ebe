package registry

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

func utf16leBytes(s string) []byte {
	u := utf16.Encode([]rune(s))
	out := make([]byte, len(u)*2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], v)
	}
	return out
}

// addLeafKeyWithClass appends a childless key carrying a class-name
// string (the boot-key derivation reads SYSTEM's Lsa\{JD,Skew1,GBG,
// Data} class names, spec.md §4.10).
func addLeafKeyWithClass(b *hiveBuilder, name, classHex string) uint32 {
	cls := utf16leBytes(classHex)
	clsOff := b.addCell(cls, true)
	return b.addCell(nkBytes(name, 0, cellOffsetNone, 0, cellOffsetNone, 0, clsOff, uint16(len(cls)), 0), true)
}

// addParentKey appends a key whose subkeys are exactly the given
// already-built child offsets.
func addParentKey(b *hiveBuilder, name string, children []uint32) uint32 {
	lf := b.addCell(lfBytes(children), true)
	return b.addCell(nkBytes(name, 0, lf, uint32(len(children)), cellOffsetNone, 0, cellOffsetNone, 0, 0), true)
}

func buildSystemHiveForBootKey() []byte {
	b := &hiveBuilder{}

	jd := addLeafKeyWithClass(b, "JD", "00010203")
	skew1 := addLeafKeyWithClass(b, "Skew1", "04050607")
	gbg := addLeafKeyWithClass(b, "GBG", "08090a0b")
	data := addLeafKeyWithClass(b, "Data", "0c0d0e0f")
	lsa := addParentKey(b, "Lsa", []uint32{jd, skew1, gbg, data})
	control := addParentKey(b, "Control", []uint32{lsa})
	controlSet001 := addParentKey(b, "ControlSet001", []uint32{control})

	currentVal := b.addCell(vkDWORDBytes("Current", 1), true)
	currentList := b.addCell(valueListBytes([]uint32{currentVal}), true)
	selectKey := b.addCell(nkBytes("Select", 0, cellOffsetNone, 0, currentList, 1, cellOffsetNone, 0, 0), true)

	rootLf := b.addCell(lfBytes([]uint32{controlSet001, selectKey}), true)
	rootOff := uint32(32 + len(b.buf))
	b.addCell(nkBytes("ROOT", 0, rootLf, 2, cellOffsetNone, 0, cellOffsetNone, 0, 0), true)
	return b.build(rootOff)
}

func TestBootKeyDerivation(t *testing.T) {
	raw := buildSystemHiveForBootKey()
	h, err := Open(memSource(raw), `HKLM\SYSTEM`)
	require.NoError(t, err)

	key, err := BootKey(h)
	require.NoError(t, err)
	require.Equal(t, []byte{8, 5, 4, 2, 11, 9, 13, 3, 0, 6, 1, 12, 14, 10, 15, 7}, key)
}
