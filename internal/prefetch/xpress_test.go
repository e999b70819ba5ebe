package prefetch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// packCodeLengths packs a map of symbol->bit-length into the 256-byte
// on-wire table (2 symbols per byte, 4 bits each), the inverse of
// unpackCodeLengths.
func packCodeLengths(lengths map[int]uint8) []byte {
	var table [numSymbols]uint8
	for sym, l := range lengths {
		table[sym] = l
	}
	out := make([]byte, huffmanTableBytes)
	for i := range out {
		out[i] = table[i*2] | (table[i*2+1] << 4)
	}
	return out
}

// writeBits packs a slice of (value, width) bit groups MSB-first into
// 16-bit little-endian words, matching bitReader.fill's read order.
func writeBits(groups [][2]int) []byte {
	var bits []int
	for _, g := range groups {
		value, width := g[0], g[1]
		for i := width - 1; i >= 0; i-- {
			bits = append(bits, (value>>i)&1)
		}
	}
	for len(bits)%16 != 0 {
		bits = append(bits, 0)
	}
	out := make([]byte, len(bits)/8)
	for i, b := range bits {
		if b == 1 {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	// bitReader reads 16-bit little-endian words and shifts them in
	// MSB-first; each consecutive pair of bytes must be byte-swapped
	// relative to the big-endian bit-packing above to match
	// binary.LittleEndian.Uint16's byte order.
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}

func TestHuffmanLiteralOnlyRoundTrip(t *testing.T) {
	// Two single-bit-code literals: 'A' (65) = 0, 'B' (66) = 1.
	table := packCodeLengths(map[int]uint8{65: 1, 66: 1})
	tree, err := buildHuffmanTree(unpackCodeLengths(table))
	require.NoError(t, err)

	// Encode "AAB": codes 0, 0, 1.
	stream := writeBits([][2]int{{0, 1}, {0, 1}, {1, 1}})
	br := newBitReader(stream)
	var out []byte
	_, err = decodeChunk(tree, br, &out, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("AAB"), out)
}

func TestOpenDecompressesMAMWrapper(t *testing.T) {
	table := packCodeLengths(map[int]uint8{65: 1, 66: 1})
	tokenStream := writeBits([][2]int{{0, 1}, {1, 1}, {0, 1}, {0, 1}})

	buf := make([]byte, 8)
	copy(buf[0:3], "MAM")
	binary.LittleEndian.PutUint32(buf[4:8], 4) // uncompressed size, buf[7] == 0
	buf = append(buf, table...)
	buf = append(buf, tokenStream...)

	require.True(t, IsMAM(buf))
	out, err := Open(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("ABAA"), out)
}
