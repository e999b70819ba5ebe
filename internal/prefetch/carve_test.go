package prefetch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMAMWrapped wraps plain (an uncompressed SCCA stream) in a MAM
// header whose Huffman table gives every literal byte value 0-255 an
// equal 9-bit code in ascending order — since buildHuffmanTree assigns
// canonical codes in increasing (length, symbol) order, a symbol's
// code at uniform length 9 equals its own byte value, making the
// encode side a straight 9-bits-per-byte pack with no match tokens.
func buildMAMWrapped(plain []byte) []byte {
	lengths := make(map[int]uint8, 256)
	for b := 0; b < 256; b++ {
		lengths[b] = 9
	}
	table := packCodeLengths(lengths)

	groups := make([][2]int, len(plain))
	for i, b := range plain {
		groups[i] = [2]int{int(b), 9}
	}
	tokenStream := writeBits(groups)

	buf := make([]byte, 8)
	copy(buf[0:3], "MAM")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(plain)))
	buf = append(buf, table...)
	buf = append(buf, tokenStream...)
	// Pad with a zero-byte tail so the carver's zero-run candidate-end
	// heuristic has a truncation point to find, as a real carved image
	// would have slack space following the compressed stream.
	buf = append(buf, make([]byte, 16)...)
	return buf
}

func TestCarverFindsMAMWrappedPrefetchFile(t *testing.T) {
	var runTimes [8]uint64
	runTimes[0] = filetimeFor(19000)
	plain := buildSCCA("SVCHOST.EXE", 7, 2, runTimes, []metricFixture{
		{filename: `\DEVICE\HARDDISKVOLUME1\WINDOWS\SYSTEM32\SVCHOST.EXE`, fileRef: (2 << 48) | 55},
	})
	wrapped := buildMAMWrapped(plain)

	// Place the MAM candidate at a 512-byte-aligned offset within a
	// larger buffer, as Carver's scan stride expects.
	buf := make([]byte, 1024+len(wrapped))
	copy(buf[512:], wrapped)

	out := Carver(buf, 0)
	require.Len(t, out, 1)
	require.Equal(t, "SVCHOST.EXE", out[0].Record.ExecutableFilename)
	require.True(t, out[0].Record.Carved)
}

func TestCarverSkipsNonMAMAlignedData(t *testing.T) {
	buf := make([]byte, 2048)
	out := Carver(buf, 0)
	require.Len(t, out, 0)
}
