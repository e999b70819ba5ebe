package carve

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct{ data []byte }

func (f fakeSource) Size() int64 { return int64(len(f.data)) }
func (f fakeSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[off:])
	return n, nil
}

type hit struct {
	Offset int64
}

func sigCarver(buf []byte, base int64) []Yield[hit] {
	var out []Yield[hit]
	idx := 0
	for {
		rel := bytes.Index(buf[idx:], []byte("SIG!"))
		if rel < 0 {
			break
		}
		abs := base + int64(idx+rel)
		out = append(out, Rec(&hit{Offset: abs}))
		idx += rel + 4
	}
	return out
}

func TestDriverFindsSignatures(t *testing.T) {
	data := bytes.Repeat([]byte("xxxx"), 10)
	data = append(data, []byte("SIG!")...)
	data = append(data, bytes.Repeat([]byte("y"), 100)...)
	data = append(data, []byte("SIG!")...)

	src := fakeSource{data: data}
	var got []hit
	d := Driver[hit]{ChunkSize: 32, CarryOver: 8}
	err := d.Run(src, sigCarver, func(h *hit) string { return fmt.Sprintf("%d", h.Offset) },
		func(h hit) (bool, error) { got = append(got, h); return true, nil }, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestDriverDedupesRepeatedHitsAcrossCarryOver(t *testing.T) {
	data := append([]byte("SIG!"), bytes.Repeat([]byte("z"), 4)...)
	src := fakeSource{data: data}
	calls := 0
	d := Driver[hit]{ChunkSize: 4, CarryOver: 4}
	err := d.Run(src, sigCarver, func(h *hit) string { return fmt.Sprintf("%d", h.Offset) },
		func(h hit) (bool, error) { calls++; return true, nil }, nil)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
