package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forensiccorpus/corpus/internal/record"
)

func buildSimpleHive() []byte {
	b := &hiveBuilder{}
	valOff := b.addCell(vkDWORDBytes("TestValue", 42), true)
	vlOff := b.addCell(valueListBytes([]uint32{valOff}), true)
	childOff := b.addCell(nkBytes("TestKey", 0, cellOffsetNone, 0, vlOff, 1, cellOffsetNone, 0, 0), true)
	lfOff := b.addCell(lfBytes([]uint32{childOff}), true)
	rootOff := uint32(32 + len(b.buf))
	root := nkBytes("ROOT", 0, lfOff, 1, cellOffsetNone, 0, cellOffsetNone, 0, 0)
	b.addCell(root, true)
	return b.build(rootOff)
}

func TestOpenAndWalkLive(t *testing.T) {
	raw := buildSimpleHive()
	h, err := Open(memSource(raw), `HKLM\SYSTEM`)
	require.NoError(t, err)

	var entries []record.RegistryEntry
	err = h.WalkLive(func(e record.RegistryEntry) (bool, error) {
		entries = append(entries, e)
		return true, nil
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var keyRow, valRow *record.RegistryEntry
	for i := range entries {
		if entries[i].IsKey {
			keyRow = &entries[i]
		} else {
			valRow = &entries[i]
		}
	}
	require.NotNil(t, keyRow)
	require.NotNil(t, valRow)
	require.Equal(t, `HKLM\SYSTEM`, keyRow.ParentKey)
	require.Equal(t, "TestKey", keyRow.Name)
	require.Equal(t, `HKLM\SYSTEM\TestKey`, valRow.ParentKey)
	require.Equal(t, "TestValue", valRow.Name)
	require.Equal(t, "dword", valRow.Type)
	require.Equal(t, "42", valRow.Content)
}

func TestCarveDeletedFindsOrphanedKey(t *testing.T) {
	b := &hiveBuilder{}
	// A live root with no children, followed by a large free cell that
	// still carries the bytes of a once-allocated "nk" cell.
	rootOff := uint32(32 + len(b.buf))
	b.addCell(nkBytes("ROOT", 0, cellOffsetNone, 0, cellOffsetNone, 0, cellOffsetNone, 0, 0), true)
	deletedParent := uint32(0x7fffffff) // not reachable from the live tree
	deleted := nkBytes("GhostKey", deletedParent, cellOffsetNone, 0, cellOffsetNone, 0, cellOffsetNone, 0, 0)
	b.addCell(deleted, false) // unallocated: a free cell carrying stale bytes
	raw := b.build(rootOff)

	h, err := Open(memSource(raw), `HKLM\SYSTEM`)
	require.NoError(t, err)
	require.NoError(t, h.WalkLive(func(record.RegistryEntry) (bool, error) { return true, nil }))

	var carved []record.RegistryEntry
	require.NoError(t, h.CarveDeleted(func(e record.RegistryEntry) (bool, error) {
		carved = append(carved, e)
		return true, nil
	}))
	require.Len(t, carved, 1)
	require.Equal(t, "GhostKey", carved[0].Name)
	require.True(t, carved[0].Deleted)
	require.Contains(t, carved[0].ParentKey, parentUnknownTag)
}
