package timeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forensiccorpus/corpus/internal/record"
	"github.com/forensiccorpus/corpus/internal/store"
	"github.com/stretchr/testify/require"
)

func TestEmitDedupesOnIdentityTupleNotMessage(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "timeline_p1.db"))
	require.NoError(t, err)
	defer st.Close()

	base := record.Timeline{
		Timestamp:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EventSource: "USN",
		EventType:   "FILE_CREATE",
		Param1:      "a.txt",
		Param2:      "/Users",
	}
	inserted, err := st.Emit(base)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := base
	dup.Message = "a different message"
	inserted, err = st.Emit(dup)
	require.NoError(t, err)
	require.False(t, inserted)

	rows, err := st.Select(store.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
