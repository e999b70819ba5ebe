package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        int64     `db:"id,pk"`
	Name      string    `db:"name,index"`
	Weight    float64   `db:"weight"`
	Active    bool      `db:"active"`
	Blob      []byte    `db:"blob"`
	Seen      time.Time `db:"seen"`
}

func openTestStore(t *testing.T) *Store[widget] {
	t.Helper()
	s, err := Open[widget](":memory:", "widget")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndSelectOne(t *testing.T) {
	s := openTestStore(t)
	w := widget{ID: 1, Name: "gear", Weight: 1.5, Active: true, Blob: []byte{1, 2, 3}, Seen: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	inserted, err := s.Insert(w)
	require.NoError(t, err)
	require.True(t, inserted)

	got, ok, err := s.SelectOne(Query{Where: Eq("id", int64(1))})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, w.Name, got.Name)
	require.Equal(t, w.Weight, got.Weight)
	require.Equal(t, w.Active, got.Active)
	require.Equal(t, w.Blob, got.Blob)
	require.True(t, w.Seen.Equal(got.Seen))
}

func TestInsertDuplicatePKIsIgnoredNotErrored(t *testing.T) {
	s := openTestStore(t)
	w := widget{ID: 1, Name: "gear"}
	inserted, err := s.Insert(w)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.Insert(w)
	require.NoError(t, err)
	require.False(t, inserted)

	rows, err := s.Select(Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestFilterAlgebra(t *testing.T) {
	s := openTestStore(t)
	for i := int64(1); i <= 5; i++ {
		_, err := s.Insert(widget{ID: i, Name: "w", Weight: float64(i)})
		require.NoError(t, err)
	}
	rows, err := s.Select(Query{Where: And(Ge("weight", 2.0), Le("weight", 4.0))})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	rows, err = s.Select(Query{Where: In("id", []any{int64(1), int64(5)})})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestUpdateScopedColumns(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(widget{ID: 1, Name: "before", Weight: 1})
	require.NoError(t, err)

	err = s.Update(widget{ID: 1, Name: "after", Weight: 99}, "Name")
	require.NoError(t, err)

	got, ok, err := s.SelectOne(Query{Where: Eq("id", int64(1))})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "after", got.Name)
	require.Equal(t, 1.0, got.Weight) // untouched: Update only scoped to Name
}

func TestForceIndexColumnRejectsNonIndexed(t *testing.T) {
	s := openTestStore(t)
	require.Panics(t, func() {
		_, _ = s.Select(Query{ForceIndex: "weight"})
	})
}
