package partitionctx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	name   string
	err    error
	order  *[]string
	mu     *sync.Mutex
}

func (f *fakeCloser) Close() error {
	f.mu.Lock()
	*f.order = append(*f.order, f.name)
	f.mu.Unlock()
	return f.err
}

func TestScopeClosesInReverseOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	s := NewScope()
	s.Track(&fakeCloser{name: "image", order: &order, mu: &mu})
	s.Track(&fakeCloser{name: "fs", order: &order, mu: &mu})
	s.Track(&fakeCloser{name: "store", order: &order, mu: &mu})

	require.NoError(t, s.Close())
	require.Equal(t, []string{"store", "fs", "image"}, order)
}

func TestScopeReportsFirstError(t *testing.T) {
	var order []string
	var mu sync.Mutex
	s := NewScope()
	wantErr := errors.New("boom")
	s.Track(&fakeCloser{name: "image", order: &order, mu: &mu, err: wantErr})
	s.Track(&fakeCloser{name: "fs", order: &order, mu: &mu})

	err := s.Close()
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
}

func TestScopeFailTakesPrecedence(t *testing.T) {
	s := NewScope()
	wantErr := errors.New("pass failed")
	s.Fail(wantErr)
	require.Equal(t, wantErr, s.Close())
}

func TestRunAcrossPartitionsCollectsFirstError(t *testing.T) {
	wantErr := errors.New("partition 2 failed")
	err := RunAcrossPartitions(context.Background(), []int{0, 1, 2}, func(ctx context.Context, idx int) error {
		if idx == 2 {
			return wantErr
		}
		return nil
	})
	require.ErrorIs(t, err, wantErr)
}
