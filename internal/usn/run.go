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

package usn

import (
	"fmt"

	"github.com/forensiccorpus/corpus/internal/carve"
	"github.com/forensiccorpus/corpus/internal/record"
)

// RowSink persists one USN row; TimelineSink persists one timeline
// event. Both mirror store.Store[T].Insert's "ignore on duplicate PK"
// contract.
type RowSink func(record.USNRecordV2) (bool, error)
type TimelineSink func(record.Timeline) (bool, error)

// Prepare runs the --prepare_usn action (spec.md §4.7, §6): head-seek
// to the journal's live region, stream-parse every V2 record in
// journal order, resolve each record's parent folder, write the
// normalized row, and project reason-bitmap state into timeline
// events.
func Prepare(src carve.ByteSource, resolver *FolderResolver, proj *Projector, rows RowSink, events TimelineSink, progress carve.ProgressFunc) error {
	start, err := SeekHead(src)
	if err != nil {
		return fmt.Errorf("usn: seek head: %w", err)
	}
	return StreamParse(src, start, func(r Raw) error {
		return handle(r, resolver, proj, rows, events)
	}, progress)
}

// Carve runs the --carve_usn action: a signature-aligned scan of the
// raw partition bytes, independent of $UsnJrnl:$Max (spec.md §4.7
// "Carver"). Carved records still flow through folder resolution and
// timeline projection; spec.md draws no distinction there.
func Carve(src carve.ByteSource, resolver *FolderResolver, proj *Projector, rows RowSink, events TimelineSink, progress carve.ProgressFunc) error {
	d := carve.DefaultDriver[Raw]()
	return d.Run(src, Carver, func(r *Raw) string {
		return fmt.Sprintf("%d", r.USN)
	}, func(r Raw) (bool, error) {
		return true, handle(r, resolver, proj, rows, events)
	}, progress)
}

func handle(r Raw, resolver *FolderResolver, proj *Projector, rows RowSink, events TimelineSink) error {
	folder := resolver.Resolve(r.ParentAddr, r.ParentSeq)
	if _, err := rows(r.ToRecord(folder)); err != nil {
		return fmt.Errorf("usn: write row: %w", err)
	}
	for _, ev := range proj.Project(r, folder) {
		if _, err := events(ev); err != nil {
			return fmt.Errorf("usn: emit timeline event: %w", err)
		}
	}
	return nil
}
