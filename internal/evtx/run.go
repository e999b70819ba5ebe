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

package evtx

import (
	"fmt"

	"github.com/forensiccorpus/corpus/internal/carve"
	"github.com/forensiccorpus/corpus/internal/record"
)

// RowSink persists one normalized Event; TimelineSink persists one
// derived timeline entry (spec.md §4.11 "Producers ... call insert").
type RowSink func(record.Event) (bool, error)
type TimelineSink func(record.Timeline) (bool, error)

// Prepare runs the --prepare_events action: structured chunk/record
// parse of a whole .evtx file, normalizing and emitting one timeline
// row per event.
func Prepare(src carve.ByteSource, rows RowSink, events TimelineSink, progress carve.ProgressFunc) error {
	return Parse(src, func(ev record.Event) error {
		return emit(ev, rows, events)
	}, progress)
}

// Carve runs the --carve_events action: a 512-byte-aligned scan of raw
// partition bytes for ElfChnk\0 signatures, independent of any
// directory structure.
func Carve(src carve.ByteSource, rows RowSink, events TimelineSink, progress carve.ProgressFunc) error {
	d := carve.DefaultDriver[record.Event]()
	return d.Run(src, Carver, func(ev *record.Event) string {
		return fmt.Sprintf("%s|%s|%d", ev.Channel, ev.Computer, ev.EventRecordID)
	}, func(ev record.Event) (bool, error) {
		return true, emit(ev, rows, events)
	}, progress)
}

func emit(ev record.Event, rows RowSink, events TimelineSink) error {
	inserted, err := rows(ev)
	if err != nil {
		return fmt.Errorf("evtx: write row: %w", err)
	}
	if !inserted {
		return nil
	}
	tl := record.Timeline{
		Timestamp:   ev.Timestamp,
		EventSource: "EVTX",
		EventType:   fmt.Sprintf("EVENT_%d", ev.EventID),
		Param1:      ev.Provider,
		Param2:      ev.Channel,
		Param3:      ev.Computer,
	}
	if _, err := events(tl); err != nil {
		return fmt.Errorf("evtx: emit timeline event: %w", err)
	}
	return nil
}
