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

package prefetch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/forensiccorpus/corpus/internal/carve"
	"github.com/forensiccorpus/corpus/internal/record"
)

// RowSink persists one PrefetchFile row; ExecSink persists one
// Executes row; TimelineSink persists one derived timeline event.
type RowSink func(record.PrefetchFile) (bool, error)
type ExecSink func(record.Executes) (bool, error)
type TimelineSink func(record.Timeline) (bool, error)

// Prepare runs the --prepare_prefetch action: parses one already
// located .pf file (MAM-unwrapping it if necessary), writes its
// PrefetchFile row, and emits one Executes row plus one EXECUTE
// timeline event per nonzero run-time.
func Prepare(raw []byte, rows RowSink, execs ExecSink, events TimelineSink) error {
	plain, err := Open(raw)
	if err != nil {
		return fmt.Errorf("prefetch: open: %w", err)
	}
	parsed, err := ParseSCCA(plain)
	if err != nil {
		return fmt.Errorf("prefetch: parse: %w", err)
	}
	pf, exec, tl, err := Normalize(parsed, false)
	if err != nil {
		return fmt.Errorf("prefetch: normalize: %w", err)
	}
	return emit(pf, exec, tl, rows, execs, events)
}

// Carve runs the --carve_prefetch action: a 512-byte-aligned scan for
// MAM signatures across raw partition bytes, independent of directory
// structure (spec.md §4.8 "Carver").
func Carve(src carve.ByteSource, rows RowSink, execs ExecSink, events TimelineSink, progress carve.ProgressFunc) error {
	d := carve.DefaultDriver[record.PrefetchFile]()
	return d.Run(src, Carver, func(pf *record.PrefetchFile) string {
		return fmt.Sprintf("%s|%d|%s", pf.ExecutableFilename, pf.PrefetchHash, pf.LastRun)
	}, func(pf record.PrefetchFile) (bool, error) {
		exec, tl, err := reconstructExecutes(pf)
		if err != nil {
			return false, err
		}
		return true, emit(pf, exec, tl, rows, execs, events)
	}, progress)
}

func emit(pf record.PrefetchFile, exec []record.Executes, tl []record.Timeline, rows RowSink, execs ExecSink, events TimelineSink) error {
	if _, err := rows(pf); err != nil {
		return fmt.Errorf("prefetch: write row: %w", err)
	}
	for _, e := range exec {
		if _, err := execs(e); err != nil {
			return fmt.Errorf("prefetch: write executes row: %w", err)
		}
	}
	for _, ev := range tl {
		if _, err := events(ev); err != nil {
			return fmt.Errorf("prefetch: emit timeline event: %w", err)
		}
	}
	return nil
}

// reconstructExecutes rebuilds the Executes/Timeline rows a carved
// record.PrefetchFile implies, from its already-serialized RunTimes
// JSON (unix-seconds floats). Carver's per-candidate path only yields
// the PrefetchFile row itself (the carve.Carver[T] contract is
// single-type), so Carve's sink reconstitutes the per-run-time rows
// here rather than re-running SCCA parse against carved bytes a
// second time.
func reconstructExecutes(pf record.PrefetchFile) ([]record.Executes, []record.Timeline, error) {
	var unixSeconds []float64
	if pf.RunTimes != "" {
		if err := json.Unmarshal([]byte(pf.RunTimes), &unixSeconds); err != nil {
			return nil, nil, fmt.Errorf("prefetch: unmarshal run_times: %w", err)
		}
	}
	var exec []record.Executes
	var events []record.Timeline
	for _, s := range unixSeconds {
		if s == 0 {
			continue
		}
		rt := time.Unix(0, int64(s*1e9)).UTC()
		exec = append(exec, record.Executes{
			ExecutableFilename: pf.ExecutableFilename,
			PrefetchHash:       pf.PrefetchHash,
			RunTime:            rt,
		})
		events = append(events, record.Timeline{
			Timestamp:   rt,
			EventSource: "PREFETCH",
			EventType:   "EXECUTE",
			Param1:      pf.ExecutableFilename,
			Param2:      pf.ParentFolder,
		})
	}
	return exec, events, nil
}
