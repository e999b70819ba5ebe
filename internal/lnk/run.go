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

package lnk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/forensiccorpus/corpus/internal/carve"
	"github.com/forensiccorpus/corpus/internal/record"
)

// RowSink persists one LnkFile row; TimelineSink persists one derived
// timeline event.
type RowSink func(record.LnkFile) (bool, error)
type TimelineSink func(record.Timeline) (bool, error)

// Prepare runs the --prepare_lnk action: a structured parse of one
// already located .lnk file.
func Prepare(raw []byte, rows RowSink, events TimelineSink) error {
	lf, err := ParseLNK(raw)
	if err != nil {
		return fmt.Errorf("lnk: parse: %w", err)
	}
	return emit(lf, rows, events)
}

// Carve runs the --carve_lnk action: a 512-byte-aligned scan for the
// header magic across raw partition bytes (spec.md §4.9 "Carver").
func Carve(src carve.ByteSource, rows RowSink, events TimelineSink, progress carve.ProgressFunc) error {
	d := carve.DefaultDriver[record.LnkFile]()
	return d.Run(src, Carver, func(lf *record.LnkFile) string {
		return fmt.Sprintf("%s|%s|%s", lf.TargetLocalPath, lf.TargetRelativePath, lf.CommandLineArguments)
	}, func(lf record.LnkFile) (bool, error) {
		return true, emit(lf, rows, events)
	}, progress)
}

// emit writes the LnkFile row and its two target timeline events
// (spec.md §4.9 "Carver ... write two timeline events: TARGET_CREATE
// and TARGET_ACCESSED using the folder path"). Structured parse is not
// spec'd to skip these, so both paths share the same emission.
func emit(lf record.LnkFile, rows RowSink, events TimelineSink) error {
	if _, err := rows(lf); err != nil {
		return fmt.Errorf("lnk: write row: %w", err)
	}
	folder := targetFolder(lf)
	name := targetName(lf)
	if _, err := events(record.Timeline{
		Timestamp:   lf.TargetCrTime,
		EventSource: "LNK",
		EventType:   "TARGET_CREATE",
		Param1:      name,
		Param2:      folder,
	}); err != nil {
		return fmt.Errorf("lnk: emit TARGET_CREATE: %w", err)
	}
	if _, err := events(record.Timeline{
		Timestamp:   lf.TargetATime,
		EventSource: "LNK",
		EventType:   "TARGET_ACCESSED",
		Param1:      name,
		Param2:      folder,
	}); err != nil {
		return fmt.Errorf("lnk: emit TARGET_ACCESSED: %w", err)
	}
	return nil
}

var driveLetterPrefix = regexp.MustCompile(`^[A-Za-z]:`)

// targetPath picks whichever of the local/relative path fields LNK
// actually populated, preferring the absolute local path.
func targetPath(lf record.LnkFile) string {
	if lf.TargetLocalPath != "" {
		return lf.TargetLocalPath
	}
	return lf.TargetRelativePath
}

// normalizeWindowsPath strips a leading drive letter and converts
// backslashes to forward slashes, spec.md §4.9 "normalized from
// Windows path, drive letter stripped".
func normalizeWindowsPath(p string) string {
	p = driveLetterPrefix.ReplaceAllString(p, "")
	p = strings.TrimPrefix(p, ".")
	return strings.ReplaceAll(p, `\`, "/")
}

// targetFolder returns the normalized directory component of the LNK
// target path.
func targetFolder(lf record.LnkFile) string {
	p := normalizeWindowsPath(targetPath(lf))
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// targetName returns the normalized final path component of the LNK
// target path.
func targetName(lf record.LnkFile) string {
	p := normalizeWindowsPath(targetPath(lf))
	i := strings.LastIndexByte(p, '/')
	return p[i+1:]
}
