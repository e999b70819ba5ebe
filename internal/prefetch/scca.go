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

// Package prefetch implements the SCCA prefetch subsystem (spec.md
// §4.8, C8): structured parse of an on-disk .pf file (optionally
// MAM/LZXPRESS-Huffman compressed), a signature carver, and derivation
// of per-execution Executes rows and EXECUTE timeline events.
package prefetch

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/pkg/errors"

	"github.com/forensiccorpus/corpus/internal/filetime"
	"github.com/forensiccorpus/corpus/internal/record"
)

// Field offsets for the "modern" SCCA layout (format versions 23, 26,
// 30 — Vista through Windows 10/11), the only layout this
// implementation supports. Version 17 (XP/2003) uses a single
// last-run-time and a 20-byte metrics entry with no embedded file
// reference; spec.md's PrefetchFile needs that file reference to
// derive executable_addr/executable_seq, so version 17 is rejected
// rather than silently parsed with zeroed identity fields.
const (
	fileHeaderLen = 84
	fileInfoLen   = 132
	headerLen     = fileHeaderLen + fileInfoLen // 216

	execNameOffset = 16
	execNameLen    = 60 // 29 UTF-16 code units + NUL, padded
	hashOffset     = 76

	metricsOffsetOff = 84
	metricsCountOff  = 88
	fnStringsOffOff  = 100
	fnStringsLenOff  = 104
	lastRunTimesOff  = 128 // 8 x uint64 FILETIME, most-recent first
	runCountOff      = 208

	metricEntryLen      = 32
	metricFnOffsetOff   = 8
	metricFnNumCharsOff = 12
	metricFileRefOff    = 24
)

// Metric is one file-metrics-array entry: a referenced file's path and
// NTFS file reference (spec.md §4.8).
type Metric struct {
	Filename   string `json:"filename"`
	FileRefRaw uint64 `json:"file_ref"`
}

// Parsed is the intermediate result of decoding one SCCA stream,
// before Normalize turns it into record rows.
type Parsed struct {
	ExecutableFilename string
	PrefetchHash       uint32
	RunCount           uint32
	Metrics            []Metric
	RunTimes           []uint64 // raw FILETIME ticks, 8 entries, 0 = unset
}

// ParseSCCA decodes a (already decompressed, if it was MAM-wrapped)
// SCCA byte stream per spec.md §4.8.
func ParseSCCA(buf []byte) (Parsed, error) {
	var p Parsed
	if len(buf) < headerLen {
		return p, errors.New("prefetch: file too short for SCCA header")
	}
	if string(buf[4:8]) != "SCCA" {
		return p, errors.New("prefetch: bad SCCA signature")
	}
	version := binary.LittleEndian.Uint32(buf[0:4])
	if version != 23 && version != 26 && version != 30 {
		return p, errors.Errorf("prefetch: unsupported SCCA version %d", version)
	}

	p.ExecutableFilename = decodeUTF16Z(buf[execNameOffset : execNameOffset+execNameLen])
	p.PrefetchHash = binary.LittleEndian.Uint32(buf[hashOffset : hashOffset+4])
	p.RunCount = binary.LittleEndian.Uint32(buf[runCountOff : runCountOff+4])

	for i := 0; i < 8; i++ {
		off := lastRunTimesOff + i*8
		if off+8 > len(buf) {
			break
		}
		p.RunTimes = append(p.RunTimes, binary.LittleEndian.Uint64(buf[off:off+8]))
	}

	metricsOffset := int(binary.LittleEndian.Uint32(buf[metricsOffsetOff : metricsOffsetOff+4]))
	metricsCount := int(binary.LittleEndian.Uint32(buf[metricsCountOff : metricsCountOff+4]))
	fnStringsOffset := int(binary.LittleEndian.Uint32(buf[fnStringsOffOff : fnStringsOffOff+4]))
	fnStringsLen := int(binary.LittleEndian.Uint32(buf[fnStringsLenOff : fnStringsLenOff+4]))

	fnEnd := fnStringsOffset + fnStringsLen
	if fnStringsOffset < 0 || fnEnd > len(buf) || fnEnd < fnStringsOffset {
		fnEnd = fnStringsOffset
	}
	var fnStrings []byte
	if fnStringsOffset >= 0 && fnStringsOffset <= len(buf) && fnEnd <= len(buf) {
		fnStrings = buf[fnStringsOffset:fnEnd]
	}

	for i := 0; i < metricsCount; i++ {
		entryOff := metricsOffset + i*metricEntryLen
		if entryOff < 0 || entryOff+metricEntryLen > len(buf) {
			break
		}
		entry := buf[entryOff : entryOff+metricEntryLen]
		strOff := int(binary.LittleEndian.Uint32(entry[metricFnOffsetOff : metricFnOffsetOff+4]))
		numChars := int(binary.LittleEndian.Uint32(entry[metricFnNumCharsOff : metricFnNumCharsOff+4]))
		fileRef := binary.LittleEndian.Uint64(entry[metricFileRefOff : metricFileRefOff+8])

		name := ""
		byteLen := numChars * 2
		if strOff >= 0 && strOff+byteLen <= len(fnStrings) {
			name = decodeUTF16(fnStrings[strOff : strOff+byteLen])
		}
		p.Metrics = append(p.Metrics, Metric{Filename: name, FileRefRaw: fileRef})
	}

	return p, nil
}

func decodeUTF16(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}

// decodeUTF16Z decodes a fixed-width, NUL-terminated/padded UTF-16LE
// field (the executable_filename header field).
func decodeUTF16Z(b []byte) string {
	s := decodeUTF16(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}

// Normalize turns a Parsed SCCA stream into a PrefetchFile row plus
// one Executes row and one EXECUTE timeline event per nonzero
// run-time (spec.md §4.8's worked example: run_times with two nonzero
// entries yields two Executes rows, two EXECUTE events, and one
// PrefetchFile row whose last_run is the max of the two).
//
// The metrics entry whose filename leaf begins with the executable
// name resolves parent_folder/executable_addr/executable_seq,
// grounded on dfxlibs' prefetchfile.py __init__ (split on '\\' to drop
// the volume-device prefix, then rsplit on the final separator).
func Normalize(p Parsed, carved bool) (record.PrefetchFile, []record.Executes, []record.Timeline, error) {
	var pf record.PrefetchFile
	pf.ExecutableFilename = p.ExecutableFilename
	pf.PrefetchHash = int64(p.PrefetchHash)
	pf.RunCount = int64(p.RunCount)
	pf.Carved = carved

	metricsJSON, err := marshalMetrics(p.Metrics)
	if err != nil {
		return pf, nil, nil, fmt.Errorf("prefetch: marshal metrics: %w", err)
	}
	pf.Metrics = metricsJSON

	for _, m := range p.Metrics {
		leaf, parent, ok := splitVolumeRelativePath(m.Filename)
		if !ok {
			continue
		}
		if strings.HasPrefix(leaf, pf.ExecutableFilename) {
			pf.ParentFolder = parent
			pf.ExecutableFilename = leaf
			pf.ExecutableAddr = int64(m.FileRefRaw & 0xffffffffffff)
			pf.ExecutableSeq = int64(m.FileRefRaw >> 48)
		}
	}

	runTimesJSON, lastRun, runTimesUnix := marshalRunTimes(p.RunTimes)
	pf.RunTimes = runTimesJSON
	pf.LastRun = lastRun

	var executes []record.Executes
	var events []record.Timeline
	for _, rt := range runTimesUnix {
		if rt.IsZero() {
			continue
		}
		executes = append(executes, record.Executes{
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

	return pf, executes, events, nil
}

func marshalMetrics(metrics []Metric) (string, error) {
	if len(metrics) == 0 {
		return "[]", nil
	}
	blob, err := json.Marshal(metrics)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// marshalRunTimes renders the raw FILETIME ticks array to both the
// stored JSON (unix-seconds floats, matching the dual ISO/unix
// rendering convention spec.md's ambient stack uses for every other
// timestamp column) and the last_run value (spec.md §4.8 "last_run =
// max(run_times)"), plus a parallel []time.Time slice (zero entries
// preserved) for Executes/timeline derivation.
func marshalRunTimes(ticks []uint64) (runTimesJSON string, lastRun time.Time, asTime []time.Time) {
	unixSeconds := make([]float64, len(ticks))
	for i, ft := range ticks {
		if ft == 0 {
			asTime = append(asTime, time.Time{})
			continue
		}
		t, err := filetime.FromTicks(ft)
		if err != nil {
			asTime = append(asTime, time.Time{})
			continue
		}
		asTime = append(asTime, t)
		unixSeconds[i] = filetime.UnixSeconds(t)
		if lastRun.IsZero() || t.After(lastRun) {
			lastRun = t
		}
	}
	blob, err := json.Marshal(unixSeconds)
	if err != nil {
		return "[]", lastRun, asTime
	}
	return string(blob), lastRun, asTime
}

// splitVolumeRelativePath mirrors dfxlibs' `filename.split('\\', 2)[2]`
// followed by `rsplit('\\', 1)`: drop the leading
// "\DEVICE\HARDDISKVOLUME1\" prefix metric filenames carry, then split
// the remainder into its final path component and the rest as a
// forward-slash parent folder.
func splitVolumeRelativePath(filename string) (leaf, parent string, ok bool) {
	parts := strings.SplitN(filename, `\`, 3)
	if len(parts) < 3 {
		return "", "", false
	}
	rest := parts[2]
	i := strings.LastIndexByte(rest, '\\')
	if i < 0 {
		return rest, "/", true
	}
	return rest[i+1:], "/" + strings.ReplaceAll(rest[:i], `\`, "/"), true
}
