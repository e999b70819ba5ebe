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
	"bytes"
	"time"

	"github.com/forensiccorpus/corpus/internal/carve"
)

// StreamParse walks src sequentially from start (normally SeekHead's
// result), skipping zero dwords four bytes at a time and handing every
// structurally valid V2 record to onRecord in journal order (spec.md
// §4.7 "Streaming parse", §5 "timeline event emission order matches
// journal order"). progress, if non-nil, is called at the ~2-second
// cadence spec.md §5 requires for long scans; it may be nil.
func StreamParse(src carve.ByteSource, start int64, onRecord func(Raw) error, progress carve.ProgressFunc) error {
	total := src.Size()
	var buf []byte
	bufBase := start
	pos := start
	lastProgress := time.Now()

	ensure := func(need int) bool {
		for int64(len(buf))-(pos-bufBase) < int64(need) {
			readAt := bufBase + int64(len(buf))
			if readAt >= total {
				return int64(len(buf))-(pos-bufBase) > 0
			}
			toRead := scanWindow
			if readAt+int64(toRead) > total {
				toRead = int(total - readAt)
			}
			chunk := make([]byte, toRead)
			n, err := src.ReadAt(chunk, readAt)
			if n == 0 && err != nil {
				return int64(len(buf))-(pos-bufBase) > 0
			}
			buf = append(buf, chunk[:n]...)
			if n == 0 {
				return int64(len(buf))-(pos-bufBase) > 0
			}
		}
		return true
	}

	for pos < total {
		if trim := pos - bufBase; trim > 0 {
			if trim > int64(len(buf)) {
				trim = int64(len(buf))
			}
			buf = buf[trim:]
			bufBase = pos
		}
		if !ensure(fixedHeaderLen) {
			break
		}
		relPos := int(pos - bufBase)
		if relPos+4 <= len(buf) && isZero(buf[relPos:relPos+4]) {
			pos += 4
			continue
		}
		if relPos+fixedHeaderLen > len(buf) {
			break
		}
		raw, advance, ok := parseAt(buf, relPos)
		if advance == 0 {
			// Candidate record_length claims more bytes than we have
			// buffered; grow the window once and retry before giving up.
			if !ensure(scanWindow) {
				break
			}
			relPos = int(pos - bufBase)
			raw, advance, ok = parseAt(buf, relPos)
			if advance == 0 {
				pos += 4
				continue
			}
		}
		if ok {
			if err := onRecord(raw); err != nil {
				return err
			}
		}
		pos += int64(advance)
		if progress != nil && time.Since(lastProgress) >= 2*time.Second {
			progress(pos, total)
			lastProgress = time.Now()
		}
	}
	if progress != nil {
		progress(total, total)
	}
	return nil
}

// usnCarveSig is the 6-byte pattern spec.md §4.7 describes as sitting
// 2 bytes into an 8-byte-aligned candidate offset: the high two bytes
// of record_length (usually zero) followed by version major=2, minor=0.
var usnCarveSig = []byte{0x00, 0x00, 0x02, 0x00, 0x00, 0x00}

// Carver is the C5-driven signature carver for USN V2 records (spec.md
// §4.7 "Carver"): candidates are found on 8-byte alignment and run
// through the same validators as StreamParse.
func Carver(buf []byte, base int64) []carve.Yield[Raw] {
	var out []carve.Yield[Raw]
	for p := 0; p+8 <= len(buf); p += 8 {
		if !bytes.Equal(buf[p+2:p+8], usnCarveSig) {
			continue
		}
		raw, _, ok := parseAt(buf, p)
		if !ok {
			continue
		}
		raw.Carved = true
		out = append(out, carve.Rec(&raw))
	}
	return out
}
