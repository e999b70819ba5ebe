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
	"bytes"
	"encoding/binary"

	"github.com/forensiccorpus/corpus/internal/carve"
	"github.com/forensiccorpus/corpus/internal/record"
)

// Carver is the C6-driven signature carver (spec.md §4.6 "Carver"):
// candidates are found on 512-byte alignment and confirmed with two
// predicates (chunk header size at byte 40 == 128, first record magic
// at byte 512) before the chunk is parsed in place. Records from a
// parse failure mid-chunk are simply omitted; spec.md's worked example
// ("record 2 is corrupted ⇒ exactly two Event rows") is exactly the
// behavior parseChunk already provides for structured parse, reused
// here unchanged.
func Carver(buf []byte, base int64) []carve.Yield[record.Event] {
	var out []carve.Yield[record.Event]
	for p := 0; p+chunkHeaderSize+8 <= len(buf); p += 512 {
		if !bytes.Equal(buf[p:p+8], chunkMagic) {
			continue
		}
		if buf[p+40] != 128 {
			continue
		}
		recOff := p + chunkHeaderSize
		if recOff+4 > len(buf) || !bytes.Equal(buf[recOff:recOff+4], evtMagic) {
			continue
		}
		headerSize := binary.LittleEndian.Uint32(buf[p+40 : p+44])
		if headerSize != 128 {
			continue
		}

		end := p + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		events, err := parseChunk(buf[p:end], true)
		if err != nil {
			continue
		}
		for i := range events {
			ev := events[i]
			out = append(out, carve.Rec(&ev))
		}
	}
	return out
}
