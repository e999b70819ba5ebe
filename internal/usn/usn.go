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

// Package usn implements the $UsnJrnl:$J V2 subsystem (spec.md §4.7,
// C7): head-seek, streaming structured parse, signature carver, and
// the reason-bitmap timeline projection.
package usn

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/forensiccorpus/corpus/internal/filetime"
	"github.com/forensiccorpus/corpus/internal/record"
)

// fixedHeaderLen is the V2 record's fixed portion (spec.md §4.7
// "Decode the 60-byte fixed header").
const fixedHeaderLen = 60

// Raw is one validated V2 record before parent-folder resolution.
type Raw struct {
	USN            int64
	Timestamp      time.Time
	FileAddr       uint64
	FileSeq        uint16
	ParentAddr     uint64
	ParentSeq      uint16
	Reason         uint32
	SourceInfo     uint32
	SecurityID     uint32
	FileAttributes uint32
	Name           string
	Carved         bool
}

// FileRef renders the identity USN's timeline projection and parent-
// folder LRU key on: "file_addr-file_seq" (spec.md §4.7).
func (r Raw) FileRef() string {
	return fileRefKey(r.FileAddr, r.FileSeq)
}

func fileRefKey(addr uint64, seq uint16) string {
	return strconv.FormatUint(addr, 10) + "-" + strconv.FormatUint(uint64(seq), 10)
}

// ToRecord builds the stored USNRecordV2 row once parentFolder has
// been resolved by the caller (spec.md §3 "USNRecordV2").
func (r Raw) ToRecord(parentFolder string) record.USNRecordV2 {
	return record.USNRecordV2{
		USN:          r.USN,
		Timestamp:    r.Timestamp,
		FileAddr:     int64(r.FileAddr),
		FileSeq:      int64(r.FileSeq),
		ParentAddr:   int64(r.ParentAddr),
		ParentSeq:    int64(r.ParentSeq),
		Reason:       RenderReason(r.Reason),
		SourceInfo:   int64(r.SourceInfo),
		SecurityID:   int64(r.SecurityID),
		FileAttrs:    RenderFileAttrs(r.FileAttributes),
		Name:         r.Name,
		ParentFolder: parentFolder,
		Carved:       r.Carved,
	}
}

// parseAt validates and decodes one candidate record at buf[pos:],
// returning the number of bytes to advance past it (already rounded up
// to the 4-byte boundary spec.md §4.7 requires) and whether the
// candidate survived every validator. advance is 0 when the buffer
// doesn't yet hold a full record_length's worth of bytes, signalling
// the caller to wait for more data rather than treat this as a reject.
func parseAt(buf []byte, pos int) (raw Raw, advance int, ok bool) {
	if pos+fixedHeaderLen > len(buf) {
		return Raw{}, 0, false
	}
	recLen := binary.LittleEndian.Uint32(buf[pos : pos+4])
	if recLen < fixedHeaderLen {
		return Raw{}, 4, false
	}
	major := binary.LittleEndian.Uint16(buf[pos+4 : pos+6])
	minor := binary.LittleEndian.Uint16(buf[pos+6 : pos+8])
	if major != 2 || minor != 0 {
		return Raw{}, 4, false
	}

	rounded := int(recLen)
	if rem := rounded % 4; rem != 0 {
		rounded += 4 - rem
	}
	if pos+rounded > len(buf) {
		return Raw{}, 0, false // wait for the rest of the record
	}

	fileRef := binary.LittleEndian.Uint64(buf[pos+8 : pos+16])
	parentRef := binary.LittleEndian.Uint64(buf[pos+16 : pos+24])
	usnVal := int64(binary.LittleEndian.Uint64(buf[pos+24 : pos+32]))
	ft := binary.LittleEndian.Uint64(buf[pos+32 : pos+40])
	reason := binary.LittleEndian.Uint32(buf[pos+40 : pos+44])
	sourceInfo := binary.LittleEndian.Uint32(buf[pos+44 : pos+48])
	securityID := binary.LittleEndian.Uint32(buf[pos+48 : pos+52])
	fileAttr := binary.LittleEndian.Uint32(buf[pos+52 : pos+56])
	fnLen := binary.LittleEndian.Uint16(buf[pos+56 : pos+58])
	fnOffset := binary.LittleEndian.Uint16(buf[pos+58 : pos+60])

	switch {
	case usnVal == 0:
		return Raw{}, rounded, false
	case reason == 0 || reason&^knownReasonMask != 0:
		return Raw{}, rounded, false
	case fileAttr == 0 || fileAttr&^knownAttrMask != 0:
		return Raw{}, rounded, false
	case sourceInfo > 0x0f:
		return Raw{}, rounded, false
	case fnLen == 0 || fnLen%2 != 0:
		return Raw{}, rounded, false
	case int(fnOffset)+int(fnLen) > int(recLen):
		return Raw{}, rounded, false
	case !filetime.InRange(ft):
		return Raw{}, rounded, false
	}

	for i := int(recLen); i < rounded; i++ {
		if buf[pos+i] != 0 {
			return Raw{}, rounded, false // non-zero padding, spec.md §4.7
		}
	}

	name := decodeUTF16(buf[pos+int(fnOffset) : pos+int(fnOffset)+int(fnLen)])
	if strings.ContainsRune(name, 0) {
		return Raw{}, rounded, false
	}

	ts, err := filetime.FromTicks(ft)
	if err != nil {
		return Raw{}, rounded, false
	}

	return Raw{
		USN:            usnVal,
		Timestamp:      ts,
		FileAddr:       fileRef & 0x0000ffffffffffff,
		FileSeq:        uint16(fileRef >> 48),
		ParentAddr:     parentRef & 0x0000ffffffffffff,
		ParentSeq:      uint16(parentRef >> 48),
		Reason:         reason,
		SourceInfo:     sourceInfo,
		SecurityID:     securityID,
		FileAttributes: fileAttr,
		Name:           name,
	}, rounded, true
}

func decodeUTF16(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}
