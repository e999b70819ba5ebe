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

package fsx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

const (
	attrStandardInformation = 0x10
	attrFileName            = 0x30
	attrData                = 0x80
	attrEnd                 = 0xffffffff
)

const mftRecordMagic = "FILE"

// indexMFT reads the $MFT's own record 0 to find its real allocated
// size (spec.md §9 Design Note on avoiding full data-run decoding for
// a typically-contiguous $MFT), then walks every record sequentially,
// recording one Entry per in-use, non-base FILE_NAME-bearing record.
//
// Fragmented $MFTs are not chased through their non-resident data
// runs; this is a documented scope limitation (SPEC_FULL.md §4.3
// EXPANSION), not a silent gap: a heavily fragmented $MFT yields a
// truncated file list rather than an error.
func (fs *FS) indexMFT() error {
	recordSize := fs.boot.recordSize
	raw := make([]byte, recordSize)
	if _, err := fs.stream.ReadAt(raw, fs.boot.mftOffset()); err != nil {
		return fmt.Errorf("read $MFT record 0: %w", err)
	}
	mftSize, err := mftRealSize(raw)
	if err != nil {
		return fmt.Errorf("determine $MFT size: %w", err)
	}
	recordCount := mftSize / recordSize

	for i := int64(0); i < recordCount; i++ {
		buf := make([]byte, recordSize)
		n, err := fs.stream.ReadAt(buf, fs.boot.mftOffset()+i*recordSize)
		if err != nil && n == 0 {
			break
		}
		if n < int(recordSize) {
			break // degrade: a short read this far into the MFT means end-of-partition
		}
		if !bytes.Equal(buf[0:4], []byte(mftRecordMagic)) {
			continue // unused/corrupt record slot
		}
		flags := binary.LittleEndian.Uint16(buf[22:24])
		if flags&0x01 == 0 {
			continue // not in use
		}
		entry, err := parseFileRecord(buf, uint64(i))
		if err != nil {
			continue // spec.md §9: per-record failures are skipped, not fatal
		}
		if entry != nil {
			fs.files[uint64(i)] = entry
		}
	}
	return nil
}

// mftRealSize extracts $MFT record 0's $DATA attribute's "real size"
// field (offset 48 within a non-resident attribute's header, spec.md
// §4.3) without decoding the data-run list itself.
func mftRealSize(record []byte) (int64, error) {
	attrsOffset := binary.LittleEndian.Uint16(record[20:22])
	pos := int(attrsOffset)
	for pos+8 <= len(record) {
		typ := binary.LittleEndian.Uint32(record[pos : pos+4])
		if typ == attrEnd {
			break
		}
		length := binary.LittleEndian.Uint32(record[pos+4 : pos+8])
		if length == 0 || pos+int(length) > len(record) {
			break
		}
		if typ == attrData {
			nonResident := record[pos+8]
			if nonResident != 0 && pos+56 <= len(record) {
				realSize := int64(binary.LittleEndian.Uint64(record[pos+48 : pos+56]))
				return realSize, nil
			}
		}
		pos += int(length)
	}
	return 0, fmt.Errorf("no non-resident $DATA attribute in $MFT record 0")
}

// parseFileRecord extracts the facts fsx needs from one MFT record:
// its best $FILE_NAME (preferring the Win32 namespace over DOS 8.3),
// $STANDARD_INFORMATION timestamps, and any named $DATA streams.
func parseFileRecord(buf []byte, recNum uint64) (*Entry, error) {
	attrsOffset := binary.LittleEndian.Uint16(buf[20:22])
	flags := binary.LittleEndian.Uint16(buf[22:24])
	isDir := flags&0x02 != 0

	e := &Entry{mftRecordNum: recNum, isDirectory: isDir}
	e.MetaSeq = int64(binary.LittleEndian.Uint16(buf[16:18])) // record's own sequence number, distinct from parentSeq
	var bestNamespace byte = 0xff // lower value = higher priority below

	pos := int(attrsOffset)
	for pos+8 <= len(buf) {
		typ := binary.LittleEndian.Uint32(buf[pos : pos+4])
		if typ == attrEnd {
			break
		}
		length := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
		if length == 0 || pos+int(length) > len(buf) {
			break
		}
		nonResident := buf[pos+8]

		switch typ {
		case attrStandardInformation:
			if nonResident == 0 {
				contentOff := binary.LittleEndian.Uint16(buf[pos+20 : pos+22])
				si := buf[pos+int(contentOff):]
				if len(si) >= 32 {
					applyStandardInformation(e, si)
				}
			}
		case attrFileName:
			if nonResident == 0 {
				contentOff := binary.LittleEndian.Uint16(buf[pos+20 : pos+22])
				content := buf[pos+int(contentOff):]
				if len(content) >= 66 {
					parentRef := binary.LittleEndian.Uint64(content[0:8])
					namespace := content[65]
					if namespace < bestNamespace || (namespace == 1 && bestNamespace != 1) {
						// 0=POSIX, 1=Win32, 2=DOS, 3=Win32+DOS; prefer Win32 (1),
						// falling back to whatever else shows up first.
						bestNamespace = namespace
						e.parentRecNum = parentRef & 0x0000ffffffffffff
						e.parentSeq = uint16(parentRef >> 48)
						nameLen := int(content[64])
						nameBytes := content[66 : 66+nameLen*2]
						e.Name = decodeUTF16(nameBytes)
						applyFileNameTimes(e, content)
					}
				}
			}
		case attrData:
			nameLen := buf[pos+9]
			if nameLen > 0 {
				nameOff := binary.LittleEndian.Uint16(buf[pos+10 : pos+12])
				streamName := decodeUTF16(buf[pos+int(nameOff) : pos+int(nameOff)+int(nameLen)*2])
				e.dataStreams = append(e.dataStreams, streamName)
			} else {
				captureDataAttribute(e, buf, pos, length)
			}
		}
		pos += int(length)
	}
	if e.Name == "" {
		return nil, fmt.Errorf("record %d: no usable $FILE_NAME attribute", recNum)
	}
	e.IsDir = e.isDirectory
	return e, nil
}

func applyStandardInformation(e *Entry, content []byte) {
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[0:8])); err == nil {
		e.CrTime = t
	}
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[8:16])); err == nil {
		e.MTime = t
	}
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[16:24])); err == nil {
		e.CTime = t
	}
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[24:32])); err == nil {
		e.ATime = t
	}
}

// applyFileNameTimes records $FILE_NAME's own (often stale) timestamp
// copies separately from $STANDARD_INFORMATION (spec.md §3: File
// carries both fn_* and plain timestamp columns).
func applyFileNameTimes(e *Entry, content []byte) {
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[8:16])); err == nil {
		e.FNCrTime = t
	}
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[16:24])); err == nil {
		e.FNMTime = t
	}
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[24:32])); err == nil {
		e.FNCTime = t
	}
	if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(content[32:40])); err == nil {
		e.FNATime = t
	}
	e.Size = int64(binary.LittleEndian.Uint64(content[48:56]))
}

func decodeUTF16(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}
