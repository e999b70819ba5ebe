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

package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/forensiccorpus/corpus/internal/image"
)

var gptTypeFS = map[string]string{
	"ebd0a0a2-b9e5-4433-87c0-68b6b72699c7": "NTFS", // Microsoft basic data; NTFS is the overwhelming common case
	"0fc63daf-8483-4772-8e79-3d69d8477de4": "ext",
	"c12a7328-f81f-11d2-ba4b-00a0c93ec93b": "FAT32", // EFI system partition
}

// parseGPT reads the primary GPT header at LBA1 and its partition
// entry array. A corrupt primary header is not retried against the
// backup copy at the end of the disk (spec.md §4.2 leaves GPT
// redundancy out of scope for this module).
func parseGPT(img image.Image) ([]Partition, error) {
	header := make([]byte, 512)
	if _, err := img.ReadAt(header, 512); err != nil {
		return nil, fmt.Errorf("read gpt header: %w", err)
	}
	if !bytes.Equal(header[0:8], []byte("EFI PART")) {
		return nil, nil
	}
	entryLBA := binary.LittleEndian.Uint64(header[72:80])
	entryCount := binary.LittleEndian.Uint32(header[80:84])
	entrySize := binary.LittleEndian.Uint32(header[84:88])

	buf := make([]byte, int64(entryCount)*int64(entrySize))
	if _, err := img.ReadAt(buf, int64(entryLBA)*512); err != nil {
		return nil, fmt.Errorf("read gpt entries: %w", err)
	}

	var out []Partition
	for i := uint32(0); i < entryCount; i++ {
		entry := buf[i*entrySize : i*entrySize+entrySize]
		typeGUID := entry[0:16]
		if isZero(typeGUID) {
			continue
		}
		firstLBA := binary.LittleEndian.Uint64(entry[32:40])
		lastLBA := binary.LittleEndian.Uint64(entry[40:48])
		nameUTF16 := entry[56:128]
		name := decodeUTF16Name(nameUTF16)
		if name == "" {
			name = fmt.Sprintf("p%d", len(out)+1)
		}
		out = append(out, Partition{
			Name:           name,
			StartOffset:    int64(firstLBA) * 512,
			Size:           int64(lastLBA-firstLBA+1) * 512,
			FilesystemType: gptTypeFS[guidString(typeGUID)],
			Index:          len(out) + 1,
		})
	}
	return out, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func decodeUTF16Name(b []byte) string {
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		v := binary.LittleEndian.Uint16(b[i : i+2])
		if v == 0 {
			break
		}
		u16 = append(u16, v)
	}
	return string(utf16.Decode(u16))
}

// guidString renders a mixed-endian GPT GUID as the canonical
// lowercase hyphenated form used by the UEFI spec's published type
// GUIDs.
func guidString(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		binary.BigEndian.Uint16(b[8:10]),
		b[10:16])
}
