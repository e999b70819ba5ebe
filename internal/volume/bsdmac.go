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

	"github.com/forensiccorpus/corpus/internal/image"
)

const bsdDiskMagic = 0x82564557

// parseBSDLabel looks for a BSD disklabel at its conventional offset
// (sector 1, byte 0) and decodes its partition array. Most disk images
// in the wild are MBR or GPT; BSD labels mainly show up nested inside
// an MBR slice, which this reader does not chase (spec.md §4.2 "BSD
// and Mac labels are recognized at the top level only").
func parseBSDLabel(img image.Image) []Partition {
	buf := make([]byte, 512)
	if _, err := img.ReadAt(buf, 512); err != nil {
		return nil
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != bsdDiskMagic {
		return nil
	}
	sectorSize := binary.LittleEndian.Uint32(buf[40:44])
	numParts := binary.LittleEndian.Uint16(buf[138:140])
	const partEntrySize = 16
	const partArrayOffset = 148

	var out []Partition
	for i := uint16(0); i < numParts; i++ {
		off := partArrayOffset + int(i)*partEntrySize
		if off+partEntrySize > len(buf) {
			break
		}
		entry := buf[off : off+partEntrySize]
		size := binary.LittleEndian.Uint32(entry[0:4])
		offset := binary.LittleEndian.Uint32(entry[4:8])
		fstype := entry[8]
		if size == 0 {
			continue
		}
		out = append(out, Partition{
			Name:           fmt.Sprintf("p%d", len(out)+1),
			StartOffset:    int64(offset) * int64(sectorSize),
			Size:           int64(size) * int64(sectorSize),
			FilesystemType: bsdFSTypeName(fstype),
			Index:          len(out) + 1,
		})
	}
	return out
}

func bsdFSTypeName(t byte) string {
	switch t {
	case 7:
		return "ufs"
	case 1:
		return "swap"
	default:
		return ""
	}
}

var macPartitionMagic = []byte("PM")

// parseMacLabel decodes the classic Apple Partition Map: a chain of
// 512-byte "Apple_partition_map" blocks starting at sector 1, each
// naming its own partition count so the chain is self-terminating.
func parseMacLabel(img image.Image) []Partition {
	first := make([]byte, 512)
	if _, err := img.ReadAt(first, 512); err != nil {
		return nil
	}
	if !bytes.Equal(first[0:2], macPartitionMagic) {
		return nil
	}
	mapEntries := binary.BigEndian.Uint32(first[4:8])

	var out []Partition
	for i := uint32(0); i < mapEntries; i++ {
		buf := make([]byte, 512)
		if _, err := img.ReadAt(buf, int64(i+1)*512); err != nil {
			break
		}
		if !bytes.Equal(buf[0:2], macPartitionMagic) {
			break
		}
		startBlock := binary.BigEndian.Uint32(buf[8:12])
		blockCount := binary.BigEndian.Uint32(buf[12:16])
		name := bytes.TrimRight(buf[16:48], "\x00")
		typ := bytes.TrimRight(buf[48:80], "\x00")
		out = append(out, Partition{
			Name:           string(name),
			StartOffset:    int64(startBlock) * 512,
			Size:           int64(blockCount) * 512,
			FilesystemType: macTypeFS(string(typ)),
			Index:          len(out) + 1,
		})
	}
	return out
}

func macTypeFS(typ string) string {
	switch typ {
	case "Apple_HFS":
		return "HFS+"
	case "Apple_UNIX_SVR2":
		return "ufs"
	default:
		return ""
	}
}
