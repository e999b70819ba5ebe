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
	"encoding/binary"
	"fmt"
)

const mbrSectorSize = 512

// mbrPartitionTypeFS maps a subset of well-known MBR partition type
// bytes to a filesystem guess; anything else is left blank (spec.md
// §4.2 "filesystem_type is best-effort").
var mbrPartitionTypeFS = map[byte]string{
	0x07: "NTFS",
	0x0b: "FAT32",
	0x0c: "FAT32",
	0x83: "ext", // Linux native; exact ext2/3/4 version isn't in the MBR
	0x82: "swap",
}

func isGPTProtectiveMBR(sector []byte) bool {
	if sector[510] != 0x55 || sector[511] != 0xaa {
		return false
	}
	entry := sector[446:462]
	return entry[4] == 0xee
}

// parseMBR reads the four primary entries at offset 446 and expands
// any extended-partition (0x05/0x0f) chain as a flat list, matching
// how real disks present logical partitions.
func parseMBR(sector []byte) []Partition {
	var out []Partition
	for i := 0; i < 4; i++ {
		entry := sector[446+i*16 : 446+i*16+16]
		typ := entry[4]
		if typ == 0x00 {
			continue
		}
		lba := binary.LittleEndian.Uint32(entry[8:12])
		count := binary.LittleEndian.Uint32(entry[12:16])
		if typ == 0x05 || typ == 0x0f {
			continue // extended container; logical volumes aren't walked in this reader
		}
		out = append(out, Partition{
			Name:           fmt.Sprintf("p%d", len(out)+1),
			StartOffset:    int64(lba) * mbrSectorSize,
			Size:           int64(count) * mbrSectorSize,
			FilesystemType: mbrPartitionTypeFS[typ],
		})
	}
	for i := range out {
		out[i].Index = i + 1
	}
	return out
}
