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

// Package volume is the partition table decoder and bounded
// partition-byte-stream adapter (spec.md §4.2): it turns one
// internal/image.Image into a list of Partition descriptors, each
// addressable as an independent, BitLocker-aware byte stream.
package volume

import (
	"fmt"

	"github.com/forensiccorpus/corpus/internal/image"
	"github.com/forensiccorpus/corpus/internal/record"
)

// Partition is one entry from a disk's partition table, spec.md §3.
type Partition struct {
	Name           string
	StartOffset    int64 // bytes, absolute within the image
	Size           int64 // bytes
	FilesystemType string // best-effort guess: "NTFS", "FAT32", "", ...
	IsCrypted      bool   // BitLocker detected but not unlocked
	TableType      image.PartitionTableType
	Index          int
}

// Disk wraps an opened Image with its decoded partition table.
type Disk struct {
	Img        image.Image
	Partitions []Partition
}

// Open decodes paths[0]'s (plus any additional segment paths') image
// container and its partition table. An image with no recognized
// partition table still opens, yielding a single synthetic partition
// spanning the whole image (spec.md §4.2 "unpartitioned media is
// treated as one implicit partition").
func Open(paths []string) (*Disk, error) {
	img, err := image.Open(paths)
	if err != nil {
		return nil, err
	}
	parts, tableType, err := decodePartitionTable(img)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("volume: decode partition table: %w", err)
	}
	if len(parts) == 0 {
		parts = []Partition{{
			Name:        "p1",
			StartOffset: 0,
			Size:        img.Size(),
			TableType:   image.PTSinglePartition,
			Index:       1,
		}}
		tableType = image.PTSinglePartition
	}
	for i := range parts {
		parts[i].TableType = tableType
	}
	return &Disk{Img: img, Partitions: parts}, nil
}

func (d *Disk) Close() error { return d.Img.Close() }

// Filter narrows Partitions (spec.md §4.2 "partitions(...)").
type Filter struct {
	Name               string // exact match, empty = any
	FilesystemType     string // exact match, empty = any
	OnlyWithFilesystem bool
}

// Select returns the partitions matching f, in table order.
func (d *Disk) Select(f Filter) []Partition {
	var out []Partition
	for _, p := range d.Partitions {
		if f.Name != "" && f.Name != p.Name {
			continue
		}
		if f.FilesystemType != "" && f.FilesystemType != p.FilesystemType {
			continue
		}
		if f.OnlyWithFilesystem && p.FilesystemType == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ToRecord populates the spec.md §3 Partition row for p: identity is
// slot_num (the 1-based table index), byte offset/length/sector size
// come from the decoded table entry, and is_crypted reflects whatever
// DetectCrypted already observed for this partition (spec.md §4.2
// step 2 runs before row materialization, so the caller threads its
// result in rather than this method re-probing the image).
func (p Partition) ToRecord(sectorSize int64, isCrypted bool) record.Partition {
	return record.Partition{
		SlotNum:     int64(p.Index),
		ByteOffset:  p.StartOffset,
		ByteLength:  p.Size,
		SectorSize:  sectorSize,
		FSTypeID:    p.FilesystemType,
		Allocated:   true,
		IsCrypted:   isCrypted,
		Description: p.TableType.String(),
		PartName:    p.Name,
	}
}

func decodePartitionTable(img image.Image) ([]Partition, image.PartitionTableType, error) {
	sector := make([]byte, 512)
	if _, err := img.ReadAt(sector, 0); err != nil {
		return nil, image.PTUnknown, err
	}

	if isGPTProtectiveMBR(sector) {
		parts, err := parseGPT(img)
		if err != nil {
			return nil, image.PTUnknown, err
		}
		return parts, image.PTGPT, nil
	}
	if sector[510] == 0x55 && sector[511] == 0xaa {
		parts := parseMBR(sector)
		if len(parts) > 0 {
			return parts, image.PTMBR, nil
		}
	}
	if parts := parseBSDLabel(img); len(parts) > 0 {
		return parts, image.PTBSD, nil
	}
	if parts := parseMacLabel(img); len(parts) > 0 {
		return parts, image.PTMac, nil
	}
	return nil, image.PTUnknown, nil
}
