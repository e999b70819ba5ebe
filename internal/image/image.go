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

// Package image is the container adapter (spec.md §4.1): a uniform,
// random-access byte view over EWF, QCOW2, VMDK, VHDI, and raw disk
// images, recognized by magic.
package image

import (
	"fmt"
)

// Format identifies a recognized container.
type Format uint8

const (
	FormatRaw Format = iota
	FormatEWF
	FormatQCOW
	FormatVMDK
	FormatVHDI
)

func (f Format) String() string {
	switch f {
	case FormatEWF:
		return "EWF"
	case FormatQCOW:
		return "QCOW"
	case FormatVMDK:
		return "VMDK"
	case FormatVHDI:
		return "VHDI"
	default:
		return "raw"
	}
}

// PartitionTableType is the auto-detected (or declared) partition
// scheme, spec.md §4.1.
type PartitionTableType uint8

const (
	PTUnknown PartitionTableType = iota
	PTMBR
	PTGPT
	PTBSD
	PTMac
	PTSinglePartition
)

func (t PartitionTableType) String() string {
	switch t {
	case PTMBR:
		return "MBR"
	case PTGPT:
		return "GPT"
	case PTBSD:
		return "BSD"
	case PTMac:
		return "Mac"
	case PTSinglePartition:
		return "single partition"
	default:
		return "unknown"
	}
}

// Image is the contract every container backend implements:
// Image::open(paths) returning size, sector_size, vstype,
// partitions(filter), and a random-access read (spec.md §4.1).
type Image interface {
	Size() int64
	SectorSize() int64
	Format() Format
	VSType() PartitionTableType
	// ReadAt reads len(p) bytes starting at byte offset off, returning
	// the number of bytes actually read. Short reads at end-of-image
	// are not an error.
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// Open recognizes paths[0]'s container format by magic and returns a
// bound Image. Missing file or unreadable backing is fatal (spec.md
// §4.1).
func Open(paths []string) (Image, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("image: open requires at least one path")
	}
	primary := paths[0]
	format, err := detectFormat(primary)
	if err != nil {
		return nil, fmt.Errorf("image: detect format of %s: %w", primary, err)
	}
	switch format {
	case FormatEWF:
		return openEWF(paths)
	case FormatQCOW:
		return openQCOW(primary)
	case FormatVMDK:
		return openVMDK(primary)
	case FormatVHDI:
		return openVHDI(primary)
	default:
		return openRaw(primary)
	}
}
