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

// Package registry implements the Windows registry subsystem (spec.md
// §4.10, C10): hive v1 header/bin/cell decoding, an iterative BFS live
// walk, deleted-key free-cell carving, and the boot-key/LSA/SAM
// security derivations layered on top of a parsed SYSTEM/SECURITY/SAM
// hive set.
package registry

import (
	"encoding/binary"
	"fmt"
)

// baseOffset is where cell offsets (always stored relative in the
// hive format) are anchored: immediately after the 4 KiB regf header,
// the first HBIN begins.
const baseOffset = 0x1000

// cellOffsetNone marks "no such cell" the way the format itself does,
// since relative offset 0 is a real, valid location (the first bin
// header) and 0xffffffff is what regf actually uses for "absent".
const cellOffsetNone = 0xffffffff

// ByteSource is the minimal read surface registry needs; satisfied by
// internal/volume.Stream and internal/carve.ByteSource alike without
// either package importing this one.
type ByteSource interface {
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
}

// Hive is one opened registry hive file (spec.md §4.10 "Hive parse").
type Hive struct {
	src          ByteSource
	mountPoint   string
	rootOffset   int64 // absolute
	pathByOffset map[int64]string
}

// Open validates the regf header and resolves the root key cell.
// mountPoint replaces the hive's own basename in every emitted path,
// spec.md §3 "RegistryEntry" ("hive basename is replaced by a
// caller-supplied mount point").
func Open(src ByteSource, mountPoint string) (*Hive, error) {
	hdr := make([]byte, 4096)
	if _, err := src.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("registry: read header: %w", err)
	}
	if string(hdr[0:4]) != "regf" {
		return nil, fmt.Errorf("registry: bad regf signature")
	}
	rootRel := binary.LittleEndian.Uint32(hdr[0x24:0x28])
	return &Hive{
		src:          src,
		mountPoint:   mountPoint,
		rootOffset:   baseOffset + int64(rootRel),
		pathByOffset: make(map[int64]string),
	}, nil
}

// cell is one decoded hive cell: its own absolute offset, whether it
// is currently allocated (size < 0 in the on-disk form), and its
// payload following the 4-byte size prefix.
type cell struct {
	offset    int64
	allocated bool
	data      []byte
}

// readCell reads the cell whose size-prefixed form starts at off.
func (h *Hive) readCell(off int64) (cell, error) {
	szBuf := make([]byte, 4)
	if _, err := h.src.ReadAt(szBuf, off); err != nil {
		return cell{}, fmt.Errorf("registry: read cell size at %d: %w", off, err)
	}
	raw := int32(binary.LittleEndian.Uint32(szBuf))
	allocated := raw < 0
	size := raw
	if allocated {
		size = -size
	}
	if size < 4 || size > 1<<24 {
		return cell{}, fmt.Errorf("registry: implausible cell size %d at %d", size, off)
	}
	data := make([]byte, size-4)
	if len(data) > 0 {
		if _, err := h.src.ReadAt(data, off+4); err != nil {
			return cell{}, fmt.Errorf("registry: read cell body at %d: %w", off, err)
		}
	}
	return cell{offset: off, allocated: allocated, data: data}, nil
}

func absOffset(rel uint32) int64 {
	return baseOffset + int64(rel)
}
