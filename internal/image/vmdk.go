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

package image

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// vmdkImage supports the monolithic sparse hosted VMDK layout (the
// common single-file ".vmdk" produced by VMware Workstation/Fusion
// exports): one grain directory, fixed-size grains, no streamOptimized
// compression. Split (.vmdk + flat extents) and streamOptimized
// (gzip-per-grain) images are not handled (SPEC_FULL.md §4.1
// EXPANSION); grains this reader can't resolve read back zero-filled.
type vmdkImage struct {
	f          *os.File
	size       int64
	grainSize  int64 // bytes
	gdOffset   int64
	numGTEsPerGT int64
	cache      map[int64][]byte
}

func openVMDK(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image: open vmdk %s: %w", path, err)
	}
	header := make([]byte, 512)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("image: read vmdk header: %w", err)
	}
	capacitySectors := binary.LittleEndian.Uint64(header[12:20])
	grainSizeSectors := binary.LittleEndian.Uint64(header[20:28])
	gdOffsetSectors := binary.LittleEndian.Uint64(header[56:64])
	numGTEsPerGT := binary.LittleEndian.Uint32(header[44:48])
	if grainSizeSectors == 0 {
		grainSizeSectors = 128 // VMDK default: 128 sectors = 64 KiB
	}

	return &vmdkImage{
		f:            f,
		size:         int64(capacitySectors) * defaultSectorSize,
		grainSize:    int64(grainSizeSectors) * defaultSectorSize,
		gdOffset:     int64(gdOffsetSectors) * defaultSectorSize,
		numGTEsPerGT: int64(numGTEsPerGT),
		cache:        make(map[int64][]byte),
	}, nil
}

func (img *vmdkImage) Size() int64           { return img.size }
func (img *vmdkImage) SectorSize() int64     { return defaultSectorSize }
func (img *vmdkImage) Format() Format        { return FormatVMDK }
func (img *vmdkImage) VSType() PartitionTableType { return PTUnknown }

func (img *vmdkImage) ReadAt(p []byte, off int64) (int, error) {
	if off >= img.size {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > img.size {
		end = img.size
	}
	written := 0
	for cur := off; cur < end; {
		grainIdx := cur / img.grainSize
		inGrain := cur - grainIdx*img.grainSize
		data, err := img.grain(grainIdx)
		if err != nil {
			return written, err
		}
		n := copy(p[written:int64(written)+min64(end-cur, img.grainSize-inGrain)], data[inGrain:])
		written += n
		cur += int64(n)
	}
	return written, nil
}

func (img *vmdkImage) grain(idx int64) ([]byte, error) {
	if v, ok := img.cache[idx]; ok {
		return v, nil
	}
	gtIdx := idx / img.numGTEsPerGT
	gteIdx := idx % img.numGTEsPerGT

	gdEntry := make([]byte, 4)
	if _, err := img.f.ReadAt(gdEntry, img.gdOffset+gtIdx*4); err != nil {
		return nil, fmt.Errorf("image: read vmdk grain directory entry: %w", err)
	}
	gtSector := binary.LittleEndian.Uint32(gdEntry)
	if gtSector == 0 {
		data := make([]byte, img.grainSize)
		img.cache[idx] = data
		return data, nil
	}

	gteEntry := make([]byte, 4)
	gtOffset := int64(gtSector) * defaultSectorSize
	if _, err := img.f.ReadAt(gteEntry, gtOffset+gteIdx*4); err != nil {
		return nil, fmt.Errorf("image: read vmdk grain table entry: %w", err)
	}
	grainSector := binary.LittleEndian.Uint32(gteEntry)
	data := make([]byte, img.grainSize)
	if grainSector != 0 {
		if _, err := img.f.ReadAt(data, int64(grainSector)*defaultSectorSize); err != nil {
			return nil, fmt.Errorf("image: read vmdk grain: %w", err)
		}
	}
	if len(img.cache) > 2048 {
		img.cache = make(map[int64][]byte) // unbounded map growth guard; not a real LRU
	}
	img.cache[idx] = data
	return data, nil
}

func (img *vmdkImage) Close() error { return img.f.Close() }
