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
	"os"
)

// vhdiImage supports VHD (not VHDX) fixed and dynamic disks: the
// classic 512-byte hard-disk footer plus, for dynamic disks, a BAT
// (block allocation table) of 512-byte-sector-aligned data blocks.
// Differencing disks and the VHDX container are not handled
// (SPEC_FULL.md §4.1 EXPANSION).
type vhdiImage struct {
	f         *os.File
	size      int64
	dynamic   bool
	blockSize int64
	batOffset int64
	bat       []uint32
	cache     map[int64][]byte
}

func openVHDI(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image: open vhdi %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image: stat vhdi %s: %w", path, err)
	}
	footer := make([]byte, 512)
	if _, err := f.ReadAt(footer, fi.Size()-512); err != nil {
		f.Close()
		return nil, fmt.Errorf("image: read vhdi footer: %w", err)
	}
	diskType := binary.BigEndian.Uint32(footer[60:64])
	currentSize := int64(binary.BigEndian.Uint64(footer[48:56]))

	img := &vhdiImage{f: f, size: currentSize, cache: make(map[int64][]byte)}
	switch diskType {
	case 2: // fixed
		img.dynamic = false
	case 3: // dynamic
		img.dynamic = true
		header := make([]byte, 1024)
		if _, err := f.ReadAt(header, int64(binary.BigEndian.Uint64(footer[16:24]))); err != nil {
			f.Close()
			return nil, fmt.Errorf("image: read vhdi dynamic header: %w", err)
		}
		img.batOffset = int64(binary.BigEndian.Uint64(header[16:24]))
		maxEntries := binary.BigEndian.Uint32(header[28:32])
		blockSize := binary.BigEndian.Uint32(header[32:36])
		img.blockSize = int64(blockSize)
		bat := make([]byte, int64(maxEntries)*4)
		if _, err := f.ReadAt(bat, img.batOffset); err != nil {
			f.Close()
			return nil, fmt.Errorf("image: read vhdi bat: %w", err)
		}
		img.bat = make([]uint32, maxEntries)
		for i := range img.bat {
			img.bat[i] = binary.BigEndian.Uint32(bat[i*4 : i*4+4])
		}
	default:
		f.Close()
		return nil, fmt.Errorf("image: vhdi differencing disks not supported")
	}
	return img, nil
}

func (img *vhdiImage) Size() int64           { return img.size }
func (img *vhdiImage) SectorSize() int64     { return defaultSectorSize }
func (img *vhdiImage) Format() Format        { return FormatVHDI }
func (img *vhdiImage) VSType() PartitionTableType { return PTUnknown }

func (img *vhdiImage) ReadAt(p []byte, off int64) (int, error) {
	if off >= img.size {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > img.size {
		end = img.size
	}
	if !img.dynamic {
		n, err := img.f.ReadAt(p[:end-off], off)
		if err != nil {
			return n, fmt.Errorf("image: read fixed vhdi: %w", err)
		}
		return n, nil
	}
	written := 0
	for cur := off; cur < end; {
		blockIdx := cur / img.blockSize
		inBlock := cur - blockIdx*img.blockSize
		data, err := img.block(blockIdx)
		if err != nil {
			return written, err
		}
		n := copy(p[written:int64(written)+min64(end-cur, img.blockSize-inBlock)], data[inBlock:])
		written += n
		cur += int64(n)
	}
	return written, nil
}

func (img *vhdiImage) block(idx int64) ([]byte, error) {
	if v, ok := img.cache[idx]; ok {
		return v, nil
	}
	data := make([]byte, img.blockSize)
	if idx < int64(len(img.bat)) && img.bat[idx] != 0xffffffff {
		sectorOffset := int64(img.bat[idx]) * defaultSectorSize
		bitmapSectors := (img.blockSize/defaultSectorSize + 7) / 8
		bitmapSectors = (bitmapSectors + defaultSectorSize - 1) / defaultSectorSize * defaultSectorSize
		if _, err := img.f.ReadAt(data, sectorOffset+bitmapSectors); err != nil {
			return nil, fmt.Errorf("image: read vhdi block: %w", err)
		}
	}
	if len(img.cache) > 1024 {
		img.cache = make(map[int64][]byte)
	}
	img.cache[idx] = data
	return data, nil
}

func (img *vhdiImage) Close() error { return img.f.Close() }
