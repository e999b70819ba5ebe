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
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

const defaultSectorSize = 512

// rawImage backs a flat dd-style or already-decrypted image with an
// mmap'd view, avoiding a read syscall per carve chunk.
type rawImage struct {
	f    *os.File
	m    mmap.MMap
	size int64
}

func openRaw(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image: open raw %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image: stat raw %s: %w", path, err)
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("image: raw %s is empty", path)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image: mmap raw %s: %w", path, err)
	}
	return &rawImage{f: f, m: m, size: fi.Size()}, nil
}

func (r *rawImage) Size() int64           { return r.size }
func (r *rawImage) SectorSize() int64     { return defaultSectorSize }
func (r *rawImage) Format() Format        { return FormatRaw }
func (r *rawImage) VSType() PartitionTableType { return PTUnknown }

func (r *rawImage) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > r.size {
		end = r.size
	}
	n := copy(p, r.m[off:end])
	return n, nil
}

func (r *rawImage) Close() error {
	if err := r.m.Unmap(); err != nil {
		return err
	}
	return r.f.Close()
}
