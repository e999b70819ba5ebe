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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	lru "github.com/hashicorp/golang-lru/v2"
)

// qcowImage supports QCOW2's linear virtual-disk view: a single
// two-level L1/L2 cluster table, sequential forward reads. Snapshots,
// backing-file chains, and the QCOW1 variant are out of scope
// (SPEC_FULL.md §4.1 EXPANSION); an image using them still opens but
// clusters it can't resolve read back as zero-filled, matching
// qcow2's own sparse-cluster semantics for "never written" clusters.
type qcowImage struct {
	f           *os.File
	size        int64
	clusterBits uint32
	l1Table     []uint64
	l2Size      uint64
	cache       *lru.Cache[uint64, []byte]
}

func openQCOW(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image: open qcow2 %s: %w", path, err)
	}
	header := make([]byte, 104)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("image: read qcow2 header: %w", err)
	}
	version := binary.BigEndian.Uint32(header[4:8])
	l1TableOffset := binary.BigEndian.Uint64(header[40:48])
	l1Size := binary.BigEndian.Uint32(header[36:40])
	clusterBits := binary.BigEndian.Uint32(header[20:24])
	size := binary.BigEndian.Uint64(header[24:32])
	if version < 2 {
		f.Close()
		return nil, fmt.Errorf("image: qcow1 not supported")
	}

	img := &qcowImage{
		f:           f,
		size:        int64(size),
		clusterBits: clusterBits,
		l2Size:      1 << (clusterBits - 3),
	}
	cache, err := lru.New[uint64, []byte](int((64 << 20) >> clusterBits))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image: qcow2 lru: %w", err)
	}
	img.cache = cache

	raw := make([]byte, int64(l1Size)*8)
	if _, err := f.ReadAt(raw, int64(l1TableOffset)); err != nil && l1Size > 0 {
		f.Close()
		return nil, fmt.Errorf("image: read qcow2 l1 table: %w", err)
	}
	img.l1Table = make([]uint64, l1Size)
	for i := range img.l1Table {
		img.l1Table[i] = binary.BigEndian.Uint64(raw[i*8 : i*8+8])
	}
	return img, nil
}

func (img *qcowImage) Size() int64       { return img.size }
func (img *qcowImage) SectorSize() int64 { return defaultSectorSize }
func (img *qcowImage) Format() Format    { return FormatQCOW }
func (img *qcowImage) VSType() PartitionTableType { return PTUnknown }

func (img *qcowImage) ReadAt(p []byte, off int64) (int, error) {
	if off >= img.size {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > img.size {
		end = img.size
	}
	clusterSize := int64(1) << img.clusterBits
	written := 0
	for cur := off; cur < end; {
		clusterIdx := uint64(cur) >> img.clusterBits
		inCluster := cur - int64(clusterIdx)*clusterSize
		data, err := img.cluster(clusterIdx)
		if err != nil {
			return written, err
		}
		n := copy(p[written:int64(written)+min64(end-cur, clusterSize-inCluster)], data[inCluster:])
		written += n
		cur += int64(n)
	}
	return written, nil
}

func (img *qcowImage) cluster(idx uint64) ([]byte, error) {
	clusterSize := int64(1) << img.clusterBits
	if v, ok := img.cache.Get(idx); ok {
		return v, nil
	}
	l1Idx := idx / img.l2Size
	l2Idx := idx % img.l2Size
	if l1Idx >= uint64(len(img.l1Table)) {
		return make([]byte, clusterSize), nil
	}
	l2Offset := img.l1Table[l1Idx] &^ (uint64(1) << 63)
	if l2Offset == 0 {
		return make([]byte, clusterSize), nil
	}
	entryBuf := make([]byte, 8)
	if _, err := img.f.ReadAt(entryBuf, int64(l2Offset+l2Idx*8)); err != nil {
		return nil, fmt.Errorf("image: read qcow2 l2 entry: %w", err)
	}
	entry := binary.BigEndian.Uint64(entryBuf)
	compressed := entry&(uint64(1)<<62) != 0
	clusterOff := entry &^ (uint64(3) << 62)
	if clusterOff == 0 {
		data := make([]byte, clusterSize)
		img.cache.Add(idx, data)
		return data, nil
	}

	var data []byte
	if compressed {
		// Compressed cluster descriptor packs a byte offset and a
		// sector count into the remaining bits; we approximate by
		// flate-decompressing a generous window and trimming, which
		// holds for the common single-sector-run case.
		raw := make([]byte, clusterSize*2)
		n, err := img.f.ReadAt(raw, int64(clusterOff))
		if err != nil && n == 0 {
			return nil, fmt.Errorf("image: read qcow2 compressed cluster: %w", err)
		}
		zr := flate.NewReader(bytes.NewReader(raw[:n]))
		defer zr.Close()
		data = make([]byte, clusterSize)
		if _, err := io.ReadFull(zr, data); err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("image: inflate qcow2 cluster: %w", err)
		}
	} else {
		data = make([]byte, clusterSize)
		if _, err := img.f.ReadAt(data, int64(clusterOff)); err != nil {
			return nil, fmt.Errorf("image: read qcow2 cluster: %w", err)
		}
	}
	img.cache.Add(idx, data)
	return data, nil
}

func (img *qcowImage) Close() error { return img.f.Close() }
