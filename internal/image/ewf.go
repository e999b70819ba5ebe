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

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zlib"
)

// section is one EWF section descriptor: a 16-byte type tag, the file
// offset of the next section, and this section's total size including
// the 76-byte descriptor itself.
type section struct {
	typ      string
	offset   int64 // offset of the section's own data, just after the descriptor
	next     int64
	size     int64
	segIndex int
}

// chunkEntry locates one compressed or stored sector chunk within a
// segment: offset is relative to that segment's "sectors"/"table"
// base, per the EWF table-entry layout (high bit of the raw uint32
// marks "compressed").
type chunkEntry struct {
	segIndex   int
	offset     int64
	compressed bool
}

type ewfImage struct {
	segments    []*os.File
	sectorCount int64
	bytesPerSec int64
	chunkSize   int64 // sectors per chunk, converted to bytes
	chunks      []chunkEntry
	sectorsBase []segBase
	cache       *lru.Cache[int, []byte]
}

const ewfSectorsPerChunk = 64 // libewf/ftk default when the volume section omits it

func openEWF(paths []string) (Image, error) {
	img := &ewfImage{bytesPerSec: defaultSectorSize}
	cache, err := lru.New[int, []byte](256) // 256 chunks * ~32KiB ~= 8MiB of decompressed cache
	if err != nil {
		return nil, fmt.Errorf("image: ewf lru: %w", err)
	}
	img.cache = cache

	for segIdx, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			img.Close()
			return nil, fmt.Errorf("image: open ewf segment %s: %w", p, err)
		}
		img.segments = append(img.segments, f)
		if err := img.indexSegment(segIdx); err != nil {
			img.Close()
			return nil, fmt.Errorf("image: index ewf segment %s: %w", p, err)
		}
	}
	if img.chunkSize == 0 {
		img.chunkSize = ewfSectorsPerChunk * img.bytesPerSec
	}
	return img, nil
}

// indexSegment walks segIdx's section chain, recording volume geometry
// from the "volume"/"disk" section and chunk offsets from "table"
// sections. Real EWF carries a checksum per section descriptor and per
// table; we trust the container rather than re-verifying it, matching
// the "open() is best-effort, sector-level reads degrade" posture
// spec.md §4.1 asks for.
func (img *ewfImage) indexSegment(segIdx int) error {
	f := img.segments[segIdx]
	header := make([]byte, 13)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read file header: %w", err)
	}

	offset := int64(13)
	for {
		desc := make([]byte, 76)
		if _, err := f.ReadAt(desc, offset); err != nil {
			return fmt.Errorf("read section descriptor at %d: %w", offset, err)
		}
		typ := string(bytes.TrimRight(desc[:16], "\x00"))
		next := int64(binary.LittleEndian.Uint64(desc[16:24]))
		size := int64(binary.LittleEndian.Uint64(desc[24:32]))
		dataOff := offset + 76

		switch typ {
		case "volume", "disk":
			if err := img.readVolumeSection(f, dataOff); err != nil {
				return err
			}
		case "sectors":
			// table sections reference offsets relative to this
			// section's data start; record it so "table" can resolve.
			img.sectorsBase = append(img.sectorsBase, segBase{segIdx, dataOff})
		case "table":
			if err := img.readTableSection(f, dataOff, size, segIdx); err != nil {
				return err
			}
		case "done", "next":
			return nil
		}

		if next == 0 || next == offset {
			return nil
		}
		offset = next
	}
}

type segBase struct {
	segIndex int
	offset   int64
}

func (img *ewfImage) readVolumeSection(f *os.File, off int64) error {
	buf := make([]byte, 94)
	if _, err := f.ReadAt(buf, off); err != nil {
		return fmt.Errorf("read volume section: %w", err)
	}
	// EWF2 "disk" layout: [4]reserved, chunk_count u32, sectors_per_chunk u32,
	// bytes_per_sector u32, sector_count u64, ...
	chunkCount := binary.LittleEndian.Uint32(buf[4:8])
	sectorsPerChunk := binary.LittleEndian.Uint32(buf[8:12])
	bytesPerSector := binary.LittleEndian.Uint32(buf[12:16])
	sectorCount := binary.LittleEndian.Uint64(buf[16:24])
	_ = chunkCount
	if bytesPerSector != 0 {
		img.bytesPerSec = int64(bytesPerSector)
	}
	if sectorsPerChunk != 0 {
		img.chunkSize = int64(sectorsPerChunk) * img.bytesPerSec
	}
	img.sectorCount = int64(sectorCount)
	return nil
}

func (img *ewfImage) readTableSection(f *os.File, off, size int64, segIdx int) error {
	head := make([]byte, 24)
	if _, err := f.ReadAt(head, off); err != nil {
		return fmt.Errorf("read table header: %w", err)
	}
	entryCount := binary.LittleEndian.Uint32(head[0:4])
	baseOffset := int64(binary.LittleEndian.Uint64(head[8:16]))

	entries := make([]byte, int64(entryCount)*4)
	if _, err := f.ReadAt(entries, off+24); err != nil {
		return fmt.Errorf("read table entries: %w", err)
	}
	for i := uint32(0); i < entryCount; i++ {
		raw := binary.LittleEndian.Uint32(entries[i*4 : i*4+4])
		compressed := raw&0x80000000 != 0
		rel := int64(raw &^ 0x80000000)
		img.chunks = append(img.chunks, chunkEntry{
			segIndex:   segIdx,
			offset:     baseOffset + rel,
			compressed: compressed,
		})
	}
	return nil
}

func (img *ewfImage) Size() int64           { return img.sectorCount * img.bytesPerSec }
func (img *ewfImage) SectorSize() int64     { return img.bytesPerSec }
func (img *ewfImage) Format() Format        { return FormatEWF }
func (img *ewfImage) VSType() PartitionTableType { return PTUnknown }

// ReadAt serves a read by resolving which chunk(s) it spans,
// decompressing each on demand (cached), and copying out the
// requested slice.
func (img *ewfImage) ReadAt(p []byte, off int64) (int, error) {
	total := img.Size()
	if off >= total {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > total {
		end = total
	}
	written := 0
	for cur := off; cur < end; {
		idx := int(cur / img.chunkSize)
		if idx >= len(img.chunks) {
			break
		}
		chunkData, err := img.chunk(idx)
		if err != nil {
			return written, fmt.Errorf("image: decode ewf chunk %d: %w", idx, err)
		}
		chunkStart := int64(idx) * img.chunkSize
		inChunk := cur - chunkStart
		if inChunk >= int64(len(chunkData)) {
			break
		}
		n := copy(p[written:int64(written)+min64(end-cur, int64(len(chunkData))-inChunk)], chunkData[inChunk:])
		written += n
		cur += int64(n)
		if n == 0 {
			break
		}
	}
	return written, nil
}

func (img *ewfImage) chunk(idx int) ([]byte, error) {
	if v, ok := img.cache.Get(idx); ok {
		return v, nil
	}
	entry := img.chunks[idx]
	f := img.segments[entry.segIndex]
	raw := make([]byte, img.chunkSize+16) // compressed chunks vary in size; over-read and trim
	n, err := f.ReadAt(raw, entry.offset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read chunk payload: %w", err)
	}
	raw = raw[:n]

	var out []byte
	if entry.compressed {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zlib header: %w", err)
		}
		defer zr.Close()
		out = make([]byte, 0, img.chunkSize)
		buf := make([]byte, 4096)
		for {
			n, rerr := zr.Read(buf)
			if n > 0 {
				out = append(out, buf[:n]...)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return nil, fmt.Errorf("zlib decompress: %w", rerr)
			}
			if int64(len(out)) >= img.chunkSize {
				break
			}
		}
	} else {
		if int64(len(raw)) > img.chunkSize {
			raw = raw[:img.chunkSize]
		}
		out = raw
	}
	img.cache.Add(idx, out)
	return out, nil
}

func (img *ewfImage) Close() error {
	var first error
	for _, f := range img.segments {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
