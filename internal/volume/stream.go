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
	"fmt"

	"github.com/forensiccorpus/corpus/internal/carve"
)

// Stream is a bounded, 0-based byte view of one partition within its
// backing image, transparently decrypting BitLocker-protected sectors
// when unlocked. It satisfies internal/carve.ByteSource structurally,
// without either package importing the other (spec.md §9 Design Note
// avoiding a volume<->carve import cycle).
type Stream struct {
	disk      *Disk
	part      Partition
	bitlocker *bitlockerInfo // nil unless BitLocker was detected and unlocked
}

var _ carve.ByteSource = (*Stream)(nil)

// OpenStream binds a bounded byte stream to one partition. If the
// partition carries a BitLocker header, this attempts to unlock it
// with recoveryPassword; failure to unlock is not an error here; the
// caller is expected to have already marked the partition is_crypted
// via DetectCrypted and can still carve the (undecrypted) ciphertext
// if it chooses to (spec.md §4.2 "BitLocker failure to unlock is
// non-fatal").
func OpenStream(d *Disk, p Partition, recoveryPassword string) *Stream {
	s := &Stream{disk: d, part: p}
	if detectBitLocker(d.Img, p.StartOffset) {
		if info, err := unlockBitLocker(d.Img, p.StartOffset, recoveryPassword); err == nil {
			s.bitlocker = info
		}
	}
	return s
}

// DetectCrypted reports whether p carries a BitLocker header,
// independent of whether this process can unlock it.
func DetectCrypted(d *Disk, p Partition) bool {
	return detectBitLocker(d.Img, p.StartOffset)
}

func (s *Stream) Size() int64 { return s.part.Size }

// ReadAt reads len(p) bytes at partition-relative offset off. When the
// partition is BitLocker-unlocked, reads are expanded to whole sectors
// and decrypted sector-by-sector before the requested slice is copied
// out (spec.md §4.2's Open Question about short/partial reads at
// end-of-partition is handled the same way whether or not BitLocker is
// in play: a short read is returned as-is, never padded).
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.part.Size {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > s.part.Size {
		end = s.part.Size
	}
	if s.bitlocker == nil {
		return s.disk.Img.ReadAt(p[:end-off], s.part.StartOffset+off)
	}

	sectorSize := int64(s.bitlocker.sectorSize)
	startSector := off / sectorSize
	endSector := (end + sectorSize - 1) / sectorSize
	raw := make([]byte, (endSector-startSector)*sectorSize)
	n, err := s.disk.Img.ReadAt(raw, s.part.StartOffset+startSector*sectorSize)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("volume: read ciphertext sectors: %w", err)
	}
	raw = raw[:n]

	written := 0
	for secOff := int64(0); secOff+sectorSize <= int64(len(raw)); secOff += sectorSize {
		sectorNum := uint64(startSector) + uint64(secOff/sectorSize)
		plain, derr := s.bitlocker.decryptSector(sectorNum, raw[secOff:secOff+sectorSize])
		if derr != nil {
			return written, fmt.Errorf("volume: decrypt sector %d: %w", sectorNum, derr)
		}
		absStart := startSector*sectorSize + secOff
		for i, b := range plain {
			at := absStart + int64(i)
			if at < off || at >= end {
				continue
			}
			p[at-off] = b
			written++
		}
	}
	return written, nil
}

// Carve runs a generic record carver across this partition's raw
// bytes using the C2 raw-partition carry-over window (spec.md §4.2
// "carve(fn)"), independent of any filesystem parse.
func Carve[T any](s *Stream, carver carve.Carver[T], keyFn carve.KeyFunc[T], sink carve.Sink[T], progress carve.ProgressFunc) error {
	d := carve.Driver[T]{ChunkSize: 50 << 20, CarryOver: 16 << 20, ProgressEvery: carve.DefaultDriver[T]().ProgressEvery}
	return d.Run(s, carver, keyFn, sink, progress)
}
