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

package fsx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/forensiccorpus/corpus/internal/volume"
)

// bootSector is the handful of NTFS $Boot fields this package needs:
// geometry to locate byte offsets, and the MFT's starting cluster.
type bootSector struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	clusterSize       int64
	mftStartCluster   uint64
	recordSize        int64
}

func parseBootSector(s *volume.Stream) (bootSector, error) {
	buf := make([]byte, 512)
	if _, err := s.ReadAt(buf, 0); err != nil {
		return bootSector{}, fmt.Errorf("read boot sector: %w", err)
	}
	if buf[3] != 'N' || buf[4] != 'T' || buf[5] != 'F' || buf[6] != 'S' {
		return bootSector{}, errors.New("not an NTFS boot sector")
	}
	bps := binary.LittleEndian.Uint16(buf[11:13])
	spc := buf[13]
	mftStart := binary.LittleEndian.Uint64(buf[48:56])
	clusterRecSize := int8(buf[64])

	b := bootSector{
		bytesPerSector:    bps,
		sectorsPerCluster: spc,
		clusterSize:       int64(bps) * int64(spc),
		mftStartCluster:   mftStart,
	}
	if clusterRecSize < 0 {
		b.recordSize = int64(1) << uint(-clusterRecSize)
	} else {
		b.recordSize = int64(clusterRecSize) * b.clusterSize
	}
	return b, nil
}

func (b bootSector) mftOffset() int64 { return int64(b.mftStartCluster) * b.clusterSize }
