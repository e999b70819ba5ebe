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
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

var vssSignatureGUID = []byte{0x6b, 0x87, 0x08, 0x82, 0x16, 0x9a, 0xe4, 0x11, 0xb0, 0x21, 0x00, 0x1c, 0xc4, 0xd6, 0xa3, 0x1d}

// ShadowCopy is one Volume Shadow Copy store entry, spec.md §4.2
// "VSS enumeration".
type ShadowCopy struct {
	Index        int
	CreationTime time.Time
	StoreOffset  int64 // absolute byte offset of this snapshot's base block within the partition
}

func (s ShadowCopy) Less(other btree.Item) bool {
	o := other.(ShadowCopy)
	if s.CreationTime.Equal(o.CreationTime) {
		return s.Index < o.Index
	}
	return s.CreationTime.Before(o.CreationTime)
}

// vssCache memoizes one partition's shadow-copy enumeration; VSS
// catalog parsing touches the partition's last sectors and is worth
// paying for once per partition scope rather than once per caller
// (spec.md §4.2 "VSS store enumeration is cached per partition").
type vssCache struct {
	mu    sync.Mutex
	byOff map[int64]*btree.BTree
}

var globalVSSCache = &vssCache{byOff: make(map[int64]*btree.BTree)}

// ListShadowCopies enumerates an NTFS volume's VSS store, returning
// snapshots ordered oldest-first. The NTFS VSS catalog lives in the
// last sectors of the volume and carries a fixed GUID signature
// (spec.md §4.2); a volume with no catalog returns an empty, non-error
// result.
func (d *Disk) ListShadowCopies(p Partition) ([]ShadowCopy, error) {
	globalVSSCache.mu.Lock()
	if tree, ok := globalVSSCache.byOff[p.StartOffset]; ok {
		globalVSSCache.mu.Unlock()
		return flattenVSSTree(tree), nil
	}
	globalVSSCache.mu.Unlock()

	catalogOffset := p.StartOffset + p.Size - (64 << 10) // VSS catalog lives near the end of the volume
	buf := make([]byte, 64<<10)
	if _, err := d.Img.ReadAt(buf, catalogOffset); err != nil {
		return nil, fmt.Errorf("volume: read vss catalog region: %w", err)
	}

	tree := btree.New(8)
	idx := 0
	pos := 0
	for {
		rel := bytes.Index(buf[pos:], vssSignatureGUID)
		if rel < 0 {
			break
		}
		entryOff := pos + rel
		if entryOff+32 > len(buf) {
			break
		}
		idx++
		ticks := binary.LittleEndian.Uint64(buf[entryOff+16 : entryOff+24])
		created, err := filetime.FromTicks(ticks)
		if err != nil {
			pos = entryOff + 16
			continue
		}
		tree.ReplaceOrInsert(ShadowCopy{
			Index:        idx,
			CreationTime: created,
			StoreOffset:  catalogOffset + int64(entryOff),
		})
		pos = entryOff + 16
	}

	globalVSSCache.mu.Lock()
	globalVSSCache.byOff[p.StartOffset] = tree
	globalVSSCache.mu.Unlock()
	return flattenVSSTree(tree), nil
}

func flattenVSSTree(tree *btree.BTree) []ShadowCopy {
	out := make([]ShadowCopy, 0, tree.Len())
	tree.Ascend(func(it btree.Item) bool {
		out = append(out, it.(ShadowCopy))
		return true
	})
	return out
}
