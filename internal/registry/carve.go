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

package registry

import (
	"encoding/binary"

	"github.com/forensiccorpus/corpus/internal/record"
)

// parentUnknownTag is the path segment used when a carved key's parent
// cell is no longer reachable from the live tree, spec.md §4.10
// "Deleted-key carving" scenario 5.
const parentUnknownTag = `[PARENT_UNKNOWN]`

// CarveDeleted scans every hive bin's free (unallocated) cells for
// embedded "nk" markers left behind by deletion, emitting a deleted=true
// RegistryEntry for each recoverable key and, for each of its values,
// only when that value's own cell is itself still unallocated (spec.md
// §4.10: "Values are included only if themselves located in free
// cells" -- a value pointer surviving inside stale key bytes that now
// resolves to a live, reused cell must not be misattributed as
// recovered). Call WalkLive first so recovered keys can be stitched
// under their still-reachable ancestor via PathOf.
func (h *Hive) CarveDeleted(sink EntrySink) error {
	total := h.src.Size()
	offset := int64(baseOffset)

	for offset+32 <= total {
		hdr := make([]byte, 32)
		if _, err := h.src.ReadAt(hdr, offset); err != nil {
			break
		}
		if string(hdr[0:4]) != "hbin" {
			break
		}
		binSize := int64(binary.LittleEndian.Uint32(hdr[8:12]))
		if binSize < 32 {
			break
		}
		if err := h.carveBin(offset, offset+binSize, sink); err != nil {
			return err
		}
		offset += binSize
	}
	return nil
}

// carveBin walks one hive bin's cells sequentially so free regions can
// be told apart from allocated ones, then scans each free region on
// 4-byte steps for a plausible "nk" cell start (spec.md §4.10: "for
// each free cell, scan 4-byte steps searching for the nk marker").
func (h *Hive) carveBin(start, end int64, sink EntrySink) error {
	pos := start + 32
	for pos+4 <= end {
		szBuf := make([]byte, 4)
		if _, err := h.src.ReadAt(szBuf, pos); err != nil {
			return nil
		}
		raw := int32(binary.LittleEndian.Uint32(szBuf))
		size := int64(raw)
		if size < 0 {
			size = -size
		}
		if size < 4 {
			return nil // corrupt cell chain, stop scanning this bin
		}
		if raw >= 0 && size >= 12 {
			if err := h.scanFreeRegion(pos, pos+size, sink); err != nil {
				return err
			}
		}
		pos += size
	}
	return nil
}

// scanFreeRegion checks every 4-byte aligned candidate cell start
// within [start, end) for a trailing "nk" signature, attempting a full
// key parse on each hit.
func (h *Hive) scanFreeRegion(start, end int64, sink EntrySink) error {
	for p := start; p+8 <= end; p += 4 {
		sig := make([]byte, 2)
		if _, err := h.src.ReadAt(sig, p+4); err != nil {
			continue
		}
		if string(sig) != "nk" {
			continue
		}
		c, err := h.readCell(p)
		if err != nil {
			continue
		}
		nk, err := parseNK(c)
		if err != nil {
			continue
		}
		if err := h.emitCarvedKey(nk, sink); err != nil {
			return err
		}
	}
	return nil
}

// emitCarvedKey resolves the carved key's ancestor path (falling back
// to the PARENT_UNKNOWN tag) and emits it plus any of its values that
// are themselves still in free cells.
func (h *Hive) emitCarvedKey(nk nkKey, sink EntrySink) error {
	parentAbs := absOffset(nk.parentOffset)
	prefix, ok := h.PathOf(parentAbs)
	if !ok {
		prefix = h.mountPoint + `\` + parentUnknownTag
	}
	fullPath := prefix + `\` + nk.name

	if err := sink2(sink, record.RegistryEntry{
		ParentKey: prefix,
		Name:      nk.name,
		Timestamp: nk.lastWrite,
		IsKey:     true,
		Deleted:   true,
		Content:   "(value not set)",
	}); err != nil {
		return err
	}

	valueOffs, err := h.valueOffsets(nk.valuesListOff, nk.numValues)
	if err != nil {
		return nil
	}
	for _, vOff := range valueOffs {
		abs := absOffset(vOff)
		free, err := h.cellIsFree(abs)
		if err != nil || !free {
			continue
		}
		vc, err := h.readCell(abs)
		if err != nil {
			continue
		}
		vk, err := h.parseVK(vc)
		if err != nil {
			continue
		}
		typeTag, contentJSON, rawHex := decodeValue(vk.rawType, vk.data)
		if err := sink2(sink, record.RegistryEntry{
			ParentKey: fullPath,
			Name:      vk.name,
			Timestamp: nk.lastWrite,
			IsKey:     false,
			Deleted:   true,
			Type:      typeTag,
			Content:   contentJSON,
			RawHex:    rawHex,
		}); err != nil {
			return err
		}
	}
	return nil
}

// cellIsFree reports whether the cell at an absolute offset is
// currently unallocated, without requiring the rest of its body parse.
func (h *Hive) cellIsFree(off int64) (bool, error) {
	szBuf := make([]byte, 4)
	if _, err := h.src.ReadAt(szBuf, off); err != nil {
		return false, err
	}
	raw := int32(binary.LittleEndian.Uint32(szBuf))
	return raw >= 0, nil
}
