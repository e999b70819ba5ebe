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
	"fmt"

	"github.com/forensiccorpus/corpus/internal/record"
)

// EntrySink persists one RegistryEntry row.
type EntrySink func(record.RegistryEntry) (bool, error)

// WalkLive performs the BFS hive walk of spec.md §4.10 ("Hive parse"):
// starting at the root key, emit one is_key=true RegistryEntry per key
// (with its default value's content, if any) and one is_key=false
// RegistryEntry per named value, queuing subkeys rather than recursing
// so a pathological or corrupt hive can't blow the stack.
func (h *Hive) WalkLive(sink EntrySink) error {
	type queued struct {
		offset     int64
		parentPath string
	}
	seen := make(map[int64]bool)
	queue := []queued{{offset: h.rootOffset, parentPath: h.mountPoint}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if seen[item.offset] {
			continue // cycle guard, spec.md §9 "Cyclic structures"
		}
		seen[item.offset] = true

		c, err := h.readCell(item.offset)
		if err != nil {
			continue // spec.md §7 kind 3: unparseable record, skip and continue
		}
		nk, err := parseNK(c)
		if err != nil {
			continue
		}

		isRoot := item.offset == h.rootOffset
		fullPath := item.parentPath
		keyName := nk.name
		if isRoot {
			// The root key's own name (an internal hive artifact, e.g.
			// "CMI-CreateHive{...}") never appears in a normalized path;
			// the caller-supplied mount point stands in for it entirely.
			fullPath = h.mountPoint
			keyName = ""
		} else {
			fullPath = item.parentPath + `\` + nk.name
		}
		h.pathByOffset[item.offset] = fullPath

		className := ""
		if nk.classNameOffset != cellOffsetNone && nk.classNameLength > 0 {
			if cc, err := h.readCell(absOffset(nk.classNameOffset)); err == nil {
				n := int(nk.classNameLength)
				if n > len(cc.data) {
					n = len(cc.data)
				}
				className = decodeUTF16(cc.data[:n])
			}
		}

		defaultContent := "(value not set)"
		valueOffs, err := h.valueOffsets(nk.valuesListOff, nk.numValues)
		if err == nil {
			for _, vOff := range valueOffs {
				vc, err := h.readCell(absOffset(vOff))
				if err != nil {
					continue
				}
				vk, err := h.parseVK(vc)
				if err != nil {
					continue
				}
				typeTag, contentJSON, rawHex := decodeValue(vk.rawType, vk.data)
				if vk.name == "(default)" {
					defaultContent = contentJSON
				}
				if err := sink2(sink, record.RegistryEntry{
					ParentKey: fullPath,
					Name:      vk.name,
					Timestamp: nk.lastWrite,
					IsKey:     false,
					Type:      typeTag,
					Content:   contentJSON,
					RawHex:    rawHex,
					ClassName: className,
				}); err != nil {
					return err
				}
			}
		}

		parentKeyPath := item.parentPath
		if keyName != "" {
			if err := sink2(sink, record.RegistryEntry{
				ParentKey: parentKeyPath,
				Name:      keyName,
				Timestamp: nk.lastWrite,
				IsKey:     true,
				Content:   defaultContent,
				ClassName: className,
			}); err != nil {
				return err
			}
		}

		subkeyOffs, err := h.subkeyOffsets(nk.subkeysListOff, make(map[int64]bool))
		if err != nil {
			continue
		}
		for _, sOff := range subkeyOffs {
			childOff := absOffset(sOff)
			queue = append(queue, queued{offset: childOff, parentPath: fullPath})
		}
	}
	return nil
}

func sink2(sink EntrySink, e record.RegistryEntry) error {
	if _, err := sink(e); err != nil {
		return fmt.Errorf("registry: write entry: %w", err)
	}
	return nil
}

// PathOf resolves a live cell's already-walked full path, used by
// deleted-key carving to stitch a recovered key under its still-
// reachable ancestor (spec.md §4.10 "Deleted-key carving").
func (h *Hive) PathOf(offset int64) (string, bool) {
	p, ok := h.pathByOffset[offset]
	return p, ok
}
