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
	"strings"
)

// FindKey walks down a path of subkey names from the root, case
// insensitively, the same kind of targeted descent the boot-key and
// LSA derivations need without paying for a full WalkLive (spec.md
// §4.10's security derivations address specific well-known subkeys
// directly, the way every DFIR tool of this kind does).
func (h *Hive) FindKey(parts ...string) (nkKey, error) {
	c, err := h.readCell(h.rootOffset)
	if err != nil {
		return nkKey{}, err
	}
	cur, err := parseNK(c)
	if err != nil {
		return nkKey{}, err
	}
	for _, want := range parts {
		offs, err := h.subkeyOffsets(cur.subkeysListOff, make(map[int64]bool))
		if err != nil {
			return nkKey{}, err
		}
		found := false
		for _, o := range offs {
			cc, err := h.readCell(absOffset(o))
			if err != nil {
				continue
			}
			nk, err := parseNK(cc)
			if err != nil {
				continue
			}
			if strings.EqualFold(nk.name, want) {
				cur = nk
				found = true
				break
			}
		}
		if !found {
			return nkKey{}, fmt.Errorf("registry: key %q not found", strings.Join(parts, `\`))
		}
	}
	return cur, nil
}

// ValueByName resolves one named value owned by an already-resolved key.
func (h *Hive) ValueByName(k nkKey, name string) (vkValue, bool, error) {
	offs, err := h.valueOffsets(k.valuesListOff, k.numValues)
	if err != nil {
		return vkValue{}, false, err
	}
	for _, o := range offs {
		c, err := h.readCell(absOffset(o))
		if err != nil {
			continue
		}
		vk, err := h.parseVK(c)
		if err != nil {
			continue
		}
		if strings.EqualFold(vk.name, name) {
			return vk, true, nil
		}
	}
	return vkValue{}, false, nil
}

// ClassName reads a key's own class-name string, decoded from UTF-16
// (spec.md §4.10 boot-key derivation reads these for SYSTEM\...\Lsa\*).
func (h *Hive) ClassName(k nkKey) (string, error) {
	if k.classNameOffset == cellOffsetNone || k.classNameLength == 0 {
		return "", nil
	}
	c, err := h.readCell(absOffset(k.classNameOffset))
	if err != nil {
		return "", err
	}
	n := int(k.classNameLength)
	if n > len(c.data) {
		n = len(c.data)
	}
	return decodeUTF16(c.data[:n]), nil
}

// Subkeys lists the immediate child keys of an already-resolved key.
func (h *Hive) Subkeys(k nkKey) ([]nkKey, error) {
	offs, err := h.subkeyOffsets(k.subkeysListOff, make(map[int64]bool))
	if err != nil {
		return nil, err
	}
	out := make([]nkKey, 0, len(offs))
	for _, o := range offs {
		c, err := h.readCell(absOffset(o))
		if err != nil {
			continue
		}
		nk, err := parseNK(c)
		if err != nil {
			continue
		}
		out = append(out, nk)
	}
	return out, nil
}
