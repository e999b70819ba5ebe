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
	"encoding/hex"
	"fmt"
)

// bootKeyPermutation is the fixed nibble/byte scramble spec.md §4.10
// gives explicitly: "permuted by the fixed table
// [8,5,4,2,b,9,d,3,0,6,1,c,e,a,f,7]". Applying it once scrambles the
// concatenated class-name bytes into the real boot key; spec.md §8
// notes the permutation "applied twice is not identity... applying its
// inverse restores the scrambled key" -- callers that need to go the
// other direction use bootKeyPermutation as an index table into the
// scrambled form, not this function twice.
var bootKeyPermutation = [16]int{8, 5, 4, 2, 11, 9, 13, 3, 0, 6, 1, 12, 14, 10, 15, 7}

// BootKey derives the SYSTEM hive boot key (spec.md §4.10): the four
// class-name nibble streams under the active ControlSet's
// Control\Lsa\{JD,Skew1,GBG,Data}, concatenated and permuted.
func BootKey(system *Hive) ([]byte, error) {
	ccs, err := currentControlSet(system)
	if err != nil {
		return nil, err
	}
	lsa, err := system.FindKey(ccs, "Control", "Lsa")
	if err != nil {
		return nil, fmt.Errorf("registry: boot key: %w", err)
	}
	subs, err := system.Subkeys(lsa)
	if err != nil {
		return nil, err
	}
	names := []string{"JD", "Skew1", "GBG", "Data"}
	var raw []byte
	for _, want := range names {
		var matched *nkKey
		for i := range subs {
			if subs[i].name == want {
				matched = &subs[i]
				break
			}
		}
		if matched == nil {
			return nil, fmt.Errorf("registry: boot key: missing Lsa\\%s", want)
		}
		cls, err := system.ClassName(*matched)
		if err != nil {
			return nil, err
		}
		decoded, err := hex.DecodeString(cls)
		if err != nil {
			return nil, fmt.Errorf("registry: boot key: Lsa\\%s classname not hex: %w", want, err)
		}
		raw = append(raw, decoded...)
	}
	if len(raw) != 16 {
		return nil, fmt.Errorf("registry: boot key: expected 16 raw bytes, got %d", len(raw))
	}
	scrambled := make([]byte, 16)
	for i, src := range bootKeyPermutation {
		scrambled[i] = raw[src]
	}
	return scrambled, nil
}

// currentControlSet resolves SYSTEM\Select\Current to a "ControlSetNNN"
// name, the indirection every live SYSTEM hive uses instead of a direct
// CurrentControlSet key.
func currentControlSet(system *Hive) (string, error) {
	sel, err := system.FindKey("Select")
	if err != nil {
		return "", fmt.Errorf("registry: boot key: %w", err)
	}
	vk, ok, err := system.ValueByName(sel, "Current")
	if err != nil {
		return "", err
	}
	if !ok || len(vk.data) < 4 {
		return "", fmt.Errorf("registry: boot key: Select\\Current missing")
	}
	n := binary.LittleEndian.Uint32(vk.data[:4])
	return fmt.Sprintf("ControlSet%03d", n), nil
}
