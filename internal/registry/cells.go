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
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

// nkKey is a decoded "nk" (key node) cell, spec.md §4.10 "Hive parse".
type nkKey struct {
	cellOffset       int64
	lastWrite        time.Time
	parentOffset     uint32 // relative
	numSubkeys       uint32
	subkeysListOff   uint32
	numValues        uint32
	valuesListOff    uint32
	classNameOffset  uint32
	classNameLength  uint16
	name             string
}

// parseNK decodes an "nk" cell's fixed-layout body (spec.md §4.10's
// key fields: parent, subkey/value lists, class name, timestamp).
func parseNK(c cell) (nkKey, error) {
	d := c.data
	if len(d) < 76 || string(d[0:2]) != "nk" {
		return nkKey{}, fmt.Errorf("registry: not an nk cell at %d", c.offset)
	}
	lastWriteTicks := binary.LittleEndian.Uint64(d[4:12])
	lastWrite, _ := filetime.FromTicks(lastWriteTicks)

	nameLen := int(binary.LittleEndian.Uint16(d[72:74]))
	classLen := binary.LittleEndian.Uint16(d[74:76])
	name := ""
	if 76+nameLen <= len(d) {
		name = string(d[76 : 76+nameLen])
	}
	return nkKey{
		cellOffset:      c.offset,
		lastWrite:       lastWrite,
		parentOffset:    binary.LittleEndian.Uint32(d[16:20]),
		numSubkeys:      binary.LittleEndian.Uint32(d[20:24]),
		subkeysListOff:  binary.LittleEndian.Uint32(d[28:32]),
		numValues:       binary.LittleEndian.Uint32(d[36:40]),
		valuesListOff:   binary.LittleEndian.Uint32(d[40:44]),
		classNameOffset: binary.LittleEndian.Uint32(d[48:52]),
		classNameLength: classLen,
		name:            name,
	}, nil
}

// vkValue is a decoded "vk" (value) cell, spec.md §4.10's per-value
// fields: name, declared type, and raw content bytes (inline or
// pointed-to, per the standard data-length high-bit convention).
type vkValue struct {
	name    string
	rawType uint32
	data    []byte
}

// parseVK decodes a "vk" cell and resolves its data, following the
// pointed-to cell unless the high bit of the data-length field marks
// the value as stored inline (data length <= 4, spec.md §4.10 value
// decode).
func (h *Hive) parseVK(c cell) (vkValue, error) {
	d := c.data
	if len(d) < 20 || string(d[0:2]) != "vk" {
		return vkValue{}, fmt.Errorf("registry: not a vk cell at %d", c.offset)
	}
	nameLen := int(binary.LittleEndian.Uint16(d[2:4]))
	dataLenField := binary.LittleEndian.Uint32(d[4:8])
	dataOffset := binary.LittleEndian.Uint32(d[8:12])
	rawType := binary.LittleEndian.Uint32(d[12:16])

	name := "(default)"
	if nameLen > 0 && 20+nameLen <= len(d) {
		name = string(d[20 : 20+nameLen])
	}

	inline := dataLenField&0x80000000 != 0
	length := int(dataLenField &^ 0x80000000)

	var content []byte
	if inline {
		// Up to 4 bytes stored directly in the data-offset field.
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, dataOffset)
		if length > 4 {
			length = 4
		}
		content = buf[:length]
	} else {
		dc, err := h.readCell(absOffset(dataOffset))
		if err != nil {
			return vkValue{}, err
		}
		if length > len(dc.data) {
			length = len(dc.data)
		}
		content = dc.data[:length]
	}
	return vkValue{name: name, rawType: rawType, data: content}, nil
}

// subkeyOffsets walks a subkey-list cell, recursing through "ri" index
// roots as needed. Supported leaf kinds are "lf"/"lh" (8 bytes/entry:
// offset + name hash) and "li" (4 bytes/entry: bare offset).
func (h *Hive) subkeyOffsets(listOffset uint32, seen map[int64]bool) ([]uint32, error) {
	if listOffset == cellOffsetNone {
		return nil, nil
	}
	off := absOffset(listOffset)
	if seen[off] {
		return nil, nil // cycle guard, spec.md §9 "Cyclic structures"
	}
	seen[off] = true

	c, err := h.readCell(off)
	if err != nil {
		return nil, err
	}
	if len(c.data) < 4 {
		return nil, nil
	}
	sig := string(c.data[0:2])
	count := int(binary.LittleEndian.Uint16(c.data[2:4]))

	var out []uint32
	switch sig {
	case "lf", "lh":
		for i := 0; i < count; i++ {
			entryOff := 4 + i*8
			if entryOff+4 > len(c.data) {
				break
			}
			out = append(out, binary.LittleEndian.Uint32(c.data[entryOff:entryOff+4]))
		}
	case "li":
		for i := 0; i < count; i++ {
			entryOff := 4 + i*4
			if entryOff+4 > len(c.data) {
				break
			}
			out = append(out, binary.LittleEndian.Uint32(c.data[entryOff:entryOff+4]))
		}
	case "ri":
		for i := 0; i < count; i++ {
			entryOff := 4 + i*4
			if entryOff+4 > len(c.data) {
				break
			}
			nested := binary.LittleEndian.Uint32(c.data[entryOff : entryOff+4])
			sub, err := h.subkeyOffsets(nested, seen)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	default:
		return nil, fmt.Errorf("registry: unknown subkey list signature %q", sig)
	}
	return out, nil
}

// valueOffsets walks a plain value-list cell: numValues consecutive
// uint32 offsets with no signature of its own.
func (h *Hive) valueOffsets(listOffset uint32, numValues uint32) ([]uint32, error) {
	if listOffset == cellOffsetNone || numValues == 0 {
		return nil, nil
	}
	c, err := h.readCell(absOffset(listOffset))
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, numValues)
	for i := uint32(0); i < numValues; i++ {
		entryOff := int(i) * 4
		if entryOff+4 > len(c.data) {
			break
		}
		out = append(out, binary.LittleEndian.Uint32(c.data[entryOff:entryOff+4]))
	}
	return out, nil
}

func decodeUTF16(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}
