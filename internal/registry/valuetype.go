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
	"encoding/json"
	"fmt"
	"strings"
)

// Standard REG_* type ids, used for the common case before falling
// back to the special-cased tags spec.md §4.10 calls out explicitly.
const (
	regSZ       = 1
	regExpandSZ = 2
	regBinary   = 3
	regDWORD    = 4
	regMultiSZ  = 7
	regQWORD    = 11

	typeBool        = 0x11
	typeUnicodeA    = 0x12
	typeUnicodeB    = 0x19
	typeMultiUnicode = 0x82
	typeGUID        = 0x0d
)

// decodeValue renders one value's type tag and JSON-encoded content,
// plus the raw bytes in hex, per spec.md §3 "RegistryEntry" and §4.10
// ("unknown types are handled specially ... else tagged
// Custom:Unknown:<raw_type>").
func decodeValue(rawType uint32, data []byte) (typeTag, contentJSON, rawHex string) {
	rawHex = hex.EncodeToString(data)

	switch rawType {
	case typeBool:
		v := len(data) > 0 && data[0] != 0
		return "bool", jsonOf(v), rawHex
	case typeUnicodeA, typeUnicodeB, regSZ, regExpandSZ:
		s := decodeUTF16(trimNUL(data))
		tag := "unicode"
		if rawType == regExpandSZ {
			tag = "expand_unicode"
		}
		return tag, jsonOf(s), rawHex
	case typeMultiUnicode, regMultiSZ:
		return "multi_unicode", jsonOf(splitMultiUTF16(data)), rawHex
	case typeGUID:
		if len(data) >= 16 {
			var g guidLike
			copy(g[:], data[:16])
			return "guid", jsonOf(g.String()), rawHex
		}
		return "guid", jsonOf(""), rawHex
	case regDWORD:
		if len(data) >= 4 {
			return "dword", jsonOf(binary.LittleEndian.Uint32(data)), rawHex
		}
	case regQWORD:
		if len(data) >= 8 {
			return "qword", jsonOf(binary.LittleEndian.Uint64(data)), rawHex
		}
	case regBinary:
		return "binary", jsonOf(hex.EncodeToString(data)), rawHex
	}
	return fmt.Sprintf("Custom:Unknown:%d", rawType), jsonOf(hex.EncodeToString(data)), rawHex
}

func jsonOf(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func trimNUL(b []byte) []byte {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			return b[:i]
		}
	}
	return b
}

// splitMultiUTF16 splits a REG_MULTI_SZ/multi-unicode blob on UTF-16
// NUL terminators into its component strings.
func splitMultiUTF16(b []byte) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			if i > start {
				out = append(out, decodeUTF16(b[start:i]))
			}
			start = i + 2
		}
	}
	if start < len(b) {
		if s := decodeUTF16(b[start:]); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// guidLike mirrors internal/lnk's mixed-endian GUID rendering; kept
// local rather than imported to avoid a registry->lnk dependency for
// one formatting helper.
type guidLike [16]byte

func (g guidLike) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		binary.BigEndian.Uint16(g[8:10]),
		g[10:16])
}
