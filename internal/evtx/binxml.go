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

package evtx

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"unicode/utf16"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

// Binary XML token bytes (MS-EVEN6 §2.4). The high bit 0x40 is a
// "has more data" flag carried by several token types; token
// identities below are masked with tokenMask before switching.
const (
	tokenMask = 0x3f

	tokenEOF                  = 0x00
	tokenOpenStartElement     = 0x01
	tokenCloseStartElement    = 0x02
	tokenCloseEmptyElement    = 0x03
	tokenEndElement           = 0x04
	tokenValue                = 0x05
	tokenAttribute            = 0x06
	tokenCDataSection         = 0x07
	tokenTemplateInstance     = 0x0c
	tokenNormalSubstitution   = 0x0d
	tokenConditionalSubst     = 0x0e
	tokenFragmentHeader       = 0x0f
)

// Value type tags (MS-EVEN6 §2.4.1), used by both inline Value tokens
// and the substitution-array entries a TemplateInstance carries.
const (
	valNull        byte = 0x00
	valString      byte = 0x01
	valAnsiString  byte = 0x02
	valInt8        byte = 0x03
	valUInt8       byte = 0x04
	valInt16       byte = 0x05
	valUInt16      byte = 0x06
	valInt32       byte = 0x07
	valUInt32      byte = 0x08
	valInt64       byte = 0x09
	valUInt64      byte = 0x0a
	valReal32      byte = 0x0b
	valReal64      byte = 0x0c
	valBool        byte = 0x0d
	valBinary      byte = 0x0e
	valGUID        byte = 0x0f
	valSizeT       byte = 0x10
	valFileTime    byte = 0x11
	valSysTime     byte = 0x12
	valSID         byte = 0x13
	valHexInt32    byte = 0x14
	valHexInt64    byte = 0x15
)

// attr is one element attribute, either a literal value or a
// placeholder to be filled from a TemplateInstance's substitution
// array.
type attr struct {
	name        string
	value       string
	isSubst     bool
	conditional bool
	substIndex  int
	substType   byte
}

// node is one binary-XML element after decoding but before
// substitution resolution: value/text children carry either a literal
// string or a substitution placeholder, same shape as attr.
type node struct {
	name     string
	attrs    []attr
	children []*node
	value    string
	isSubst  bool
	conditional bool
	substIndex int
	substType  byte
	isValueLeaf bool
}

// substValue is one entry of a TemplateInstance's substitution array:
// its declared type and raw bytes, rendered lazily by renderValue only
// for the substitutions actually referenced by the template body.
type substValue struct {
	typ  byte
	data []byte
}

// decoder walks one binary-XML document (either a top-level record
// fragment or a cached template body) over a chunk-relative buffer.
type decoder struct {
	buf       []byte
	templates map[int]*node // chunk-relative definition offset -> parsed template body
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf, templates: make(map[int]*node)}
}

// parseFragment parses a full binary-XML fragment starting at pos,
// which must begin with the 4-byte fragment header token (spec.md
// §4.6 "parses the binary XML tree").
func (d *decoder) parseFragment(pos int) (*node, int, error) {
	if pos+4 > len(d.buf) || d.buf[pos] != tokenFragmentHeader {
		return nil, 0, fmt.Errorf("evtx: expected fragment header at %d", pos)
	}
	pos += 4
	return d.parseElement(pos)
}

func (d *decoder) parseElement(pos int) (*node, int, error) {
	if pos >= len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated element at %d", pos)
	}
	tok := d.buf[pos]
	if tok&tokenMask != tokenOpenStartElement {
		return nil, 0, fmt.Errorf("evtx: expected OpenStartElement at %d, got %#x", pos, tok)
	}
	hasAttrs := tok&0x40 != 0
	pos++
	pos += 2 // dependency-id / unknown
	if pos+4 > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated element header at %d", pos)
	}
	pos += 4 // element data size, used by real parsers to skip; unused here

	name, consumed, err := d.readName(pos)
	if err != nil {
		return nil, 0, err
	}
	pos += consumed

	n := &node{name: name}

	if hasAttrs {
		if pos+4 > len(d.buf) {
			return nil, 0, fmt.Errorf("evtx: truncated attribute list size at %d", pos)
		}
		listSize := int(binary.LittleEndian.Uint32(d.buf[pos : pos+4]))
		pos += 4
		end := pos + listSize
		if end > len(d.buf) {
			end = len(d.buf)
		}
		for pos < end {
			a, np, err := d.readAttribute(pos)
			if err != nil {
				return nil, 0, err
			}
			n.attrs = append(n.attrs, a)
			pos = np
		}
	}

	if pos >= len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated close tag at %d", pos)
	}
	closeTok := d.buf[pos] & tokenMask
	pos++
	if closeTok == tokenCloseEmptyElement {
		return n, pos, nil
	}
	if closeTok != tokenCloseStartElement {
		return nil, 0, fmt.Errorf("evtx: expected close-start/close-empty at %d, got %#x", pos-1, closeTok)
	}

	for {
		if pos >= len(d.buf) {
			return n, pos, nil
		}
		childTok := d.buf[pos] & tokenMask
		switch childTok {
		case tokenEOF:
			return n, pos, nil
		case tokenEndElement:
			pos++
			return n, pos, nil
		case tokenOpenStartElement:
			child, np, err := d.parseElement(pos)
			if err != nil {
				return nil, 0, err
			}
			n.children = append(n.children, child)
			pos = np
		case tokenValue:
			child, np, err := d.readValueNode(pos)
			if err != nil {
				return nil, 0, err
			}
			n.children = append(n.children, child)
			pos = np
		case tokenCDataSection:
			child, np, err := d.readCData(pos)
			if err != nil {
				return nil, 0, err
			}
			n.children = append(n.children, child)
			pos = np
		case tokenNormalSubstitution, tokenConditionalSubst:
			child, np, err := d.readSubstNode(pos)
			if err != nil {
				return nil, 0, err
			}
			n.children = append(n.children, child)
			pos = np
		case tokenTemplateInstance:
			child, np, err := d.readTemplateInstance(pos)
			if err != nil {
				return nil, 0, err
			}
			n.children = append(n.children, child)
			pos = np
		default:
			// An unrecognized token mid-stream means a damaged or
			// truncated record; stop walking this element rather than
			// fail the whole chunk (spec.md §4.6 "any parse failure
			// inside the chunk is swallowed per record").
			return n, pos, nil
		}
	}
}

// readName decodes one inline name string: a 4-byte chain offset
// (unused here; this implementation always defines names inline rather
// than interning them by chunk offset), a 2-byte hash, a 2-byte
// character count, the UTF-16 characters, and a trailing UTF-16 NUL.
func (d *decoder) readName(pos int) (string, int, error) {
	if pos+8 > len(d.buf) {
		return "", 0, fmt.Errorf("evtx: truncated name header at %d", pos)
	}
	numChars := int(binary.LittleEndian.Uint16(d.buf[pos+6 : pos+8]))
	start := pos + 8
	end := start + numChars*2
	if end > len(d.buf) {
		return "", 0, fmt.Errorf("evtx: truncated name data at %d", pos)
	}
	name := decodeUTF16(d.buf[start:end])
	consumed := 8 + numChars*2 + 2 // +2 for the trailing NUL terminator
	return name, consumed, nil
}

func (d *decoder) readAttribute(pos int) (attr, int, error) {
	if pos >= len(d.buf) || d.buf[pos]&tokenMask != tokenAttribute {
		return attr{}, 0, fmt.Errorf("evtx: expected Attribute token at %d", pos)
	}
	pos++
	name, consumed, err := d.readName(pos)
	if err != nil {
		return attr{}, 0, err
	}
	pos += consumed

	if pos >= len(d.buf) {
		return attr{}, 0, fmt.Errorf("evtx: truncated attribute value at %d", pos)
	}
	valTok := d.buf[pos] & tokenMask
	switch valTok {
	case tokenValue:
		vn, np, err := d.readValueNode(pos)
		if err != nil {
			return attr{}, 0, err
		}
		return attr{name: name, value: vn.value}, np, nil
	case tokenNormalSubstitution, tokenConditionalSubst:
		idx, typ, np, err := d.readSubstHeader(pos)
		if err != nil {
			return attr{}, 0, err
		}
		return attr{name: name, isSubst: true, conditional: valTok == tokenConditionalSubst, substIndex: idx, substType: typ}, np, nil
	default:
		return attr{}, 0, fmt.Errorf("evtx: unexpected attribute value token %#x at %d", valTok, pos)
	}
}

func (d *decoder) readValueNode(pos int) (*node, int, error) {
	if pos+4 > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated value header at %d", pos)
	}
	pos++ // token
	typ := d.buf[pos]
	pos++
	length := int(binary.LittleEndian.Uint16(d.buf[pos : pos+2]))
	pos += 2
	if pos+length > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated value data at %d", pos)
	}
	val := renderValue(typ, d.buf[pos:pos+length])
	return &node{value: val, isValueLeaf: true}, pos + length, nil
}

func (d *decoder) readCData(pos int) (*node, int, error) {
	if pos+3 > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated cdata header at %d", pos)
	}
	pos++
	length := int(binary.LittleEndian.Uint16(d.buf[pos : pos+2]))
	pos += 2
	if pos+length > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated cdata at %d", pos)
	}
	return &node{value: decodeUTF16(d.buf[pos : pos+length]), isValueLeaf: true}, pos + length, nil
}

func (d *decoder) readSubstHeader(pos int) (idx int, typ byte, next int, err error) {
	if pos+4 > len(d.buf) {
		return 0, 0, 0, fmt.Errorf("evtx: truncated substitution token at %d", pos)
	}
	pos++
	idx = int(binary.LittleEndian.Uint16(d.buf[pos : pos+2]))
	pos += 2
	typ = d.buf[pos]
	pos++
	return idx, typ, pos, nil
}

func (d *decoder) readSubstNode(pos int) (*node, int, error) {
	tok := d.buf[pos] & tokenMask
	idx, typ, next, err := d.readSubstHeader(pos)
	if err != nil {
		return nil, 0, err
	}
	return &node{isSubst: true, conditional: tok == tokenConditionalSubst, substIndex: idx, substType: typ, isValueLeaf: true}, next, nil
}

// readTemplateInstance decodes a TemplateInstance token: either a
// fresh template definition (the common case for the first record
// using a given template shape) or a reference to one already parsed
// earlier in this chunk, followed in both cases by the record's
// substitution-value array (spec.md §4.6's "binary XML tree" and
// Design Note on coroutines/generators do not speak to template
// sharing directly; this mirrors the real EVTX per-chunk template
// cache so repeated records of the same event type decode cheaply).
func (d *decoder) readTemplateInstance(pos int) (*node, int, error) {
	start := pos
	if pos+10 > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated template instance at %d", pos)
	}
	pos++ // token
	pos++ // reserved
	pos += 4 // template id, unused
	defOffset := int(binary.LittleEndian.Uint32(d.buf[pos : pos+4]))
	pos += 4

	tmpl, ok := d.templates[defOffset]
	if !ok {
		defPos := defOffset
		if defPos != pos && defPos < len(d.buf) {
			// Forward/backward reference to a definition elsewhere in
			// the chunk buffer that this pass hasn't visited inline;
			// parse it at its own offset without disturbing the
			// current cursor.
			if t, _, err := d.parseTemplateDef(defPos); err == nil {
				tmpl = t
				d.templates[defOffset] = tmpl
			}
		}
		if tmpl == nil {
			t, np, err := d.parseTemplateDef(pos)
			if err != nil {
				return nil, 0, err
			}
			tmpl = t
			d.templates[defOffset] = tmpl
			pos = np
		}
	} else if defOffset == pos {
		// Already cached from an earlier instance; still need to skip
		// over this copy of the definition bytes if it's physically
		// present here too. In this simplified codec, a reference
		// always omits the definition body, so nothing to skip.
	}

	if pos+4 > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated substitution count at %d", pos)
	}
	count := int(binary.LittleEndian.Uint32(d.buf[pos : pos+4]))
	pos += 4
	sizes := make([]int, count)
	types := make([]byte, count)
	for i := 0; i < count; i++ {
		if pos+4 > len(d.buf) {
			return nil, 0, fmt.Errorf("evtx: truncated substitution descriptor at %d", pos)
		}
		sizes[i] = int(binary.LittleEndian.Uint16(d.buf[pos : pos+2]))
		types[i] = d.buf[pos+2]
		pos += 4
	}
	values := make([]substValue, count)
	for i := 0; i < count; i++ {
		if pos+sizes[i] > len(d.buf) {
			return nil, 0, fmt.Errorf("evtx: truncated substitution value %d at %d", i, pos)
		}
		values[i] = substValue{typ: types[i], data: d.buf[pos : pos+sizes[i]]}
		pos += sizes[i]
	}

	resolved := resolve(tmpl, values)
	_ = start
	return resolved, pos, nil
}

func (d *decoder) parseTemplateDef(pos int) (*node, int, error) {
	if pos+24 > len(d.buf) {
		return nil, 0, fmt.Errorf("evtx: truncated template definition at %d", pos)
	}
	pos += 4  // next-template-offset chain, unused
	pos += 16 // GUID, unused
	pos += 4  // declared data size, unused: parseFragment self-terminates
	return d.parseFragment(pos)
}

// resolve replaces every substitution placeholder in tmpl with its
// rendered value from values, dropping conditional-substitution
// attributes/nodes whose backing value is NULL (MS-EVEN6's mechanism
// for "this optional attribute wasn't present").
func resolve(tmpl *node, values []substValue) *node {
	if tmpl == nil {
		return &node{name: "Event"}
	}
	out := &node{name: tmpl.name, value: tmpl.value, isValueLeaf: tmpl.isValueLeaf}
	for _, a := range tmpl.attrs {
		if a.isSubst {
			if a.substIndex >= len(values) {
				continue
			}
			v := values[a.substIndex]
			if a.conditional && v.typ == valNull {
				continue
			}
			out.attrs = append(out.attrs, attr{name: a.name, value: renderValue(v.typ, v.data)})
			continue
		}
		out.attrs = append(out.attrs, a)
	}
	if tmpl.isSubst {
		if tmpl.substIndex < len(values) {
			v := values[tmpl.substIndex]
			if !(tmpl.conditional && v.typ == valNull) {
				out.value = renderValue(v.typ, v.data)
				out.isValueLeaf = true
			}
		}
		return out
	}
	for _, c := range tmpl.children {
		rc := resolve(c, values)
		if rc == nil {
			continue
		}
		if c.isSubst && c.conditional && c.substIndex < len(values) && values[c.substIndex].typ == valNull {
			continue
		}
		out.children = append(out.children, rc)
	}
	return out
}

func decodeUTF16(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}

// renderValue converts one typed value's raw bytes to the display
// string stored in an Event's attributes or JSON data blob (spec.md
// §4.6 "binary blobs are hex-encoded").
func renderValue(typ byte, data []byte) string {
	switch typ {
	case valString:
		return decodeUTF16(data)
	case valAnsiString:
		return string(data)
	case valInt8:
		if len(data) >= 1 {
			return fmt.Sprintf("%d", int8(data[0]))
		}
	case valUInt8:
		if len(data) >= 1 {
			return fmt.Sprintf("%d", data[0])
		}
	case valInt16:
		if len(data) >= 2 {
			return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(data)))
		}
	case valUInt16:
		if len(data) >= 2 {
			return fmt.Sprintf("%d", binary.LittleEndian.Uint16(data))
		}
	case valInt32:
		if len(data) >= 4 {
			return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(data)))
		}
	case valUInt32, valHexInt32:
		if len(data) >= 4 {
			v := binary.LittleEndian.Uint32(data)
			if typ == valHexInt32 {
				return fmt.Sprintf("0x%x", v)
			}
			return fmt.Sprintf("%d", v)
		}
	case valInt64:
		if len(data) >= 8 {
			return fmt.Sprintf("%d", int64(binary.LittleEndian.Uint64(data)))
		}
	case valUInt64, valSizeT, valHexInt64:
		if len(data) >= 8 {
			v := binary.LittleEndian.Uint64(data)
			if typ == valHexInt64 {
				return fmt.Sprintf("0x%x", v)
			}
			return fmt.Sprintf("%d", v)
		}
	case valReal32:
		if len(data) >= 4 {
			return fmt.Sprintf("%g", binary.LittleEndian.Uint32(data))
		}
	case valReal64:
		if len(data) >= 8 {
			return fmt.Sprintf("%g", binary.LittleEndian.Uint64(data))
		}
	case valBool:
		if len(data) >= 4 {
			return fmt.Sprintf("%t", binary.LittleEndian.Uint32(data) != 0)
		}
	case valFileTime:
		if len(data) >= 8 {
			if t, err := filetime.FromTicks(binary.LittleEndian.Uint64(data)); err == nil {
				return filetime.ISO(t)
			}
		}
	case valGUID:
		if len(data) >= 16 {
			return formatGUID(data)
		}
	case valNull:
		return ""
	}
	return hex.EncodeToString(data)
}

func formatGUID(b []byte) string {
	return fmt.Sprintf("{%08x-%04x-%04x-%04x-%012x}",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		binary.BigEndian.Uint16(b[8:10]),
		b[10:16])
}
