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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forensiccorpus/corpus/internal/record"
)

// nestedTagPattern pulls literal "<tag>payload</tag>" fragments out of
// a <Data> element's own text, matching dfxlibs' xml_to_dict.py regex
// findall('<.+?>(.*?)</.+?>', ..., re.DOTALL).
var nestedTagPattern = regexp.MustCompile(`(?s)<.+?>(.*?)</.+?>`)

// localName strips an XML namespace prefix (spec.md §4.6 "removes XML
// namespaces"): "e:System" and "System" both normalize to "System".
func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func findChild(n *node, name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if localName(c.name) == name {
			return c
		}
	}
	return nil
}

func childText(n *node) string {
	if n == nil {
		return ""
	}
	if n.value != "" {
		return n.value
	}
	for _, c := range n.children {
		if c.isValueLeaf {
			return c.value
		}
	}
	return ""
}

func attrValue(n *node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.attrs {
		if localName(a.name) == name {
			return a.value
		}
	}
	return ""
}

func parseIntField(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseSystemTime accepts both microsecond and second precision
// fractional seconds (spec.md §4.6) via RFC3339Nano, which tolerates
// any number of fractional digits, and rejects years before 1970.
func parseSystemTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("evtx: empty SystemTime")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05.999999999", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("evtx: unparseable SystemTime %q: %w", s, err)
		}
	}
	if t.Year() < 1970 {
		return time.Time{}, fmt.Errorf("evtx: SystemTime year %d before 1970", t.Year())
	}
	return t, nil
}

// eventFromNode normalizes a decoded <Event> binary-XML tree into a
// record.Event per spec.md §4.6's field table.
func eventFromNode(root *node) (ev record.Event, err error) {
	if root == nil {
		return ev, fmt.Errorf("evtx: empty event tree")
	}
	sys := findChild(root, "System")
	if sys == nil {
		return ev, fmt.Errorf("evtx: event missing System element")
	}

	if tc := findChild(sys, "TimeCreated"); tc != nil {
		if ts, terr := parseSystemTime(attrValue(tc, "SystemTime")); terr == nil {
			ev.Timestamp = ts
		} else {
			err = terr
		}
	}
	if prov := findChild(sys, "Provider"); prov != nil {
		ev.Provider = attrValue(prov, "Name")
	}
	ev.EventID = parseIntField(childText(findChild(sys, "EventID")))
	ev.Opcode = parseIntField(childText(findChild(sys, "Opcode")))
	ev.Level = parseIntField(childText(findChild(sys, "Level")))
	ev.EventRecordID = parseIntField(childText(findChild(sys, "EventRecordID")))
	ev.Channel = childText(findChild(sys, "Channel"))
	ev.Computer = childText(findChild(sys, "Computer"))
	if sec := findChild(sys, "Security"); sec != nil {
		ev.UserID = attrValue(sec, "UserID")
	}

	data := map[string]any{}
	if ed := findChild(root, "EventData"); ed != nil {
		populateData(ed, data)
	} else if ud := findChild(root, "UserData"); ud != nil && len(ud.children) > 0 {
		populateData(ud.children[0], data)
	}
	if len(data) > 0 {
		if blob, jerr := json.Marshal(data); jerr == nil {
			ev.Data = string(blob)
		}
	}

	return ev, err
}

// populateData implements spec.md §4.6's Data rule, grounded directly
// on dfxlibs' xml_to_dict(): it walks container's children (either
// <EventData>'s own children, or <UserData>'s first child's children)
// once, with the same per-child dispatch:
//
//   - a child with a Name attribute becomes data[Name] = text.
//   - a nameless <Data> child whose text itself contains literal
//     "<tag>payload</tag>" markup has every such payload appended to
//     the positional list; with no nested markup, the raw text itself
//     is appended instead.
//   - a nameless <Binary> child's base64 text is hex-decoded and
//     appended to the positional list.
//   - any other nameless child is flattened by its own tag name.
//
// The positional list is then merged in using stringified indices
// ("0", "1", ...), matching the original's dict update with int keys
// before JSON serialization.
func populateData(container *node, data map[string]any) {
	var positional []string
	for _, c := range container.children {
		if c.isValueLeaf {
			continue
		}
		if name := attrValue(c, "Name"); name != "" {
			data[name] = childText(c)
			continue
		}
		text := childText(c)
		if text == "" {
			continue
		}
		switch localName(c.name) {
		case "Data":
			if finds := nestedTagPattern.FindAllStringSubmatch(text, -1); len(finds) > 0 {
				for _, m := range finds {
					positional = append(positional, m[1])
				}
			} else {
				positional = append(positional, text)
			}
		case "Binary":
			if raw, err := base64.StdEncoding.DecodeString(text); err == nil {
				positional = append(positional, hexEncode(raw))
			}
		default:
			data[localName(c.name)] = text
		}
	}
	for i, v := range positional {
		data[strconv.Itoa(i)] = v
	}
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
