package usn

import (
	"encoding/binary"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

func TestRenderReasonRoundTrips(t *testing.T) {
	bits := ReasonFileCreate | ReasonClose | ReasonDataExtend
	rendered := RenderReason(bits)
	require.Equal(t, bits, ParseReason(rendered))
}

func encodeUTF16(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	out := make([]byte, len(u16)*2)
	for i, u := range u16 {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

// buildRecord constructs one well-formed V2 record of exactly the
// requested total length (must be a multiple of 4 and >= 60 + name
// bytes), for boundary testing (spec.md §8 "USN parser accepts a
// 60-byte record; rejects 59").
func buildRecord(name string, reason, attrs uint32) []byte {
	nameBytes := encodeUTF16(name)
	recLen := fixedHeaderLen + len(nameBytes)
	if rem := recLen % 4; rem != 0 {
		recLen += 4 - rem
	}
	buf := make([]byte, recLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(fixedHeaderLen+len(nameBytes)))
	binary.LittleEndian.PutUint16(buf[4:6], 2) // major
	binary.LittleEndian.PutUint16(buf[6:8], 0) // minor
	binary.LittleEndian.PutUint64(buf[8:16], 0x0001000000000005)
	binary.LittleEndian.PutUint64(buf[16:24], 0x0001000000000005)
	binary.LittleEndian.PutUint64(buf[24:32], 12345)
	ft := uint64(132223104000000000) // a valid post-1970 filetime
	binary.LittleEndian.PutUint64(buf[32:40], ft)
	binary.LittleEndian.PutUint32(buf[40:44], reason)
	binary.LittleEndian.PutUint32(buf[44:48], 0)
	binary.LittleEndian.PutUint32(buf[48:52], 0)
	binary.LittleEndian.PutUint32(buf[52:56], attrs)
	binary.LittleEndian.PutUint16(buf[56:58], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(buf[58:60], fixedHeaderLen)
	copy(buf[60:], nameBytes)
	return buf
}

func TestParseAtAcceptsWellFormedRecord(t *testing.T) {
	buf := buildRecord("a.txt", ReasonFileCreate|ReasonClose, AttrArchive)
	raw, advance, ok := parseAt(buf, 0)
	require.True(t, ok)
	require.Equal(t, len(buf), advance)
	require.Equal(t, "a.txt", raw.Name)
	require.Equal(t, uint64(5), raw.FileAddr)
}

func TestParseAtRejectsTruncatedHeader(t *testing.T) {
	buf := buildRecord("a.txt", ReasonFileCreate|ReasonClose, AttrArchive)
	// 59 bytes of header-region data: no full fixed header available.
	_, _, ok := parseAt(buf[:59], 0)
	require.False(t, ok)
}

func TestParseAtRejectsUnknownReasonBits(t *testing.T) {
	buf := buildRecord("a.txt", 1<<30, AttrArchive) // bit 30 is unassigned
	_, _, ok := parseAt(buf, 0)
	require.False(t, ok)
}

func TestProjectorEmitsOneCreateAndOneRenameNoDuplicates(t *testing.T) {
	p := NewProjector()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(reason uint32) Raw {
		return Raw{FileAddr: 10, FileSeq: 1, Name: "x", Timestamp: ts, Reason: reason}
	}

	ev1 := p.Project(mk(ReasonFileCreate|ReasonClose), "/a")
	require.Len(t, ev1, 1)
	require.Equal(t, "FILE_CREATE", ev1[0].EventType)

	ev2 := p.Project(mk(ReasonRenameOldName|ReasonClose), "/a")
	require.Empty(t, ev2)

	ev3 := p.Project(mk(ReasonRenameNewName|ReasonClose), "/b")
	require.Len(t, ev3, 1)
	require.Equal(t, "FILE_RENAME", ev3[0].EventType)
	require.Equal(t, "x", ev3[0].Param3)
	require.Equal(t, "/a", ev3[0].Param4)

	// CLOSE already fired each time above (bundled in), so state should
	// have been dropped; feeding the same cumulative bits again should
	// re-fire FILE_CREATE rather than silently no-op forever.
	ev4 := p.Project(mk(ReasonFileCreate|ReasonClose), "/a")
	require.Len(t, ev4, 1)
}
