package evtx

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forensiccorpus/corpus/internal/record"
)

// --- binary-XML test encoder -------------------------------------------------
//
// evtx.go's decoder is the only consumer of this wire format in the
// repo, so the test fixtures below build matching bytes directly
// rather than depending on an external reference EVTX sample.

func u16le(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func u32le(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }

func encName(name string) []byte {
	chars := encodeUTF16Test(name)
	out := append([]byte{}, u32le(0)...) // chain offset, unused
	out = append(out, u16le(0)...)        // hash, unused
	out = append(out, u16le(uint16(len(name)))...)
	out = append(out, chars...)
	out = append(out, 0, 0) // NUL terminator
	return out
}

func encodeUTF16Test(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func encValue(s string) []byte {
	data := encodeUTF16Test(s)
	out := []byte{tokenValue, valString}
	out = append(out, u16le(uint16(len(data)))...)
	out = append(out, data...)
	return out
}

type elemBuilder struct {
	name     string
	attrs    [][2]string
	children [][]byte
}

func elem(name string) *elemBuilder { return &elemBuilder{name: name} }

func (e *elemBuilder) attr(name, value string) *elemBuilder {
	e.attrs = append(e.attrs, [2]string{name, value})
	return e
}

func (e *elemBuilder) text(value string) *elemBuilder {
	e.children = append(e.children, encValue(value))
	return e
}

func (e *elemBuilder) child(c *elemBuilder) *elemBuilder {
	e.children = append(e.children, c.encode())
	return e
}

func (e *elemBuilder) encode() []byte {
	var attrBody []byte
	for _, a := range e.attrs {
		attrBody = append(attrBody, tokenAttribute)
		attrBody = append(attrBody, encName(a[0])...)
		attrBody = append(attrBody, encValue(a[1])...)
	}
	tok := byte(tokenOpenStartElement)
	if len(attrBody) > 0 {
		tok |= 0x40
	}
	out := []byte{tok}
	out = append(out, u16le(0)...) // dependency id
	out = append(out, u32le(0)...) // data size, unused by decoder
	out = append(out, encName(e.name)...)
	if len(attrBody) > 0 {
		out = append(out, u32le(uint32(len(attrBody)))...)
		out = append(out, attrBody...)
	}
	if len(e.children) == 0 {
		out = append(out, tokenCloseEmptyElement)
		return out
	}
	out = append(out, tokenCloseStartElement)
	for _, c := range e.children {
		out = append(out, c...)
	}
	out = append(out, tokenEndElement)
	return out
}

func fragment(root *elemBuilder) []byte {
	out := []byte{tokenFragmentHeader, 1, 1, 0}
	out = append(out, root.encode()...)
	out = append(out, tokenEOF)
	return out
}

// buildEventXML constructs one <Event><System>...</System><EventData>
// ...</EventData></Event> fragment with the given id/provider/channel.
func buildEventXML(recordID int64, provider, channel, systemTime string, eventID int64) []byte {
	system := elem("System").
		child(elem("Provider").attr("Name", provider)).
		child(elem("EventID").text(itoaTest(eventID))).
		child(elem("Level").text("4")).
		child(elem("TimeCreated").attr("SystemTime", systemTime)).
		child(elem("EventRecordID").text(itoaTest(recordID))).
		child(elem("Channel").text(channel)).
		child(elem("Computer").text("HOST1"))
	data := elem("EventData").
		child(elem("Data").attr("Name", "TargetFile").text("C:\\evidence.txt"))
	root := elem("Event").child(system).child(data)
	return fragment(root)
}

func itoaTest(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte('0' + v%10)}, buf...)
		v /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

// --- chunk/file assembly helpers ---------------------------------------------

func wrapRecord(recordID int64, xml []byte) []byte {
	size := recordHeaderLen + len(xml) + 4
	out := make([]byte, 0, size)
	out = append(out, evtMagic...)
	out = append(out, u32le(uint32(size))...)
	rid := make([]byte, 8)
	binary.LittleEndian.PutUint64(rid, uint64(recordID))
	out = append(out, rid...)
	ft := make([]byte, 8)
	binary.LittleEndian.PutUint64(ft, 132223104000000000) // a valid post-1970 filetime
	out = append(out, ft...)
	out = append(out, xml...)
	out = append(out, u32le(uint32(size))...)
	return out
}

func buildChunk(records [][]byte) []byte {
	buf := make([]byte, chunkSize)
	copy(buf[0:8], chunkMagic)
	binary.LittleEndian.PutUint32(buf[40:44], 128)
	pos := chunkHeaderSize
	for _, r := range records {
		copy(buf[pos:pos+len(r)], r)
		pos += len(r)
	}
	binary.LittleEndian.PutUint32(buf[48:52], uint32(pos))
	return buf
}

func buildFile(chunks [][]byte) []byte {
	header := make([]byte, fileHeaderSize)
	copy(header[0:8], fileMagic)
	binary.LittleEndian.PutUint16(header[36:38], 0) // minor
	binary.LittleEndian.PutUint16(header[38:40], 3) // major
	binary.LittleEndian.PutUint16(header[40:42], fileHeaderSize)
	out := append([]byte{}, header...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

type memSource struct{ buf []byte }

func (m memSource) Size() int64 { return int64(len(m.buf)) }
func (m memSource) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}

func TestParseNormalizesOneRecord(t *testing.T) {
	xml := buildEventXML(1, "Microsoft-Windows-Kernel", "System", "2024-01-02T03:04:05.123456Z", 4663)
	chunk := buildChunk([][]byte{wrapRecord(1, xml)})
	file := buildFile([][]byte{chunk})

	var got []struct {
		ev  string
		rid int64
	}
	err := Parse(memSource{file}, func(ev record.Event) error {
		got = append(got, struct {
			ev  string
			rid int64
		}{ev.Provider, ev.EventRecordID})
		return nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Microsoft-Windows-Kernel", got[0].ev)
	require.Equal(t, int64(1), got[0].rid)
}

func TestParseRejectsBadFileMagic(t *testing.T) {
	file := make([]byte, fileHeaderSize)
	err := ValidateFileHeader(file)
	require.Error(t, err)
}

func TestCarveFindsAlignedChunkAndSkipsCorruptRecord(t *testing.T) {
	good1 := buildEventXML(1, "ProviderA", "Security", "2024-01-02T03:04:05Z", 100)
	good2 := buildEventXML(3, "ProviderA", "Security", "2024-01-02T03:05:05Z", 100)
	rec1 := wrapRecord(1, good1)
	rec2Bad := wrapRecord(2, good1)
	// Corrupt record 2's binary-XML body only, leaving its magic and
	// size fields intact so the chunk walk can still step past it to
	// record 3 (spec.md §8 scenario 3: "record 2 is corrupted ⇒
	// exactly two Event rows").
	rec2Bad[recordHeaderLen] = 0xff
	rec3 := wrapRecord(3, good2)

	chunk := buildChunk([][]byte{rec1, rec2Bad, rec3})
	out := Carver(chunk, 0x4000)
	require.Len(t, out, 2)

	var recIDs []int64
	for _, y := range out {
		recIDs = append(recIDs, y.Record.EventRecordID)
	}
	require.Contains(t, recIDs, int64(1))
	require.Contains(t, recIDs, int64(3))
	for _, y := range out {
		require.True(t, y.Record.Carved)
	}
}

func TestParseSystemTimeRejectsPre1970(t *testing.T) {
	_, err := parseSystemTime("1960-01-01T00:00:00Z")
	require.Error(t, err)
}

func TestParseSystemTimeAcceptsMicrosecondPrecision(t *testing.T) {
	ts, err := parseSystemTime("2024-05-06T07:08:09.654321Z")
	require.NoError(t, err)
	require.Equal(t, 2024, ts.Year())
	require.Equal(t, time.May, ts.Month())
}
