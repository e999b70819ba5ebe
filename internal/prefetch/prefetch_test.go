package prefetch

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

// --- SCCA test fixture builder ------------------------------------------
//
// No real sample .pf files are available in the retrieval pack, so
// these tests build a self-consistent "modern" (version 30) SCCA
// stream directly from scca.go's own offset constants.

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	out := make([]byte, len(u)*2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], v)
	}
	return out
}

type metricFixture struct {
	filename string
	fileRef  uint64
}

func buildSCCA(execName string, hash, runCount uint32, runTimes [8]uint64, metrics []metricFixture) []byte {
	var fnStrings []byte
	type off struct{ off, chars int }
	var offs []off
	for _, m := range metrics {
		u := utf16le(m.filename)
		offs = append(offs, off{len(fnStrings), len([]rune(m.filename))})
		fnStrings = append(fnStrings, u...)
	}

	metricsOffset := headerLen
	metricsBytes := make([]byte, len(metrics)*metricEntryLen)
	for i, m := range metrics {
		entry := metricsBytes[i*metricEntryLen : (i+1)*metricEntryLen]
		binary.LittleEndian.PutUint32(entry[metricFnOffsetOff:metricFnOffsetOff+4], uint32(offs[i].off))
		binary.LittleEndian.PutUint32(entry[metricFnNumCharsOff:metricFnNumCharsOff+4], uint32(offs[i].chars))
		binary.LittleEndian.PutUint64(entry[metricFileRefOff:metricFileRefOff+8], m.fileRef)
	}
	fnStringsOffset := metricsOffset + len(metricsBytes)

	total := fnStringsOffset + len(fnStrings)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], 30)
	copy(buf[4:8], "SCCA")
	nameBytes := utf16le(execName)
	copy(buf[execNameOffset:execNameOffset+execNameLen], nameBytes)
	binary.LittleEndian.PutUint32(buf[hashOffset:hashOffset+4], hash)
	binary.LittleEndian.PutUint32(buf[runCountOff:runCountOff+4], runCount)
	for i, rt := range runTimes {
		o := lastRunTimesOff + i*8
		binary.LittleEndian.PutUint64(buf[o:o+8], rt)
	}
	binary.LittleEndian.PutUint32(buf[metricsOffsetOff:metricsOffsetOff+4], uint32(metricsOffset))
	binary.LittleEndian.PutUint32(buf[metricsCountOff:metricsCountOff+4], uint32(len(metrics)))
	binary.LittleEndian.PutUint32(buf[fnStringsOffOff:fnStringsOffOff+4], uint32(fnStringsOffset))
	binary.LittleEndian.PutUint32(buf[fnStringsLenOff:fnStringsLenOff+4], uint32(len(fnStrings)))

	copy(buf[metricsOffset:], metricsBytes)
	copy(buf[fnStringsOffset:], fnStrings)
	return buf
}

// filetimeFor returns a FILETIME tick count for a plausible post-2000
// timestamp; exact value doesn't matter beyond being nonzero and
// ordered relative to its sibling ticks in a test.
func filetimeFor(daysAfterEpoch int64) uint64 {
	const epochDiff = 116444736000000000 // 1601-1970 in 100ns ticks
	return uint64(epochDiff) + uint64(daysAfterEpoch)*24*3600*10_000_000
}

func TestParseSCCARoundTrips(t *testing.T) {
	var runTimes [8]uint64
	runTimes[0] = filetimeFor(19000)
	buf := buildSCCA("NOTEPAD.EXE", 0xdeadbeef, 3, runTimes, []metricFixture{
		{filename: `\DEVICE\HARDDISKVOLUME1\WINDOWS\SYSTEM32\NOTEPAD.EXE`, fileRef: (5 << 48) | 1234},
	})
	p, err := ParseSCCA(buf)
	require.NoError(t, err)
	require.Equal(t, "NOTEPAD.EXE", p.ExecutableFilename)
	require.EqualValues(t, 0xdeadbeef, p.PrefetchHash)
	require.EqualValues(t, 3, p.RunCount)
	require.Len(t, p.Metrics, 1)
	require.Equal(t, `\DEVICE\HARDDISKVOLUME1\WINDOWS\SYSTEM32\NOTEPAD.EXE`, p.Metrics[0].Filename)
}

func TestParseSCCARejectsBadSignature(t *testing.T) {
	buf := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(buf[0:4], 30)
	_, err := ParseSCCA(buf)
	require.Error(t, err)
}

func TestParseSCCARejectsUnsupportedVersion(t *testing.T) {
	var runTimes [8]uint64
	buf := buildSCCA("X.EXE", 1, 1, runTimes, nil)
	binary.LittleEndian.PutUint32(buf[0:4], 17)
	_, err := ParseSCCA(buf)
	require.Error(t, err)
}

// TestNormalizeTwoRunTimes covers spec.md §8 scenario 4: run_times
// with exactly two nonzero entries yields one PrefetchFile row whose
// last_run is the max of the two, plus two Executes rows and two
// EXECUTE timeline events.
func TestNormalizeTwoRunTimes(t *testing.T) {
	var runTimes [8]uint64
	t1 := filetimeFor(19000)
	t2 := filetimeFor(19005)
	runTimes[0] = t1
	runTimes[3] = t2

	buf := buildSCCA("CALC.EXE", 42, 5, runTimes, []metricFixture{
		{filename: `\DEVICE\HARDDISKVOLUME2\WINDOWS\SYSTEM32\CALC.EXE`, fileRef: (7 << 48) | 999},
	})
	p, err := ParseSCCA(buf)
	require.NoError(t, err)

	pf, exec, events, err := Normalize(p, false)
	require.NoError(t, err)
	require.Equal(t, "CALC.EXE", pf.ExecutableFilename)
	require.Equal(t, "/WINDOWS/SYSTEM32", pf.ParentFolder)
	require.EqualValues(t, 999, pf.ExecutableAddr)
	require.EqualValues(t, 7, pf.ExecutableSeq)
	require.False(t, pf.Carved)

	require.Len(t, exec, 2)
	require.Len(t, events, 2)
	for _, ev := range events {
		require.Equal(t, "PREFETCH", ev.EventSource)
		require.Equal(t, "EXECUTE", ev.EventType)
		require.Equal(t, "CALC.EXE", ev.Param1)
	}

	wantLast, werr := filetime.FromTicks(t2)
	require.NoError(t, werr)
	require.WithinDuration(t, wantLast, pf.LastRun, 0)
}

func TestIsMAM(t *testing.T) {
	buf := make([]byte, 16)
	copy(buf[0:3], "MAM")
	buf[7] = 0
	require.True(t, IsMAM(buf))

	buf[7] = 1
	require.False(t, IsMAM(buf))
}

func TestOpenPassesThroughUncompressed(t *testing.T) {
	var runTimes [8]uint64
	buf := buildSCCA("X.EXE", 1, 0, runTimes, nil)
	out, err := Open(buf)
	require.NoError(t, err)
	require.Equal(t, buf, out)
}
