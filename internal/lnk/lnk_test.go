package lnk

import (
	"encoding/binary"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

// No real .lnk samples are available in the retrieval pack, so this
// builds a self-consistent minimal ShellLinkHeader + LinkInfo +
// StringData + TrackerDataBlock stream directly from this package's
// own offset constants, mirroring internal/prefetch's fixture-builder
// test style.

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	out := make([]byte, len(u)*2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], v)
	}
	return out
}

func cstr(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func buildLNK() []byte {
	var flags uint32 = flagHasLinkInfo | flagHasRelativePath | flagHasWorkingDir | flagHasArguments | flagIsUnicode

	hdr := make([]byte, headerLen)
	copy(hdr, headerMagic)
	binary.LittleEndian.PutUint32(hdr[20:24], flags)
	binary.LittleEndian.PutUint32(hdr[24:28], 0x20) // FILE_ATTRIBUTE_ARCHIVE
	crTicks := filetime.ToTicks(mustParse("2020-01-01T00:00:00Z"))
	atTicks := filetime.ToTicks(mustParse("2020-06-01T00:00:00Z"))
	wtTicks := filetime.ToTicks(mustParse("2020-03-01T00:00:00Z"))
	binary.LittleEndian.PutUint64(hdr[28:36], crTicks)
	binary.LittleEndian.PutUint64(hdr[36:44], atTicks)
	binary.LittleEndian.PutUint64(hdr[44:52], wtTicks)
	binary.LittleEndian.PutUint32(hdr[52:56], 12345)

	// LinkInfo: header(28 bytes) + VolumeID + LocalBasePath.
	const liHeaderLen = 28
	volumeID := make([]byte, 16+8) // VolumeID header + label
	binary.LittleEndian.PutUint32(volumeID[0:4], uint32(len(volumeID)))
	binary.LittleEndian.PutUint32(volumeID[4:8], 3) // DRIVE_FIXED
	binary.LittleEndian.PutUint32(volumeID[8:12], 0xDEADBEEF)
	binary.LittleEndian.PutUint32(volumeID[12:16], 16)
	copy(volumeID[16:], "VOL\x00\x00\x00\x00\x00")

	localBasePath := append([]byte("C:\\Users\\alice\\target.exe"), 0)

	volumeIDOffset := liHeaderLen
	localBasePathOffset := volumeIDOffset + len(volumeID)
	liSize := localBasePathOffset + len(localBasePath)

	li := make([]byte, liSize)
	binary.LittleEndian.PutUint32(li[0:4], uint32(liSize))
	binary.LittleEndian.PutUint32(li[4:8], liHeaderLen)
	binary.LittleEndian.PutUint32(li[8:12], 1) // VolumeIDAndLocalBasePath
	binary.LittleEndian.PutUint32(li[12:16], uint32(volumeIDOffset))
	binary.LittleEndian.PutUint32(li[16:20], uint32(localBasePathOffset))
	copy(li[volumeIDOffset:], volumeID)
	copy(li[localBasePathOffset:], localBasePath)

	relPath := utf16le("..\\..\\alice\\target.exe")
	workDir := utf16le("C:\\Users\\alice")
	args := utf16le("--flag value")

	strData := func(s []byte) []byte {
		out := make([]byte, 2+len(s))
		binary.LittleEndian.PutUint16(out[0:2], uint16(len(s)/2))
		copy(out[2:], s)
		return out
	}

	// TrackerDataBlock: size(4)+sig(4)+Length(4)+Version(4)+MachineID(16)+4xGUID(16 each).
	tracker := make([]byte, 96)
	binary.LittleEndian.PutUint32(tracker[0:4], 96)
	binary.LittleEndian.PutUint32(tracker[4:8], trackerBlockSignature)
	binary.LittleEndian.PutUint32(tracker[8:12], 88)
	copy(tracker[16:32], cstr("ALICE-PC", 16))
	copy(tracker[32:48], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10})
	copy(tracker[48:64], []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20})
	copy(tracker[64:80], []byte{0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, 0x29, 0x2a, 0x2b, 0x2c, 0x2d, 0x2e, 0x2f, 0x30})
	// Birth file ID: a version-1 GUID whose trailing 6 bytes are the MAC
	// and whose packed 60-bit value plus birthTimeOffset round-trips to a
	// known creation time.
	birthFile := make([]byte, 16)
	wantBirth := mustParse("2019-05-05T00:00:00Z")
	ticks60 := filetime.ToTicks(wantBirth) + birthTimeOffset
	binary.LittleEndian.PutUint32(birthFile[0:4], uint32(ticks60))
	binary.LittleEndian.PutUint16(birthFile[4:6], uint16(ticks60>>32))
	binary.LittleEndian.PutUint16(birthFile[6:8], uint16((ticks60>>48)&0x0fff)|0x1000)
	copy(birthFile[10:16], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	copy(tracker[80:96], birthFile)

	var out []byte
	out = append(out, hdr...)
	out = append(out, li...)
	out = append(out, strData(relPath)...)
	out = append(out, strData(workDir)...)
	out = append(out, strData(args)...)
	out = append(out, tracker...)
	return out
}

func mustParse(s string) time.Time {
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return tm.UTC()
}

func TestParseLNK(t *testing.T) {
	buf := buildLNK()
	lf, err := ParseLNK(buf)
	require.NoError(t, err)

	require.Equal(t, "C:\\Users\\alice\\target.exe", lf.TargetLocalPath)
	require.Equal(t, "..\\..\\alice\\target.exe", lf.TargetRelativePath)
	require.Equal(t, "C:\\Users\\alice", lf.WorkingDirectory)
	require.Equal(t, "--flag value", lf.CommandLineArguments)
	require.Equal(t, "FIXED", lf.DriveType)
	require.Equal(t, "DEADBEEF", lf.DriveSerialNumber)
	require.Equal(t, int64(12345), lf.TargetSize)
	require.Equal(t, "ALICE-PC", lf.MachineID)
	require.Equal(t, "aa:bb:cc:dd:ee:ff", lf.MACAddress)
	require.True(t, lf.BirthCreationTime.Equal(mustParse("2019-05-05T00:00:00Z")))
	require.NotEmpty(t, lf.TrackerVolID)
	require.NotEmpty(t, lf.TrackerFileID)
}

func TestValidateMagicAndReservedRejectsBadReserved(t *testing.T) {
	buf := buildLNK()
	buf[66] = 0xff
	require.False(t, validateMagicAndReserved(buf))
}

func TestCarverFindsAlignedCandidate(t *testing.T) {
	lnkBytes := buildLNK()
	buf := make([]byte, 1024+len(lnkBytes))
	copy(buf[1024:], lnkBytes)
	yields := Carver(buf, 0)
	require.Len(t, yields, 1)
	require.True(t, yields[0].Record.Carved)
	require.Equal(t, "target.exe", func() string {
		p := yields[0].Record.TargetLocalPath
		for i := len(p) - 1; i >= 0; i-- {
			if p[i] == '\\' {
				return p[i+1:]
			}
		}
		return p
	}())
}

func TestNormalizeWindowsPathStripsDriveLetter(t *testing.T) {
	require.Equal(t, "/Users/alice/target.exe", normalizeWindowsPath(`C:\Users\alice\target.exe`))
}
