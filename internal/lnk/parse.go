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

package lnk

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/pkg/errors"

	"github.com/forensiccorpus/corpus/internal/filetime"
	"github.com/forensiccorpus/corpus/internal/record"
)

// ParseLNK decodes one complete LNK byte stream per spec.md §4.9:
// header, optional LinkTargetIDList (skipped, not shell-item decoded —
// spec.md §9 Open Question on the carver's 4 KiB trust boundary notes
// this list can be arbitrarily large), optional LinkInfo, the
// StringData section, and any ExtraData tracker block.
func ParseLNK(buf []byte) (record.LnkFile, error) {
	var out record.LnkFile
	if !validateMagicAndReserved(buf) {
		return out, errors.New("lnk: bad header magic or reserved bytes")
	}
	h := parseHeader(buf)

	if t, err := filetime.FromTicks(h.creationTime); err == nil {
		out.TargetCrTime = t
	}
	if t, err := filetime.FromTicks(h.accessTime); err == nil {
		out.TargetATime = t
	}
	if t, err := filetime.FromTicks(h.writeTime); err == nil {
		out.TargetCTime = t
	}
	out.TargetSize = int64(h.fileSize)

	pos := headerLen
	if h.linkFlags&flagHasLinkTargetIDList != 0 {
		if pos+2 > len(buf) {
			return out, errors.New("lnk: truncated LinkTargetIDList size")
		}
		idListSize := int(binary.LittleEndian.Uint16(buf[pos : pos+2]))
		pos += 2 + idListSize
		if pos > len(buf) {
			return out, errors.New("lnk: LinkTargetIDList runs past end of buffer")
		}
	}

	if h.linkFlags&flagHasLinkInfo != 0 {
		if pos+4 > len(buf) {
			return out, errors.New("lnk: truncated LinkInfo size")
		}
		liSize := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		if liSize < 4 || pos+liSize > len(buf) {
			return out, errors.New("lnk: LinkInfo size out of range")
		}
		li := buf[pos : pos+liSize]
		parseLinkInfo(li, &out)
		pos += liSize
	}

	isUnicode := h.linkFlags&flagIsUnicode != 0
	readString := func() (string, error) {
		if pos+2 > len(buf) {
			return "", errors.New("lnk: truncated StringData count")
		}
		count := int(binary.LittleEndian.Uint16(buf[pos : pos+2]))
		pos += 2
		byteLen := count
		if isUnicode {
			byteLen = count * 2
		}
		if pos+byteLen > len(buf) {
			return "", errors.New("lnk: StringData runs past end of buffer")
		}
		raw := buf[pos : pos+byteLen]
		pos += byteLen
		if isUnicode {
			return decodeUTF16(raw), nil
		}
		return string(raw), nil
	}

	if h.linkFlags&flagHasName != 0 {
		s, err := readString()
		if err != nil {
			return out, err
		}
		out.Description = s
	}
	if h.linkFlags&flagHasRelativePath != 0 {
		s, err := readString()
		if err != nil {
			return out, err
		}
		out.TargetRelativePath = s
	}
	if h.linkFlags&flagHasWorkingDir != 0 {
		s, err := readString()
		if err != nil {
			return out, err
		}
		out.WorkingDirectory = s
	}
	if h.linkFlags&flagHasArguments != 0 {
		s, err := readString()
		if err != nil {
			return out, err
		}
		out.CommandLineArguments = s
	}
	if h.linkFlags&flagHasIconLocation != 0 {
		if _, err := readString(); err != nil {
			return out, err
		}
	}

	parseExtraData(buf[pos:], &out)
	return out, nil
}

// parseLinkInfo decodes the VolumeID/LocalBasePath fields LnkFile
// needs (spec.md §3 "Carries drive ... fields"); network-share targets
// (CommonNetworkRelativeLink) are left as an empty local path, a
// documented scope limitation since spec.md's LnkFile entity has no
// UNC-specific column.
func parseLinkInfo(li []byte, out *record.LnkFile) {
	if len(li) < 28 {
		return
	}
	headerSize := binary.LittleEndian.Uint32(li[4:8])
	flags := binary.LittleEndian.Uint32(li[8:12])
	volumeIDOffset := binary.LittleEndian.Uint32(li[12:16])
	localBasePathOffset := binary.LittleEndian.Uint32(li[16:20])

	const volumeIDAndLocalBasePath = 1 << 0
	if flags&volumeIDAndLocalBasePath == 0 {
		return
	}

	if int(volumeIDOffset) < len(li) {
		vid := li[volumeIDOffset:]
		if len(vid) >= 16 {
			out.DriveType = driveTypeName(binary.LittleEndian.Uint32(vid[4:8]))
			out.DriveSerialNumber = fmt.Sprintf("%08X", binary.LittleEndian.Uint32(vid[8:12]))
		}
	}
	if int(localBasePathOffset) < len(li) {
		out.TargetLocalPath = cString(li[localBasePathOffset:])
	}
	_ = headerSize
}

// cString reads a NUL-terminated ANSI string starting at b[0].
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func decodeUTF16(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}

// parseExtraData walks the ExtraData block list looking for the
// TrackerDataBlock (spec.md §4.9 "distributed-link-tracker block"),
// stopping at the zero-size TerminalBlock or a malformed block rather
// than erroring the whole parse — ExtraData is optional metadata, not
// part of the target identity proper.
func parseExtraData(buf []byte, out *record.LnkFile) {
	pos := 0
	for pos+8 <= len(buf) {
		blockSize := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		if blockSize == 0 {
			return // TerminalBlock
		}
		if blockSize < 8 || pos+blockSize > len(buf) {
			return
		}
		signature := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
		if signature == trackerBlockSignature {
			applyTrackerBlock(buf[pos:pos+blockSize], out)
		}
		pos += blockSize
	}
}

// applyTrackerBlock decodes the fixed-layout TrackerDataBlock content:
// a 16-byte MachineID followed by four 16-byte GUIDs (DroidVolumeID,
// DroidFileID, DroidBirthVolumeID, DroidBirthFileID), spec.md §4.9.
func applyTrackerBlock(block []byte, out *record.LnkFile) {
	// block[0:4]=size, [4:8]=signature, [8:12]=Length, [12:16]=Version,
	// [16:32]=MachineID, [32:48]=DroidVolumeID, [48:64]=DroidFileID,
	// [64:80]=DroidBirthVolumeID, [80:96]=DroidBirthFileID.
	if len(block) < 96 {
		return
	}
	out.MachineID = cString(block[16:32])

	var droidVol, droidFile, birthFile guidBytes
	copy(droidVol[:], block[32:48])
	copy(droidFile[:], block[48:64])
	copy(birthFile[:], block[80:96])

	out.TrackerVolID = droidVol.String()
	out.TrackerFileID = droidFile.String()
	out.MACAddress = birthFile.macAddress()

	ticks60 := birthFile.timestamp60()
	if ticks60 > birthTimeOffset {
		if t, err := filetime.FromTicks(ticks60 - birthTimeOffset); err == nil {
			out.BirthCreationTime = t
		}
	}
}
