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

package image

import (
	"bytes"
	"fmt"
	"os"
)

// Container magic numbers, read from each format's own spec rather
// than sniffed heuristically.
var (
	ewfMagicE01 = []byte{0x45, 0x56, 0x46, 0x09, 0x0d, 0x0a, 0xff, 0x00} // "EVF\t\r\n\xff\x00"
	ewfMagicLX  = []byte{0x4c, 0x56, 0x46, 0x09, 0x0d, 0x0a, 0xff, 0x00} // "LVF\t\r\n\xff\x00" (logical evidence file)
	qcowMagic   = []byte{0x51, 0x46, 0x49, 0xfb}                        // "QFI\xfb"
	vhdiFooter  = []byte("conectix")
	vmdkMagic   = []byte("KDMV")
)

// detectFormat reads the first bytes of path and matches them against
// each container's magic. A file too small to hold any magic, or with
// no match, is treated as raw (spec.md §4.1: "unrecognized containers
// fall back to a flat raw read").
func detectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatRaw, fmt.Errorf("image: open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := f.Read(head)
	if n < 8 {
		return FormatRaw, nil
	}
	_ = err

	switch {
	case bytes.Equal(head[:8], ewfMagicE01), bytes.Equal(head[:8], ewfMagicLX):
		return FormatEWF, nil
	case bytes.Equal(head[:4], qcowMagic):
		return FormatQCOW, nil
	case bytes.Equal(head[:4], vmdkMagic):
		return FormatVMDK, nil
	}

	// VHDI's "conectix" cookie lives in the footer, which for a
	// dynamic/differencing disk is duplicated at offset 0 too; check
	// both rather than seeking to end-of-file twice.
	if bytes.Equal(head[:8], vhdiFooter) {
		return FormatVHDI, nil
	}
	if fi, statErr := f.Stat(); statErr == nil && fi.Size() >= 512 {
		tail := make([]byte, 8)
		if _, err := f.ReadAt(tail, fi.Size()-512); err == nil && bytes.Equal(tail, vhdiFooter) {
			return FormatVHDI, nil
		}
	}
	return FormatRaw, nil
}
