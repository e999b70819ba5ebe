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

package usn

import (
	"github.com/forensiccorpus/corpus/internal/carve"
)

const (
	probeSize    = 512
	scanWindow   = 64 << 10
	headHalvings = 20
)

// SeekHead finds a safe starting offset for the sparse $UsnJrnl:$J
// stream without trusting $Max's recorded "first USN" pointer (spec.md
// §4.7 "Head seek"): 20 binary-search halvings over [0, src.Size())
// converge on a coarse boundary between the zero-filled prefix and
// live data, then a forward scan in 64-KiB windows finds the first
// non-zero byte, which is backed off by 8 and aligned down to an
// 8-byte boundary.
func SeekHead(src carve.ByteSource) (int64, error) {
	lo, hi := int64(0), src.Size()
	for i := 0; i < headHalvings && hi-lo > probeSize; i++ {
		mid := lo + (hi-lo)/2
		buf := make([]byte, probeSize)
		n, err := src.ReadAt(buf, mid)
		if err != nil && n == 0 {
			return 0, err
		}
		if isZero(buf[:n]) {
			lo = mid
		} else {
			hi = mid
		}
	}

	// Coarse region found; now scan forward in scanWindow chunks for
	// the first non-zero byte.
	offset := lo
	for offset < src.Size() {
		buf := make([]byte, scanWindow)
		n, err := src.ReadAt(buf, offset)
		if err != nil && n == 0 {
			return 0, err
		}
		buf = buf[:n]
		if idx := firstNonZero(buf); idx >= 0 {
			found := offset + int64(idx)
			back := found - 8
			if back < 0 {
				back = 0
			}
			return back - (back % 8), nil
		}
		offset += int64(n)
		if n == 0 {
			break
		}
	}
	return offset, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func firstNonZero(b []byte) int {
	for i, c := range b {
		if c != 0 {
			return i
		}
	}
	return -1
}
