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

// Package filetime converts between Windows FILETIME (100ns ticks since
// 1601-01-01) and time.Time, and renders the ISO-8601/unix-double pair
// every stored timestamp attribute carries.
package filetime

import (
	"errors"
	"time"
)

// ticksPerSecond is the number of 100ns FILETIME ticks in one second.
const ticksPerSecond = 10_000_000

// epochOffset is the number of 100ns ticks between the FILETIME epoch
// (1601-01-01T00:00:00Z) and the Unix epoch (1970-01-01T00:00:00Z).
const epochOffset = 116_444_736_000_000_000

// MaxFILETIME is the largest tick value this package will decode: it
// corresponds to 2081-01-06T00:00:00Z, the documented USN/EVTX upper
// sanity bound (spec.md §4.7, §8).
const MaxFILETIME = 0x021A_28A0_AB0D_8000

// ErrBeforeEpoch is returned by FromTicks for a tick value that would
// decode to a time before the Unix epoch.
var ErrBeforeEpoch = errors.New("filetime: value precedes 1970-01-01")

// FromTicks converts a Windows FILETIME tick count into a UTC time.Time.
// Per spec.md §8, FromTicks(EPOCH) must equal 1970-01-01Z and ticks below
// that must be rejected (EPOCH here is the FILETIME value for the Unix
// epoch, i.e. epochOffset).
func FromTicks(ticks uint64) (time.Time, error) {
	if ticks < epochOffset {
		return time.Time{}, ErrBeforeEpoch
	}
	unixTicks := int64(ticks - epochOffset)
	sec := unixTicks / ticksPerSecond
	nsec := (unixTicks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC(), nil
}

// ToTicks converts a UTC time.Time back into Windows FILETIME ticks.
func ToTicks(t time.Time) uint64 {
	t = t.UTC()
	unixTicks := t.Unix()*ticksPerSecond + int64(t.Nanosecond())/100
	return uint64(unixTicks) + epochOffset
}

// InRange reports whether ticks decodes to a time within
// [1970-01-01, 2081-01-06], the validity window USN and EVTX records
// are checked against (spec.md §4.7, §8).
func InRange(ticks uint64) bool {
	return ticks >= epochOffset && ticks <= MaxFILETIME
}

// ISO renders t the way every stored timestamp attribute does: the
// ISO-8601 text form alongside it (spec.md §3 "Timestamps are stored
// twice").
func ISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// UnixSeconds renders the unix-double companion column for a
// timestamp attribute.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UTC().UnixNano()) / 1e9
}

// ParseISO parses the ISO-8601 text form back into a time.Time, the
// inverse of ISO, used when reconstructing a record from a stored row.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
