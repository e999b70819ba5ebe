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

package registry

import (
	"fmt"
	"strings"

	"github.com/forensiccorpus/corpus/internal/record"
)

// HiveRef names one hive to open plus the mount point its keys should
// be normalized under, spec.md §4.10 "Hive enumeration".
type HiveRef struct {
	Path       string // file-system path, relative to the partition root
	MountPoint string // e.g. `HKLM\SYSTEM`, `HKU\S-1-5-21-...`
}

// systemConfigDir is where the fixed system hives live on every
// NTFS-formatted Windows install, spec.md §4.10 "Hive enumeration".
const systemConfigDir = `Windows\System32\config`

// FixedHives lists the well-known per-machine hives spec.md §4.10
// names explicitly: "SYSTEM, SOFTWARE, SAM, SECURITY, DRIVERS,
// DEFAULT, the service-profile NTUSER.DAT's, Amcache.hve".
func FixedHives() []HiveRef {
	return []HiveRef{
		{Path: systemConfigDir + `\SYSTEM`, MountPoint: `HKLM\SYSTEM`},
		{Path: systemConfigDir + `\SOFTWARE`, MountPoint: `HKLM\SOFTWARE`},
		{Path: systemConfigDir + `\SAM`, MountPoint: `HKLM\SAM`},
		{Path: systemConfigDir + `\SECURITY`, MountPoint: `HKLM\SECURITY`},
		{Path: systemConfigDir + `\DRIVERS`, MountPoint: `HKLM\DRIVERS`},
		{Path: systemConfigDir + `\DEFAULT`, MountPoint: `HKU\.DEFAULT`},
		{Path: systemConfigDir + `\systemprofile\NTUSER.DAT`, MountPoint: `HKU\S-1-5-18`},
		{Path: `Windows\ServiceProfiles\LocalService\NTUSER.DAT`, MountPoint: `HKU\S-1-5-19`},
		{Path: `Windows\ServiceProfiles\NetworkService\NTUSER.DAT`, MountPoint: `HKU\S-1-5-20`},
		{Path: `Windows\AppCompat\Programs\Amcache.hve`, MountPoint: `AMCACHE`},
	}
}

// profileListPath is where per-user profile directories are recorded,
// spec.md §4.10: "each user profile's NTUSER.DAT and UsrClass.dat
// discovered via HKLM\SOFTWARE\Microsoft\Windows NT\CurrentVersion\
// ProfileList".
var profileListPath = []string{"Microsoft", "Windows NT", "CurrentVersion", "ProfileList"}

// UserHives reads an already-opened SOFTWARE hive's ProfileList and
// returns the per-SID NTUSER.DAT/UsrClass.dat pair for every profile
// it names.
func UserHives(software *Hive) ([]HiveRef, error) {
	k, err := software.FindKey(profileListPath...)
	if err != nil {
		return nil, fmt.Errorf("registry: ProfileList: %w", err)
	}
	sids, err := software.Subkeys(k)
	if err != nil {
		return nil, err
	}
	var out []HiveRef
	for _, sid := range sids {
		vk, ok, err := software.ValueByName(sid, "ProfileImagePath")
		if err != nil || !ok {
			continue
		}
		path := strings.TrimRight(decodeUTF16(vk.data), "\x00")
		path = strings.TrimPrefix(path, `C:\`)
		out = append(out,
			HiveRef{Path: path + `\NTUSER.DAT`, MountPoint: `HKU\` + sid.name},
			HiveRef{Path: path + `\AppData\Local\Microsoft\Windows\UsrClass.dat`, MountPoint: `HKU\` + sid.name + `_Classes`},
		)
	}
	return out, nil
}

// memSource is an in-memory ByteSource for a hive file already read
// fully into memory, the common case for NTUSER.DAT-sized hives
// streamed out of internal/fsx.
type memSource []byte

func (m memSource) Size() int64 { return int64(len(m)) }
func (m memSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m)) {
		return 0, fmt.Errorf("registry: read past end at %d", off)
	}
	n := copy(p, m[off:])
	return n, nil
}

// Prepare runs the --prepare_reg action for one hive: open it, walk
// its live tree emitting RegistryEntry rows, then carve its free
// cells for deleted keys (spec.md §4.10 "Hive parse" and "Deleted-key
// carving").
func Prepare(raw []byte, mountPoint string, sink EntrySink) error {
	h, err := Open(memSource(raw), mountPoint)
	if err != nil {
		return fmt.Errorf("registry: open: %w", err)
	}
	if err := h.WalkLive(sink); err != nil {
		return err
	}
	return h.CarveDeleted(sink)
}

// EntrySinkFor adapts a record.Store-style row writer into an
// EntrySink, mirroring the wiring every other subsystem's run.go uses.
func EntrySinkFor(write func(record.RegistryEntry) (bool, error)) EntrySink {
	return EntrySink(write)
}
