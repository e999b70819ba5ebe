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
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/forensiccorpus/corpus/internal/fsx"
	"github.com/forensiccorpus/corpus/internal/record"
)

// FolderResolver is the per-partition LRU dictionary mapping
// "par_addr-par_seq" to a full folder path, backed by a File lookup
// forced to the meta_addr index (spec.md §4.7 "Parent-folder
// resolution"). Misses cache the empty string so repeated negative
// lookups (e.g. for records whose parent was already deleted) stay
// cheap.
type FolderResolver struct {
	fs    *fsx.FS
	cache *lru.Cache[string, string]
}

// NewFolderResolver builds a resolver over size entries; spec.md gives
// no fixed bound, so callers size it to the expected working set of
// distinct parents touched by one journal pass.
func NewFolderResolver(fs *fsx.FS, size int) *FolderResolver {
	c, _ := lru.New[string, string](size)
	return &FolderResolver{fs: fs, cache: c}
}

// Resolve returns the full folder path for (addr, seq), or "" if the
// file record can't be found (e.g. already deleted from the live MFT).
func (r *FolderResolver) Resolve(addr uint64, seq uint16) string {
	key := fileRefKey(addr, seq)
	if v, ok := r.cache.Get(key); ok {
		return v
	}
	folder, ok := r.fs.FolderByMetaAddr(addr)
	if !ok {
		folder = ""
	}
	r.cache.Add(key, folder)
	return folder
}

// renameStash holds the old-name half of a rename pair until its
// matching RENAME_NEW_NAME arrives (spec.md §4.7 "Timeline
// projection"). It is kept in a cache separate from the cumulative-bit
// tracker because a real rename's old-name and new-name journal
// entries are each their own open/close pair: the old-name entry's
// CLOSE bit must not discard the stash before the new-name entry
// arrives, only the matching RENAME_NEW_NAME consumes it.
type renameStash struct {
	oldName   string
	oldFolder string
}

// Projector is the per-file state machine that turns a stream of
// cumulative USN reason bitmaps into deduplicated timeline events: it
// fires only on newly-set bits, so re-reading the same cumulative flag
// set across multiple journal entries for one file never re-emits
// spec.md §4.7's table of events. CLOSE resets only the cumulative-bit
// tracker for that file reference (so a later reopen/recreate starts
// fresh), not the separate rename stash.
//
// Per spec.md §9 Open Questions, neither cache is bounded: a file
// whose CLOSE bit never arrives retains cumulative-bit state for the
// life of the pass, and an old-name entry whose new-name half never
// arrives leaves its stash entry live indefinitely. This is the
// documented, not silently accepted, behavior.
type Projector struct {
	cumulative map[string]uint32
	stash      map[string]*renameStash
}

// NewProjector builds an empty per-partition-pass projector.
func NewProjector() *Projector {
	return &Projector{cumulative: make(map[string]uint32), stash: make(map[string]*renameStash)}
}

// Project advances the state machine for one raw record (already
// resolved to its parent folder) and returns zero or more timeline
// events to emit, in the table order given by spec.md §4.7.
func (p *Projector) Project(r Raw, folder string) []record.Timeline {
	key := r.FileRef()
	cum := p.cumulative[key]
	newBits := r.Reason &^ cum
	p.cumulative[key] = cum | r.Reason

	var events []record.Timeline
	if newBits&ReasonFileCreate != 0 {
		events = append(events, record.Timeline{
			Timestamp: r.Timestamp, EventSource: "USN", EventType: "FILE_CREATE",
			Param1: r.Name, Param2: folder,
		})
	}
	if newBits&ReasonFileDelete != 0 {
		events = append(events, record.Timeline{
			Timestamp: r.Timestamp, EventSource: "USN", EventType: "FILE_DELETE",
			Param1: r.Name, Param2: folder,
		})
	}
	if newBits&ReasonRenameOldName != 0 {
		p.stash[key] = &renameStash{oldName: r.Name, oldFolder: folder}
	}
	if newBits&ReasonRenameNewName != 0 {
		if st, ok := p.stash[key]; ok {
			events = append(events, record.Timeline{
				Timestamp: r.Timestamp, EventSource: "USN", EventType: "FILE_RENAME",
				Param1: r.Name, Param2: folder, Param3: st.oldName, Param4: st.oldFolder,
			})
			delete(p.stash, key)
		}
	}
	if newBits&ReasonClose != 0 {
		delete(p.cumulative, key)
	}
	return events
}
