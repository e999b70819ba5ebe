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

package main

import (
	"fmt"

	"github.com/forensiccorpus/corpus/internal/filetype"
	"github.com/forensiccorpus/corpus/internal/hashing"
	"github.com/forensiccorpus/corpus/internal/store"
	"github.com/forensiccorpus/corpus/internal/volume"
)

var hashFieldByKind = map[hashing.Kind]string{
	hashing.MD5:    "MD5",
	hashing.SHA1:   "SHA1",
	hashing.SHA256: "SHA256",
	hashing.TLSH:   "TLSH",
}

// hashFiles runs --hash {md5,sha1,sha256,tlsh} for one partition:
// backfill every live Files row's matching digest column (spec.md §3
// "Ownership", §6 "--hash").
func (a *app) hashFiles(p volume.Partition, kindStr string) error {
	kind := hashing.Kind(kindStr)
	field, ok := hashFieldByKind[kind]
	if !ok {
		return wrapUsageErr(fmt.Errorf("forensiccorpus: --hash: unknown kind %q", kindStr))
	}

	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	st, err := a.filesStore(p)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open file store: %w", p.Index, err)
	}
	defer st.Close()

	rows, err := st.Select(store.Query{Where: store.Eq("is_dir", false)})
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: select files: %w", p.Index, err)
	}
	for _, row := range rows {
		entry, ok := fs.EntryByMetaAddr(uint64(row.MetaAddr))
		if !ok {
			continue // entry was a carved/VSS row with no live MFT backing; skip rather than fail the pass
		}
		content, err := fs.ReadFile(entry)
		if err != nil {
			continue // spec.md §7 kind 3: an unreadable file locally skips rather than aborting the pass
		}
		digest := hashing.Compute(content, kind)
		switch kind {
		case hashing.MD5:
			row.MD5 = digest.MD5
		case hashing.SHA1:
			row.SHA1 = digest.SHA1
		case hashing.SHA256:
			row.SHA256 = digest.SHA256
		case hashing.TLSH:
			row.TLSH = digest.TLSH
		}
		if err := st.Update(row, field); err != nil {
			return fmt.Errorf("forensiccorpus: partition %d: update %s: %w", p.Index, field, err)
		}
	}
	return nil
}

// detectFiletypes runs --filetypes for one partition: backfill every
// live Files row's signature-derived file_type column (spec.md §3
// "File", §6 "--filetypes").
func (a *app) detectFiletypes(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	st, err := a.filesStore(p)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open file store: %w", p.Index, err)
	}
	defer st.Close()

	rows, err := st.Select(store.Query{Where: store.Eq("is_dir", false)})
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: select files: %w", p.Index, err)
	}
	for _, row := range rows {
		entry, ok := fs.EntryByMetaAddr(uint64(row.MetaAddr))
		if !ok {
			continue
		}
		content, err := fs.ReadFile(entry)
		if err != nil {
			continue
		}
		row.FileType = filetype.Detect(content)
		if err := st.Update(row, "FileType"); err != nil {
			return fmt.Errorf("forensiccorpus: partition %d: update file_type: %w", p.Index, err)
		}
	}
	return nil
}
