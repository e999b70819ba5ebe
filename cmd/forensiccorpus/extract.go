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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"

	"github.com/forensiccorpus/corpus/internal/fsx"
	"github.com/forensiccorpus/corpus/internal/store"
)

// runExtract implements --extract <path|meta_addr> (spec.md §6),
// optionally prefixed "vss#<store_id>:" to address a shadow-copy file
// (spec.md §6 "File-source tagging").
func (a *app) runExtract(addr string) error {
	parts := a.selectedPartitions()
	if len(parts) != 1 {
		return wrapUsageErr(fmt.Errorf("forensiccorpus: --extract requires --part to select exactly one partition"))
	}
	p := parts[0]

	source := "filesystem"
	target := addr
	if strings.HasPrefix(addr, "vss#") {
		if i := strings.Index(addr, ":"); i >= 0 {
			source = addr[:i]
			target = addr[i+1:]
		}
	}

	fs, err := a.openFS(p)
	if err != nil {
		return err
	}

	var entry *fsx.Entry
	var ok bool
	if metaAddr, perr := strconv.ParseUint(target, 10, 64); perr == nil {
		entry, ok = fs.EntryByMetaAddr(metaAddr)
	} else {
		idx, ierr := buildPathIndex(fs)
		if ierr != nil {
			return fmt.Errorf("forensiccorpus: partition %d: index paths: %w", p.Index, ierr)
		}
		entry, ok = idx.lookup(strings.ReplaceAll(target, "/", `\`))
	}
	if !ok {
		return fmt.Errorf("forensiccorpus: --extract: no file found at %q", addr)
	}

	content, err := fs.ReadFile(entry)
	if err != nil {
		return fmt.Errorf("forensiccorpus: --extract: read %q: %w", addr, err)
	}

	dir, err := a.meta.extractBatchDir(time.Now())
	if err != nil {
		return err
	}
	outName := fmt.Sprintf("%d_%s_%s_%s", 1, partName(p), source, sanitizeFilename(entry.Name))
	outPath := filepath.Join(dir, outName)
	if err := afero.WriteFile(a.fs, outPath, content, 0o644); err != nil {
		return fmt.Errorf("forensiccorpus: --extract: write %s: %w", outPath, err)
	}
	fmt.Println(outPath)
	return nil
}

// scanFilename runs --scan_filename: a substring match over every
// selected partition's Files.name.
func (a *app) scanFilename(substr string) error {
	return a.scanFilesAndPrint(store.Like("name", "%"+substr+"%"))
}

// scanFiletype runs --scan_filetype: an exact match over Files.file_type.
func (a *app) scanFiletype(fileType string) error {
	return a.scanFilesAndPrint(store.Eq("file_type", fileType))
}

// scanHashlist runs --scan_hashlist: matches every hash in a
// newline-delimited file against any of the four digest columns.
func (a *app) scanHashlist(path string) error {
	f, err := a.fs.Open(path)
	if err != nil {
		return wrapUsageErr(fmt.Errorf("forensiccorpus: --scan_hashlist: %w", err))
	}
	defer f.Close()

	var hashes []any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			hashes = append(hashes, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("forensiccorpus: --scan_hashlist: read %s: %w", path, err)
	}
	if len(hashes) == 0 {
		return nil
	}
	return a.scanFilesAndPrint(store.Or(
		store.In("md5", hashes),
		store.In("sha1", hashes),
		store.In("sha256", hashes),
		store.In("tlsh", hashes),
	))
}

func (a *app) scanFilesAndPrint(where store.Filter) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Part", "MetaAddr", "Name", "FullName", "Size", "FileType", "MD5"})
	for _, p := range a.selectedPartitions() {
		st, err := a.filesStore(p)
		if err != nil {
			return fmt.Errorf("forensiccorpus: partition %d: open file store: %w", p.Index, err)
		}
		rows, err := st.Select(store.Query{Where: where})
		st.Close()
		if err != nil {
			return fmt.Errorf("forensiccorpus: partition %d: scan: %w", p.Index, err)
		}
		for _, row := range rows {
			t.AppendRow(table.Row{partName(p), row.MetaAddr, row.Name, row.FullName(), row.Size, row.FileType, row.MD5})
		}
	}
	t.Render()
	return nil
}
