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
	"strings"

	"github.com/forensiccorpus/corpus/internal/evtx"
	"github.com/forensiccorpus/corpus/internal/fsx"
	"github.com/forensiccorpus/corpus/internal/lnk"
	"github.com/forensiccorpus/corpus/internal/logging"
	"github.com/forensiccorpus/corpus/internal/prefetch"
	"github.com/forensiccorpus/corpus/internal/record"
	"github.com/forensiccorpus/corpus/internal/registry"
	"github.com/forensiccorpus/corpus/internal/timeline"
	"github.com/forensiccorpus/corpus/internal/usn"
	"github.com/forensiccorpus/corpus/internal/volume"
)

// progressLogger renders the ~2-second progress cadence spec.md §4.5
// and §5 require as a structured log line, rather than a bare stdout
// write (logging is the only sink every other action already uses).
func progressLogger(part string, action string) func(scanned, total int64) {
	return func(scanned, total int64) {
		logging.Info("carve progress", "part", part, "action", action, "scanned", scanned, "total", total)
	}
}

// pathIndex maps a normalized full path to its fsx.Entry, built once
// per partition pass by walking the live tree. Used by the artifact
// locators below in place of a path-keyed fsx lookup (fsx only indexes
// by meta_addr).
type pathIndex map[string]*fsx.Entry

func buildPathIndex(fs *fsx.FS) (pathIndex, error) {
	idx := make(pathIndex)
	err := fs.Walk(func(e *fsx.Entry, fullPath func(*fsx.Entry) string) error {
		idx[strings.ToLower(fullPath(e))] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx pathIndex) lookup(winPath string) (*fsx.Entry, bool) {
	p := "/" + strings.ReplaceAll(strings.TrimPrefix(winPath, `C:\`), `\`, "/")
	e, ok := idx[strings.ToLower(p)]
	return e, ok
}

func (idx pathIndex) filesWithSuffix(suffix string) []*fsx.Entry {
	var out []*fsx.Entry
	for p, e := range idx {
		if strings.HasSuffix(p, suffix) {
			out = append(out, e)
		}
	}
	return out
}

// --- EVTX ---------------------------------------------------------------

func (a *app) prepareEvtxForPartition(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	idx, err := buildPathIndex(fs)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: index paths: %w", p.Index, err)
	}
	rowStore, err := evtxRowStore(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	rows := func(ev record.Event) (bool, error) { return rowStore.Insert(ev) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	for _, e := range idx.filesWithSuffix(".evtx") {
		content, err := fs.ReadFile(e)
		if err != nil {
			continue // spec.md §7 kind 3: unreadable artifact file locally skips
		}
		if err := evtx.Prepare(memSource(content), rows, events, progressLogger(partName(p), "prepare_evtx")); err != nil {
			logging.Warn("prepare_evtx: skipping file", "part", partName(p), "name", e.Name, "err", err.Error())
		}
	}
	return nil
}

func (a *app) carveEvtxForPartition(p volume.Partition) error {
	rowStore, err := evtxRowStore(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	stream := a.openStream(p)
	rows := func(ev record.Event) (bool, error) { return rowStore.Insert(ev) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }
	return evtx.Carve(stream, rows, events, progressLogger(partName(p), "carve_evtx"))
}

func evtxRowStore(mf *metaFolder, p volume.Partition) (*rowStoreEvent, error) {
	s, err := newEventStore(mf, p)
	if err != nil {
		return nil, fmt.Errorf("forensiccorpus: partition %d: open event store: %w", p.Index, err)
	}
	return s, nil
}

// --- USN -----------------------------------------------------------------

func (a *app) prepareUSNForPartition(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	rowStore, err := newUSNStore(a.meta, p)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open usn store: %w", p.Index, err)
	}
	defer rowStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	resolver := usn.NewFolderResolver(fs, 4096)
	proj := usn.NewProjector()
	rows := func(r record.USNRecordV2) (bool, error) { return rowStore.Insert(r) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	stream := a.openStream(p)
	return usn.Prepare(stream, resolver, proj, rows, events, progressLogger(partName(p), "prepare_usn"))
}

func (a *app) carveUSNForPartition(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	rowStore, err := newUSNStore(a.meta, p)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open usn store: %w", p.Index, err)
	}
	defer rowStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	resolver := usn.NewFolderResolver(fs, 4096)
	proj := usn.NewProjector()
	rows := func(r record.USNRecordV2) (bool, error) { return rowStore.Insert(r) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	stream := a.openStream(p)
	return usn.Carve(stream, resolver, proj, rows, events, progressLogger(partName(p), "carve_usn"))
}

// --- Prefetch --------------------------------------------------------------

func (a *app) preparePrefetchForPartition(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	idx, err := buildPathIndex(fs)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: index paths: %w", p.Index, err)
	}
	rowStore, execStore, err := newPrefetchStores(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	defer execStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	rows := func(pf record.PrefetchFile) (bool, error) { return rowStore.Insert(pf) }
	execs := func(ex record.Executes) (bool, error) { return execStore.Insert(ex) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	for _, e := range idx.filesWithSuffix(".pf") {
		content, err := fs.ReadFile(e)
		if err != nil {
			continue
		}
		if err := prefetch.Prepare(content, rows, execs, events); err != nil {
			logging.Warn("prepare_prefetch: skipping file", "part", partName(p), "name", e.Name, "err", err.Error())
		}
	}
	return nil
}

func (a *app) carvePrefetchForPartition(p volume.Partition) error {
	rowStore, execStore, err := newPrefetchStores(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	defer execStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	rows := func(pf record.PrefetchFile) (bool, error) { return rowStore.Insert(pf) }
	execs := func(ex record.Executes) (bool, error) { return execStore.Insert(ex) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	stream := a.openStream(p)
	return prefetch.Carve(stream, rows, execs, events, progressLogger(partName(p), "carve_prefetch"))
}

// --- LNK -------------------------------------------------------------------

func (a *app) prepareLnkForPartition(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	idx, err := buildPathIndex(fs)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: index paths: %w", p.Index, err)
	}
	rowStore, err := newLnkStore(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	rows := func(lf record.LnkFile) (bool, error) { return rowStore.Insert(lf) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	for _, e := range idx.filesWithSuffix(".lnk") {
		content, err := fs.ReadFile(e)
		if err != nil {
			continue
		}
		if err := lnk.Prepare(content, rows, events); err != nil {
			logging.Warn("prepare_lnk: skipping file", "part", partName(p), "name", e.Name, "err", err.Error())
		}
	}
	return nil
}

func (a *app) carveLnkForPartition(p volume.Partition) error {
	rowStore, err := newLnkStore(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	tlStore, err := timeline.Open(a.meta.storePath("timeline", partName(p)))
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: open timeline store: %w", p.Index, err)
	}
	defer tlStore.Close()

	rows := func(lf record.LnkFile) (bool, error) { return rowStore.Insert(lf) }
	events := func(tl record.Timeline) (bool, error) { return tlStore.Emit(tl) }

	stream := a.openStream(p)
	return lnk.Carve(stream, rows, events, progressLogger(partName(p), "carve_lnk"))
}

// --- Registry ---------------------------------------------------------------

func (a *app) prepareRegForPartition(p volume.Partition) error {
	fs, err := a.openFS(p)
	if err != nil {
		return err
	}
	idx, err := buildPathIndex(fs)
	if err != nil {
		return fmt.Errorf("forensiccorpus: partition %d: index paths: %w", p.Index, err)
	}
	rowStore, err := newRegistryStore(a.meta, p)
	if err != nil {
		return err
	}
	defer rowStore.Close()
	sink := registry.EntrySinkFor(func(e record.RegistryEntry) (bool, error) { return rowStore.Insert(e) })

	hives := registry.FixedHives()
	if software, ok := idx.lookup(`Windows\System32\config\SOFTWARE`); ok {
		if content, err := fs.ReadFile(software); err == nil {
			if h, err := registry.Open(memSource(content), `HKLM\SOFTWARE`); err == nil {
				if userHives, err := registry.UserHives(h); err == nil {
					hives = append(hives, userHives...)
				}
			}
		}
	}

	for _, hv := range hives {
		e, ok := idx.lookup(hv.Path)
		if !ok {
			continue // spec.md §7 kind 1 applies only to the required input DB; a missing optional hive is skipped
		}
		content, err := fs.ReadFile(e)
		if err != nil {
			continue
		}
		if err := registry.Prepare(content, hv.MountPoint, sink); err != nil {
			logging.Warn("prepare_reg: skipping hive", "part", partName(p), "mount", hv.MountPoint, "err", err.Error())
		}
	}
	return nil
}
