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
	"github.com/forensiccorpus/corpus/internal/record"
	"github.com/forensiccorpus/corpus/internal/store"
	"github.com/forensiccorpus/corpus/internal/volume"
)

// Type aliases give each artifact class's store a short, readable name
// at the call sites in artifacts.go, every one backed by the same
// generic internal/store.Store[T].
type (
	rowStoreEvent    = store.Store[record.Event]
	rowStoreUSN      = store.Store[record.USNRecordV2]
	rowStorePrefetch = store.Store[record.PrefetchFile]
	rowStoreExecutes = store.Store[record.Executes]
	rowStoreLnk      = store.Store[record.LnkFile]
	rowStoreRegistry = store.Store[record.RegistryEntry]
)

func newEventStore(mf *metaFolder, p volume.Partition) (*rowStoreEvent, error) {
	return store.Open[record.Event](mf.storePath("event", partName(p)), "event")
}

func newUSNStore(mf *metaFolder, p volume.Partition) (*rowStoreUSN, error) {
	return store.Open[record.USNRecordV2](mf.storePath("usnrecordv2", partName(p)), "usnrecordv2")
}

func newPrefetchStores(mf *metaFolder, p volume.Partition) (*rowStorePrefetch, *rowStoreExecutes, error) {
	rows, err := store.Open[record.PrefetchFile](mf.storePath("prefetchfile", partName(p)), "prefetchfile")
	if err != nil {
		return nil, nil, err
	}
	execs, err := store.Open[record.Executes](mf.storePath("executes", partName(p)), "executes")
	if err != nil {
		rows.Close()
		return nil, nil, err
	}
	return rows, execs, nil
}

func newLnkStore(mf *metaFolder, p volume.Partition) (*rowStoreLnk, error) {
	return store.Open[record.LnkFile](mf.storePath("lnkfile", partName(p)), "lnkfile")
}

func newRegistryStore(mf *metaFolder, p volume.Partition) (*rowStoreRegistry, error) {
	return store.Open[record.RegistryEntry](mf.storePath("registryentry", partName(p)), "registryentry")
}
