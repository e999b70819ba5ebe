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
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/forensiccorpus/corpus/internal/env"
	"github.com/forensiccorpus/corpus/internal/partitionctx"
	"github.com/forensiccorpus/corpus/internal/volume"
)

// app holds the resources shared across one CLI invocation's actions:
// the resolved environment, the meta-folder handle, and the opened
// image's partition table. fs backs the plain file I/O in extract.go
// that doesn't need flock's real-disk requirement, so tests can swap in
// an in-memory filesystem.
type app struct {
	env  *env.Environment
	meta *metaFolder
	disk *volume.Disk
	fs   afero.Fs
}

// selectedPartitions returns the partitions --part (if given) narrows
// analysis to, in table order.
func (a *app) selectedPartitions() []volume.Partition {
	var out []volume.Partition
	for _, p := range a.disk.Partitions {
		if a.env.IncludesPartition(p.Index) {
			out = append(out, p)
		}
	}
	return out
}

// preparePartitions runs fn once per selected partition, bounding
// cross-partition concurrency to GOMAXPROCS via
// internal/partitionctx.RunAcrossPartitions (spec.md §5 "free to
// parallelize across partitions").
func (a *app) preparePartitions(fn func(volume.Partition) error) error {
	parts := a.selectedPartitions()
	if len(parts) == 0 {
		return wrapUsageErr(fmt.Errorf("forensiccorpus: no partition matched --part"))
	}
	byIndex := make(map[int]volume.Partition, len(parts))
	var indices []int
	for _, p := range parts {
		byIndex[p.Index] = p
		indices = append(indices, p.Index)
	}
	return partitionctx.RunAcrossPartitions(context.Background(), indices, func(_ context.Context, idx int) error {
		return fn(byIndex[idx])
	})
}

// partName renders the part identifier used in store filenames and log
// lines, spec.md §6 "Partition naming: <slot_num> decimal".
func partName(p volume.Partition) string {
	return fmt.Sprintf("%d", p.Index)
}

// openStream binds a BitLocker-aware byte stream to p using the
// environment's recovery password.
func (a *app) openStream(p volume.Partition) *volume.Stream {
	return volume.OpenStream(a.disk, p, a.env.BDERecoveryPassword)
}
