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

// Package env holds the long-lived, explicitly-threaded configuration
// value every subsystem entry point takes instead of reaching for a
// process-wide global (SPEC_FULL.md §0 "Configuration / environment",
// spec.md §9 Design Note "Globals for cross-component state": "Re-
// architect as an explicit AnalysisContext value threaded through
// calls; its lifetime equals one partition pass").
package env

import "time"

// Environment is constructed once by the CLI layer (cmd/forensiccorpus)
// and passed into every subsystem's Prepare/Carve entry points.
type Environment struct {
	// MetaFolder is the analysis workspace: the record store database,
	// logs/, and extracts/ all live under it (spec.md §6).
	MetaFolder string

	// ImagePath is the source container file (EWF/QCOW/VMDK/VHDI/raw).
	ImagePath string

	// PartitionFilter, when non-empty, restricts analysis to these
	// partition indices; empty means "every partition" (spec.md §5).
	PartitionFilter []int

	// BDERecoveryPassword unlocks a BitLocker-protected volume via its
	// recovery-password protector (spec.md §4.2 "BitLocker").
	BDERecoveryPassword string

	// AnalyzeStart/AnalyzeEnd bound the timeline aggregator's window
	// (spec.md §4.11); a zero value on either end means unbounded.
	AnalyzeStart time.Time
	AnalyzeEnd   time.Time
}

// IncludesPartition reports whether a given partition index should be
// processed under this environment's filter.
func (e *Environment) IncludesPartition(index int) bool {
	if len(e.PartitionFilter) == 0 {
		return true
	}
	for _, i := range e.PartitionFilter {
		if i == index {
			return true
		}
	}
	return false
}

// InWindow reports whether a timestamp falls within the analyze
// window, treating a zero bound as unbounded on that side.
func (e *Environment) InWindow(t time.Time) bool {
	if !e.AnalyzeStart.IsZero() && t.Before(e.AnalyzeStart) {
		return false
	}
	if !e.AnalyzeEnd.IsZero() && t.After(e.AnalyzeEnd) {
		return false
	}
	return true
}

// AnalysisContext is the per-partition-pass value spec.md §9 calls for:
// the cached registry/user analyzer state (SYSTEM, SAM, SECURITY,
// SOFTWARE hives and their derived keys) that used to live on a
// process-wide global, now scoped to one partition's lifetime and
// passed explicitly instead.
type AnalysisContext struct {
	Env *Environment

	// BootKey, once derived from the partition's SYSTEM hive, is
	// reused by every subsequent SAM/SECURITY derivation within the
	// same pass rather than re-derived per hive (spec.md §4.10).
	BootKey []byte

	// MountPoints records each opened hive's normalized root, e.g.
	// {"HKLM\\SYSTEM": struct{}{}}, so repeated hive discovery within
	// one pass doesn't reopen the same file twice.
	OpenedHives map[string]bool
}

// NewAnalysisContext starts a fresh per-partition-pass context.
func NewAnalysisContext(e *Environment) *AnalysisContext {
	return &AnalysisContext{Env: e, OpenedHives: make(map[string]bool)}
}
