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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEnvironmentParsesWindowAndPartitionFilter(t *testing.T) {
	f := &flags{
		metaFolder:   "/meta",
		part:         []int{1, 3},
		bdeRecovery:  "recoverypw",
		analyzeStart: "2024-01-01",
		analyzeEnd:   "2024-02-01",
	}
	e, err := buildEnvironment(f, []string{"/a.E01"})
	require.NoError(t, err)
	require.Equal(t, "/meta", e.MetaFolder)
	require.Equal(t, "/a.E01", e.ImagePath)
	require.Equal(t, "recoverypw", e.BDERecoveryPassword)
	require.Equal(t, []int{1, 3}, e.PartitionFilter)
	require.True(t, e.IncludesPartition(1))
	require.False(t, e.IncludesPartition(2))
	require.Equal(t, 2024, e.AnalyzeStart.Year())
	require.Equal(t, 2, int(e.AnalyzeEnd.Month()))
}

func TestBuildEnvironmentRejectsBadDate(t *testing.T) {
	f := &flags{analyzeStart: "not-a-date"}
	_, err := buildEnvironment(f, []string{"/a.E01"})
	require.Error(t, err)
	var ue *usageError
	require.ErrorAs(t, err, &ue)
}
