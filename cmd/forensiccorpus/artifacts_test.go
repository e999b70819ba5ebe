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

	"github.com/forensiccorpus/corpus/internal/fsx"
	"github.com/stretchr/testify/require"
)

func TestPathIndexLookupNormalizesWindowsPath(t *testing.T) {
	target := &fsx.Entry{}
	idx := pathIndex{
		"/windows/system32/config/sam": target,
	}

	got, ok := idx.lookup(`C:\Windows\System32\config\SAM`)
	require.True(t, ok)
	require.Same(t, target, got)

	_, ok = idx.lookup(`Windows\System32\config\MISSING`)
	require.False(t, ok)
}

func TestPathIndexFilesWithSuffix(t *testing.T) {
	evtx := &fsx.Entry{}
	pf := &fsx.Entry{}
	idx := pathIndex{
		"/windows/system32/winevt/logs/system.evtx": evtx,
		"/windows/prefetch/notepad.exe-abcd1234.pf":  pf,
	}

	matches := idx.filesWithSuffix(".evtx")
	require.Len(t, matches, 1)
	require.Same(t, evtx, matches[0])

	matches = idx.filesWithSuffix(".pf")
	require.Len(t, matches, 1)
	require.Same(t, pf, matches[0])
}
