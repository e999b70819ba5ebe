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

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestScanHashlistRejectsMissingFile(t *testing.T) {
	a := &app{fs: afero.NewMemMapFs()}
	err := a.scanHashlist("/no/such/file")
	require.Error(t, err)
	var ue *usageError
	require.ErrorAs(t, err, &ue)
}

func TestScanHashlistEmptyFileIsNoOp(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/hashes.txt", []byte("\n\n  \n"), 0o644))
	a := &app{fs: fs}
	require.NoError(t, a.scanHashlist("/hashes.txt"))
}
