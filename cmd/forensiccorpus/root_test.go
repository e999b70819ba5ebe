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

func TestResolveImagesMergesExplicitAndScanDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/images/disk.E01", []byte("evf"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/images/disk.E02", []byte("evf"), 0o644))
	require.NoError(t, fs.MkdirAll("/images/subdir", 0o755))

	f := &flags{image: []string{"/explicit.raw"}, scanDir: "/images"}
	images, err := resolveImages(fs, f)
	require.NoError(t, err)
	require.Contains(t, images, "/explicit.raw")
	require.Contains(t, images, "/images/disk.E01")
	require.Contains(t, images, "/images/disk.E02")
	require.NotContains(t, images, "/images/subdir")
}

func TestResolveImagesRequiresSomeInput(t *testing.T) {
	_, err := resolveImages(afero.NewMemMapFs(), &flags{})
	require.Error(t, err)
	var ue *usageError
	require.ErrorAs(t, err, &ue)
}

func TestParseAnalyzeDate(t *testing.T) {
	tm, err := parseAnalyzeDate("2024-03-05")
	require.NoError(t, err)
	require.Equal(t, 2024, tm.Year())
	require.Equal(t, 3, int(tm.Month()))
	require.Equal(t, 5, tm.Day())

	_, err = parseAnalyzeDate("not-a-date")
	require.Error(t, err)
}
