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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenMetaFolderRequiresCreateFlag(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	_, err := openMetaFolder(root, false, nil)
	require.Error(t, err)
	var mfe *metaFolderError
	require.ErrorAs(t, err, &mfe)
}

func TestOpenMetaFolderCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "case1")
	mf, err := openMetaFolder(root, true, []string{"/evidence/disk.E01"})
	require.NoError(t, err)
	defer mf.Close()

	for _, sub := range []string{"logs", "reports", "extracts"} {
		info, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}

	cfg, err := mf.loadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"/evidence/disk.E01"}, cfg.ImageFiles)

	token, err := os.ReadFile(mf.tokenPath())
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestOpenMetaFolderSecondHolderIsRejected(t *testing.T) {
	root := t.TempDir()
	mf, err := openMetaFolder(root, true, nil)
	require.NoError(t, err)
	defer mf.Close()

	_, err = openMetaFolder(root, false, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "locked by another process")
}

func TestMergeConfigDeduplicates(t *testing.T) {
	root := t.TempDir()
	mf, err := openMetaFolder(root, true, []string{"/a.E01"})
	require.NoError(t, err)
	defer mf.Close()

	require.NoError(t, mf.mergeConfig([]string{"/a.E01", "/b.E01"}))
	cfg, err := mf.loadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"/a.E01", "/b.E01"}, cfg.ImageFiles)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "vss_0_System32_config_SAM", sanitizeFilename("vss#0:System32/config\\SAM"))
}

func TestStorePath(t *testing.T) {
	mf := &metaFolder{root: "/meta"}
	require.Equal(t, filepath.Join("/meta", "file_p1.db"), mf.storePath("file", "p1"))
}
