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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, exitOK, exitCodeFor(nil))
	require.Equal(t, exitMetaFolder, exitCodeFor(wrapMetaFolderErr(errors.New("locked"))))
	require.Equal(t, exitUsage, exitCodeFor(wrapUsageErr(errors.New("missing flag"))))
	require.Equal(t, exitRuntime, exitCodeFor(errors.New("carve failed")))
}

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, wrapMetaFolderErr(nil))
	require.NoError(t, wrapUsageErr(nil))
}

func TestWrappedErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	wrapped := wrapMetaFolderErr(inner)
	require.ErrorIs(t, wrapped, inner)
}
