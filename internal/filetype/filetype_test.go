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

package filetype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectEmpty(t *testing.T) {
	require.Equal(t, Empty, Detect(nil))
}

func TestDetectUnknown(t *testing.T) {
	require.Equal(t, Unknown, Detect([]byte("just some plain text, no signature")))
}

func TestDetectPNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	require.Equal(t, "png", Detect(png))
}

func TestDetectZIP(t *testing.T) {
	zip := []byte{'P', 'K', 0x03, 0x04, 0, 0, 0, 0}
	require.Equal(t, "zip", Detect(zip))
}
