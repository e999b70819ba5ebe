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

package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeAllKinds(t *testing.T) {
	d := Compute([]byte("hello world"))
	require.Len(t, d.MD5, 32)
	require.Len(t, d.SHA1, 40)
	require.Len(t, d.SHA256, 64)
	require.NotEmpty(t, d.TLSH)
}

func TestComputeRestrictedKind(t *testing.T) {
	d := Compute([]byte("hello world"), MD5)
	require.NotEmpty(t, d.MD5)
	require.Empty(t, d.SHA1)
	require.Empty(t, d.SHA256)
	require.Empty(t, d.TLSH)
}

func TestComputeIsDeterministic(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad this out")
	a := Compute(content)
	b := Compute(content)
	require.Equal(t, a, b)
}

func TestFuzzyDigestShortInputIsZeroBody(t *testing.T) {
	d := FuzzyDigest([]byte("ab"))
	require.NotEmpty(t, d)
}

func TestFuzzyDigestSimilarInputsShareMostBuckets(t *testing.T) {
	base := make([]byte, 4096)
	for i := range base {
		base[i] = byte(i * 7 % 251)
	}
	modified := append([]byte(nil), base...)
	modified[2000] ^= 0xff

	d1 := FuzzyDigest(base)
	d2 := FuzzyDigest(modified)
	require.NotEqual(t, d1, d2, "a perturbed byte should change the digest")

	// Count differing hex nibbles in the body (skip the 4-byte header).
	require.True(t, len(d1) > 4 && len(d2) > 4)
	diffs := 0
	for i := 4; i < len(d1) && i < len(d2); i++ {
		if d1[i] != d2[i] {
			diffs++
		}
	}
	require.Less(t, diffs, (len(d1)-4)/2, "a single flipped byte should not rewrite most of the body")
}
