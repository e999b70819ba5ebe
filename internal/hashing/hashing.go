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

// Package hashing computes the four content digests spec.md §3's File
// entity carries: md5, sha1, sha256 (exact, cryptographic) and a
// locality-sensitive fuzzy digest stored in the tlsh column (spec.md
// §6 "--hash {md5,sha1,sha256,tlsh}").
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Kind names one algorithm the --hash action can be restricted to.
type Kind string

const (
	MD5    Kind = "md5"
	SHA1   Kind = "sha1"
	SHA256 Kind = "sha256"
	TLSH   Kind = "tlsh"
)

// Digest holds the subset of hashes a caller requested; an empty
// string means that algorithm was not computed this pass.
type Digest struct {
	MD5    string
	SHA1   string
	SHA256 string
	TLSH   string
}

// Compute returns every digest in kinds for content. An empty kinds
// list computes all four, matching --hash with no restriction.
func Compute(content []byte, kinds ...Kind) Digest {
	if len(kinds) == 0 {
		kinds = []Kind{MD5, SHA1, SHA256, TLSH}
	}
	var d Digest
	for _, k := range kinds {
		switch k {
		case MD5:
			sum := md5.Sum(content)
			d.MD5 = hex.EncodeToString(sum[:])
		case SHA1:
			sum := sha1.Sum(content)
			d.SHA1 = hex.EncodeToString(sum[:])
		case SHA256:
			sum := sha256.Sum256(content)
			d.SHA256 = hex.EncodeToString(sum[:])
		case TLSH:
			d.TLSH = FuzzyDigest(content)
		}
	}
	return d
}

// FuzzyDigest computes a locality-sensitive fuzzy hash over content,
// in the same family as TLSH (a sliding 5-byte window hashed into a
// fixed bucket array, then quantized against the array's own
// quartiles so that similar inputs produce similar digests and a
// single inserted byte only perturbs a handful of buckets).
//
// This is NOT a byte-compatible reimplementation of upstream TLSH
// (github.com/trendmicro/tlsh) — no Go port of that C++ library
// appears anywhere in this retrieval pack (grepped across every
// go.mod and go.sum under _examples/), so comparing this digest
// against hash sets produced by the real tlsh tool will not work.
// It is built from TLSH's publicly documented shape (Pearson-hashed
// byte triplets over a sliding window into 128 buckets, body bytes
// quantized against the bucket array's own quartiles) in the same
// "hand-decode the documented format, no pack library available"
// posture already used for internal/evtx's binary-XML walker and
// internal/prefetch's LZXPRESS decompressor.
func FuzzyDigest(content []byte) string {
	const buckets = 128
	counts := make([]uint32, buckets)

	if len(content) < 5 {
		// Too short for a 5-byte sliding window; spec.md §7 "local
		// skip" posture applies per-record, so a short file gets
		// the all-zero digest rather than an error.
		return renderDigest(len(content), counts)
	}

	for i := 0; i+4 < len(content); i++ {
		b0, b1, b2, b3, b4 := content[i], content[i+1], content[i+2], content[i+3], content[i+4]
		triplets := [6][3]byte{
			{b0, b1, b2},
			{b0, b1, b3},
			{b0, b2, b3},
			{b0, b2, b4},
			{b0, b1, b4},
			{b0, b3, b4},
		}
		for _, t := range triplets {
			idx := pearson(t[0], t[1], t[2]) % buckets
			counts[idx]++
		}
	}
	return renderDigest(len(content), counts)
}

func renderDigest(length int, counts []uint32) string {
	sorted := append([]uint32(nil), counts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	q1 := sorted[len(sorted)/4]
	q2 := sorted[len(sorted)/2]
	q3 := sorted[(3*len(sorted))/4]

	body := make([]byte, 0, len(counts)/4)
	var cur byte
	for i, c := range counts {
		var code byte
		switch {
		case c <= q1:
			code = 0
		case c <= q2:
			code = 1
		case c <= q3:
			code = 2
		default:
			code = 3
		}
		cur |= code << uint((i%4)*2)
		if i%4 == 3 {
			body = append(body, cur)
			cur = 0
		}
	}

	lenByte := byte(0)
	for l := length; l > 0; l >>= 1 {
		lenByte++
	}
	header := []byte{lenByte, pearson(byte(q1), byte(q2), byte(q3))}

	return hex.EncodeToString(header) + hex.EncodeToString(body)
}

// pearsonTable is a fixed permutation of 0..255 (the standard Pearson
// hashing construction); any fixed permutation works, this one is the
// identity table byte-reversed and rotated so it is not the trivial
// identity permutation itself.
var pearsonTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	for i := 0; i < 256; i++ {
		j := (i*167 + 53) % 256
		t[i], t[j] = t[j], t[i]
	}
	return t
}()

func pearson(bs ...byte) int {
	h := byte(0)
	for _, b := range bs {
		h = pearsonTable[h^b]
	}
	return int(h)
}
