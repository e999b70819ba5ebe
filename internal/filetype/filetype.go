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

// Package filetype derives a File row's file_type attribute from its
// content bytes (spec.md §3 "File": "file_type (signature-derived)",
// §6 "--filetypes" action), independent of the file's name or
// extension.
package filetype

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
)

// Unknown is the file_type value stored when no registered signature
// matches, the same "degrade rather than abort" posture spec.md §7
// requires of every per-record classifier.
const Unknown = "unknown"

// Empty is the file_type value stored for a zero-length content
// stream, which filetype.Match would otherwise report as Unknown
// indistinguishably from "no signature recognized."
const Empty = "empty"

// Detect sniffs content's leading bytes against the known container/
// document/executable signature table and returns a short type tag
// (the matcher's extension, e.g. "exe", "zip", "jpg"), Empty for a
// zero-length stream, or Unknown when no signature matches.
func Detect(content []byte) string {
	if len(content) == 0 {
		return Empty
	}
	kind, err := filetype.Match(content)
	if err != nil || kind == matchers.TypeUnknown {
		return Unknown
	}
	return kind.Extension
}
