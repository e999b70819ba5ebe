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

import "errors"

// Exit codes per spec.md §6: 0 success, 1 meta-folder error, 2
// usage/missing required input, 3 action runtime failure.
const (
	exitOK = iota
	exitMetaFolder
	exitUsage
	exitRuntime
)

type metaFolderError struct{ err error }

func (e *metaFolderError) Error() string { return e.err.Error() }
func (e *metaFolderError) Unwrap() error { return e.err }

// wrapMetaFolderErr marks err as a meta-folder-layer failure (exit 1).
func wrapMetaFolderErr(err error) error {
	if err == nil {
		return nil
	}
	return &metaFolderError{err}
}

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// wrapUsageErr marks err as a usage/missing-input failure (exit 2).
func wrapUsageErr(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err}
}

// exitCodeFor maps a returned error to the process exit code spec.md
// §6 requires. Any error not tagged by wrapMetaFolderErr/wrapUsageErr
// is an action runtime failure.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var mfe *metaFolderError
	if errors.As(err, &mfe) {
		return exitMetaFolder
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	return exitRuntime
}
