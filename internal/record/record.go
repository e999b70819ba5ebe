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

// Package record defines the entities every extraction subsystem
// produces (spec.md §3) and the small vocabulary (Kind, Outcome) the
// store and carve packages build on.
package record

import "fmt"

// Kind is the declared scalar type of a stored attribute.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindText
	KindBytes
	KindBool
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// OutcomeStatus tags the three ways a single-record parse can end,
// modeling Design Note "Exception-for-control-flow in parsers" (spec.md
// §9) as a value instead of a Go error-or-panic split: a carver must be
// able to tell "skip this record and keep scanning" apart from "this
// whole pass is compromised."
type OutcomeStatus uint8

const (
	OutcomeOK OutcomeStatus = iota
	OutcomeSkip
	OutcomeFatal
)

// Outcome is the tagged result of attempting to parse one record.
type Outcome struct {
	Status OutcomeStatus
	Reason string // set for OutcomeSkip: why this record was discarded
	Err    error  // set for OutcomeFatal
}

// OK is the zero-value success outcome.
var OK = Outcome{Status: OutcomeOK}

// Skip builds a discard outcome carrying a human-readable reason; the
// record is dropped and the caller continues (spec.md §7 kind 3).
func Skip(reason string) Outcome {
	return Outcome{Status: OutcomeSkip, Reason: reason}
}

// Fatal builds an outcome that aborts the current pass (spec.md §7
// kind 6, or an I/O failure at image level).
func Fatal(err error) Outcome {
	return Outcome{Status: OutcomeFatal, Err: err}
}

func (o Outcome) IsOK() bool    { return o.Status == OutcomeOK }
func (o Outcome) IsSkip() bool  { return o.Status == OutcomeSkip }
func (o Outcome) IsFatal() bool { return o.Status == OutcomeFatal }

func (o Outcome) String() string {
	switch o.Status {
	case OutcomeOK:
		return "ok"
	case OutcomeSkip:
		return "skip: " + o.Reason
	case OutcomeFatal:
		return "fatal: " + o.Err.Error()
	default:
		return "unknown outcome"
	}
}
