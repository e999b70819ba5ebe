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

package store

import "strings"

// Filter is a composable predicate tree (spec.md §4.4): and, or, in,
// eq, ne, gt, ge, lt, le, like, nlike.
type Filter interface {
	render() (string, []any)
}

type leaf struct {
	col string
	op  string
	arg any
}

func (l leaf) render() (string, []any) {
	return quoteCol(l.col) + " " + l.op + " ?", []any{l.arg}
}

func Eq(col string, v any) Filter    { return leaf{col, "=", v} }
func Ne(col string, v any) Filter    { return leaf{col, "!=", v} }
func Gt(col string, v any) Filter    { return leaf{col, ">", v} }
func Ge(col string, v any) Filter    { return leaf{col, ">=", v} }
func Lt(col string, v any) Filter    { return leaf{col, "<", v} }
func Le(col string, v any) Filter    { return leaf{col, "<=", v} }
func Like(col string, v string) Filter  { return leaf{col, "LIKE", v} }
func NotLike(col string, v string) Filter { return leaf{col, "NOT LIKE", v} }

type inFilter struct {
	col  string
	args []any
}

// In matches col against any of vals.
func In(col string, vals []any) Filter { return inFilter{col, vals} }

func (f inFilter) render() (string, []any) {
	if len(f.args) == 0 {
		return "0", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.args)), ",")
	return quoteCol(f.col) + " IN (" + placeholders + ")", f.args
}

type combinator struct {
	op    string
	terms []Filter
}

// And composes terms with AND.
func And(terms ...Filter) Filter { return combinator{"AND", terms} }

// Or composes terms with OR.
func Or(terms ...Filter) Filter { return combinator{"OR", terms} }

func (c combinator) render() (string, []any) {
	if len(c.terms) == 0 {
		return "1", nil
	}
	var parts []string
	var args []any
	for _, t := range c.terms {
		sql, a := t.render()
		parts = append(parts, "("+sql+")")
		args = append(args, a...)
	}
	return strings.Join(parts, " "+c.op+" "), args
}

func quoteCol(col string) string {
	return `"` + col + `"`
}

// Query bundles a Filter with ordering/limit/force-index options for
// Select.
type Query struct {
	Where        Filter
	ForceIndex   string // column name; must be an indexed column
	OrderBy      string
	Limit        int
}
