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

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is one embedded SQLite-backed artifact table: the per-class
// per-partition `.db` file of spec.md §4.4 and §6.
type Store[T any] struct {
	db     *sql.DB
	table  string
	schema *Schema
	cols   []string
}

// Open creates (or attaches to) path, a single-table embedded database
// whose schema is derived from T, and ensures the table and its
// indexes exist. table is the artifact class name used to render
// `<classname>_<partname>.db` filenames one layer up (internal/env).
func Open[T any](path, table string) (*Store[T], error) {
	var zero T
	schema := BuildSchema(reflect.TypeOf(zero))
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer per store connection, spec.md §5
	for _, stmt := range schema.CreateTableSQL(table) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: create schema for %s: %w", table, err)
		}
	}
	return &Store[T]{db: db, table: table, schema: schema, cols: schema.Columns()}, nil
}

// Close releases the underlying connection; per spec.md §5 every store
// connection is released when the parser pass returns, including on
// the error path, so callers should defer Close immediately after Open.
func (s *Store[T]) Close() error { return s.db.Close() }

// Insert writes v, returning false (not an error) if its primary key
// already exists (spec.md §4.4 "Insert is 'ignore on duplicate PK'").
func (s *Store[T]) Insert(v T) (bool, error) {
	vals, err := marshal(s.schema, v)
	if err != nil {
		return false, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(s.cols)), ",")
	quotedCols := make([]string, len(s.cols))
	for i, c := range s.cols {
		quotedCols[i] = quoteCol(c)
	}
	q := fmt.Sprintf("INSERT OR IGNORE INTO %q (%s) VALUES (%s)",
		s.table, strings.Join(quotedCols, ", "), placeholders)
	res, err := s.db.Exec(q, vals...)
	if err != nil {
		return false, fmt.Errorf("store: insert into %s: %w", s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update rewrites only the named logical fields of the row matching
// the primary key extracted from v (spec.md §4.4 "Update can be
// scoped to a subset of columns") — used for the Files store's
// later hash/file_type column backfill (spec.md §3 "Ownership").
func (s *Store[T]) Update(v T, fields ...string) error {
	set := make([]string, 0, len(fields))
	var args []any
	for _, fieldName := range fields {
		f, ok := s.schema.fieldByGoName(fieldName)
		if !ok {
			return fmt.Errorf("store: update: unknown field %q", fieldName)
		}
		colVals, err := marshalField(f, reflect.ValueOf(v).Field(f.Index))
		if err != nil {
			return err
		}
		for i, c := range columnsFor(f) {
			set = append(set, quoteCol(c)+" = ?")
			args = append(args, colVals[i])
		}
	}
	pkFilter, pkArgs, err := pkFilterFor(s.schema, v)
	if err != nil {
		return err
	}
	args = append(args, pkArgs...)
	q := fmt.Sprintf("UPDATE %q SET %s WHERE %s", s.table, strings.Join(set, ", "), pkFilter)
	_, err = s.db.Exec(q, args...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", s.table, err)
	}
	return nil
}

func pkFilterFor(schema *Schema, v any) (string, []any, error) {
	rv := reflect.ValueOf(v)
	var parts []string
	var args []any
	for _, f := range schema.Fields {
		if !f.IsPK {
			continue
		}
		vals, err := marshalField(f, rv.Field(f.Index))
		if err != nil {
			return "", nil, err
		}
		for i, c := range columnsFor(f) {
			parts = append(parts, quoteCol(c)+" = ?")
			args = append(args, vals[i])
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

// Select returns every row matching q, reconstructed into T, ordered
// and limited per q.
func (s *Store[T]) Select(q Query) ([]T, error) {
	sqlText, args := s.buildSelect(q)
	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select from %s: %w", s.table, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SelectOne returns the first row matching q, or ok=false if none.
func (s *Store[T]) SelectOne(q Query) (v T, ok bool, err error) {
	q.Limit = 1
	rows, e := s.Select(q)
	if e != nil {
		return v, false, e
	}
	if len(rows) == 0 {
		return v, false, nil
	}
	return rows[0], true, nil
}

func (s *Store[T]) buildSelect(q Query) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %q", quotedCols(s.cols), s.table)
	if q.ForceIndex != "" {
		if !s.schema.IndexedColumns()[q.ForceIndex] {
			panic(fmt.Sprintf("store: force_index_column %q is not declared indexed on %s", q.ForceIndex, s.table))
		}
		fmt.Fprintf(&b, " INDEXED BY %q", fmt.Sprintf("idx_%s_%s", s.table, q.ForceIndex))
	}
	var args []any
	if q.Where != nil {
		sqlText, a := q.Where.render()
		b.WriteString(" WHERE ")
		b.WriteString(sqlText)
		args = a
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args
}

func quotedCols(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteCol(c)
	}
	return strings.Join(quoted, ", ")
}

func (schema *Schema) fieldByGoName(name string) (Field, bool) {
	for _, f := range schema.Fields {
		if f.GoName == name {
			return f, true
		}
	}
	return Field{}, false
}
