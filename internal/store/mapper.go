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
	"time"

	"github.com/forensiccorpus/corpus/internal/filetime"
	"github.com/forensiccorpus/corpus/internal/record"
)

// columnsFor returns the physical column name(s) a field expands to.
func columnsFor(f Field) []string {
	if f.Kind == record.KindTimestamp {
		return []string{f.Column, f.Column + "_unix"}
	}
	return []string{f.Column}
}

// marshalField converts one struct field's value into its physical
// column value(s), in the same order columnsFor(f) names them.
func marshalField(f Field, fv reflect.Value) ([]any, error) {
	switch f.Kind {
	case record.KindTimestamp:
		t := fv.Interface().(time.Time)
		return []any{filetime.ISO(t), filetime.UnixSeconds(t)}, nil
	case record.KindBool:
		if fv.Bool() {
			return []any{int64(1)}, nil
		}
		return []any{int64(0)}, nil
	case record.KindBytes:
		return []any{fv.Bytes()}, nil
	case record.KindInt:
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return []any{fv.Int()}, nil
		default:
			return []any{int64(fv.Uint())}, nil
		}
	case record.KindFloat:
		return []any{fv.Float()}, nil
	case record.KindText:
		return []any{fv.String()}, nil
	default:
		return nil, fmt.Errorf("store: unsupported kind %s for field %s", f.Kind, f.GoName)
	}
}

// marshal flattens v's fields into the positional argument list Insert
// sends, in Schema.Columns() order.
func marshal(schema *Schema, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	var out []any
	for _, f := range schema.Fields {
		vals, err := marshalField(f, rv.Field(f.Index))
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// scanRow reconstructs one T from the current row. Timestamps rebuild
// from the ISO text column (the "_unix" companion is write-only
// convenience for numeric ordering, spec.md §3); bools rebuild from
// 0/1; everything else scans as-is (spec.md §4.4 "Object
// reconstruction").
func (s *Store[T]) scanRow(rows *sql.Rows) (T, error) {
	var out T
	dest := make([]any, 0, len(s.cols))
	// one scan slot per physical column, aligned with s.cols/Schema.Columns()
	raw := make([]any, len(s.cols))
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return out, fmt.Errorf("store: scan %s row: %w", s.table, err)
	}
	rv := reflect.ValueOf(&out).Elem()
	col := 0
	for _, f := range s.schema.Fields {
		fv := rv.Field(f.Index)
		switch f.Kind {
		case record.KindTimestamp:
			iso, _ := raw[col].(string)
			col += 2 // ISO column plus its _unix companion
			if iso != "" {
				t, err := filetime.ParseISO(iso)
				if err != nil {
					return out, fmt.Errorf("store: parse timestamp column %s: %w", f.Column, err)
				}
				fv.Set(reflect.ValueOf(t))
			}
		case record.KindBool:
			n, _ := toInt64(raw[col])
			fv.SetBool(n != 0)
			col++
		case record.KindInt:
			n, _ := toInt64(raw[col])
			if fv.Kind() >= reflect.Uint && fv.Kind() <= reflect.Uint64 {
				fv.SetUint(uint64(n))
			} else {
				fv.SetInt(n)
			}
			col++
		case record.KindFloat:
			switch n := raw[col].(type) {
			case float64:
				fv.SetFloat(n)
			case int64:
				fv.SetFloat(float64(n))
			}
			col++
		case record.KindBytes:
			b, _ := raw[col].([]byte)
			fv.SetBytes(b)
			col++
		case record.KindText:
			str, _ := raw[col].(string)
			fv.SetString(str)
			col++
		}
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
