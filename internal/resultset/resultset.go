// Package resultset holds the typed output of query execution and its
// delimited-text export.
package resultset

import (
	"database/sql"
	"fmt"
)

// Row is one result row, aligned with ResultSet.Columns.
type Row []Value

// ResultSet is an ordered, typed table of query results.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// New creates an empty result with the given columns.
func New(columns ...string) *ResultSet {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &ResultSet{Columns: cols, Rows: []Row{}}
}

// Empty returns the result of a query that produced no rows: no columns, no rows.
func Empty() *ResultSet {
	return &ResultSet{Columns: []string{}, Rows: []Row{}}
}

// Append adds a row. The row must have exactly one value per column.
func (rs *ResultSet) Append(row Row) error {
	if len(row) != len(rs.Columns) {
		return fmt.Errorf("row has %d values, want %d", len(row), len(rs.Columns))
	}
	rs.Rows = append(rs.Rows, row)
	rs.RowCount = len(rs.Rows)
	return nil
}

// IsEmpty reports whether the result holds no rows.
func (rs *ResultSet) IsEmpty() bool {
	return rs == nil || rs.RowCount == 0
}

// Value returns the cell of the given row under the first column named column.
func (rs *ResultSet) Value(row int, column string) (Value, bool) {
	if row < 0 || row >= len(rs.Rows) {
		return Value{}, false
	}
	for i, c := range rs.Columns {
		if c == column {
			return rs.Rows[row][i], true
		}
	}
	return Value{}, false
}

// Records renders every row as a column name to Go value mapping.
func (rs *ResultSet) Records() []map[string]any {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for i, c := range rs.Columns {
			m[c] = row[i].Interface()
		}
		out = append(out, m)
	}
	return out
}

// FromRows scans rows into a ResultSet keeping at most maxRows rows
// (maxRows <= 0 keeps all). The caller still owns and closes rows.
func FromRows(rows *sql.Rows, maxRows int) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	typeNames := make([]string, len(cols))
	if colTypes, err := rows.ColumnTypes(); err == nil && len(colTypes) == len(cols) {
		for i, ct := range colTypes {
			typeNames[i] = ct.DatabaseTypeName()
		}
	}

	rs := New(cols...)
	for rows.Next() {
		if maxRows > 0 && rs.RowCount == maxRows {
			rs.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, v := range vals {
			row[i] = FromDriver(v, typeNames[i])
		}
		if err := rs.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}

	if rs.RowCount == 0 {
		return Empty(), nil
	}
	return rs, nil
}
