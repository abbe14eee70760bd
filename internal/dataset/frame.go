// Package dataset provides the in-memory tabular structure bound into
// sandboxed analysis code, its CSV codec, and per-session dataset resolution.
package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the inferred scalar type of a column.
type ColumnType string

const (
	TypeNumeric  ColumnType = "numeric"
	TypeText     ColumnType = "text"
	TypeBoolean  ColumnType = "boolean"
	TypeTemporal ColumnType = "temporal"
)

// Frame is an ordered list of named, typed columns with rows of aligned
// heterogeneous scalars. Every row has exactly the header's column count and
// order. Cell values are float64, string, bool, or time.Time according to the
// column type.
//
// Frame is the dataset handle exposed to sandboxed analysis code as `df`.
// Accessor methods panic on unknown columns; the sandbox converts panics into
// failed outcomes, so a broken analysis degrades to a spoken error rather
// than crashing the host.
type Frame struct {
	cols  []string
	types []ColumnType
	rows  [][]any

	tracker *Tracker
}

// New creates an empty frame with the given columns and types.
// types may be nil, in which case all columns default to text.
func New(cols []string, types []ColumnType) *Frame {
	if types == nil {
		types = make([]ColumnType, len(cols))
		for i := range types {
			types[i] = TypeText
		}
	}
	return &Frame{
		cols:  append([]string(nil), cols...),
		types: append([]ColumnType(nil), types...),
	}
}

// Columns returns the ordered column names.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.cols...)
}

// Types returns the ordered column types.
func (f *Frame) Types() []ColumnType {
	return append([]ColumnType(nil), f.types...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Shape returns the "(rows, columns)" form of the frame.
func (f *Frame) Shape() string {
	return fmt.Sprintf("(%d, %d)", len(f.rows), len(f.cols))
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []any {
	if i < 0 || i >= len(f.rows) {
		panic(fmt.Sprintf("row index %d out of range (0..%d)", i, len(f.rows)-1))
	}
	return append([]any(nil), f.rows[i]...)
}

// AppendRow appends one row. The row must match the header width.
func (f *Frame) AppendRow(row []any) error {
	if len(row) != len(f.cols) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(row), len(f.cols))
	}
	f.rows = append(f.rows, append([]any(nil), row...))
	f.touch()
	return nil
}

func (f *Frame) colIndex(name string) int {
	for i, c := range f.cols {
		if c == name {
			return i
		}
	}
	panic(fmt.Sprintf("unknown column %q (have: %s)", name, strings.Join(f.cols, ", ")))
}

// Col returns the values of the named column. Panics if the column does not exist.
func (f *Frame) Col(name string) []any {
	idx := f.colIndex(name)
	out := make([]any, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[idx]
	}
	return out
}

// Set stores a value at (row, column), marking the frame as changed.
func (f *Frame) Set(row int, name string, value any) {
	idx := f.colIndex(name)
	if row < 0 || row >= len(f.rows) {
		panic(fmt.Sprintf("row index %d out of range (0..%d)", row, len(f.rows)-1))
	}
	f.rows[row][idx] = value
	f.touch()
}

func (f *Frame) numericCol(name string) []float64 {
	idx := f.colIndex(name)
	out := make([]float64, 0, len(f.rows))
	for _, row := range f.rows {
		switch v := row[idx].(type) {
		case float64:
			out = append(out, v)
		case bool:
			if v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		default:
			panic(fmt.Sprintf("column %q is not numeric", name))
		}
	}
	return out
}

// Mean returns the arithmetic mean of a numeric column.
func (f *Frame) Mean(name string) float64 {
	vals := f.numericCol(name)
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Sum returns the sum of a numeric column.
func (f *Frame) Sum(name string) float64 {
	var sum float64
	for _, v := range f.numericCol(name) {
		sum += v
	}
	return sum
}

// Min returns the minimum of a numeric column.
func (f *Frame) Min(name string) float64 {
	vals := f.numericCol(name)
	if len(vals) == 0 {
		return 0
	}
	min := vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the maximum of a numeric column.
func (f *Frame) Max(name string) float64 {
	vals := f.numericCol(name)
	if len(vals) == 0 {
		return 0
	}
	max := vals[0]
	for _, v := range vals[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Count returns the number of non-empty values in a column.
func (f *Frame) Count(name string) int {
	idx := f.colIndex(name)
	n := 0
	for _, row := range f.rows {
		if s, ok := row[idx].(string); ok && s == "" {
			continue
		}
		n++
	}
	return n
}

// Unique returns the distinct values of a column in first-seen order.
func (f *Frame) Unique(name string) []any {
	idx := f.colIndex(name)
	seen := map[string]bool{}
	out := []any{}
	for _, row := range f.rows {
		key := CellString(row[idx])
		if !seen[key] {
			seen[key] = true
			out = append(out, row[idx])
		}
	}
	return out
}

// derive creates a new frame sharing this frame's header and tracker.
func (f *Frame) derive(cols []string, types []ColumnType) *Frame {
	out := New(cols, types)
	out.tracker = f.tracker
	if out.tracker != nil {
		out.tracker.created(out)
	}
	return out
}

// Head returns a new frame with the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n > len(f.rows) {
		n = len(f.rows)
	}
	out := f.derive(f.cols, f.types)
	for _, row := range f.rows[:n] {
		out.rows = append(out.rows, append([]any(nil), row...))
	}
	return out
}

// Select returns a new frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) *Frame {
	idxs := make([]int, len(names))
	types := make([]ColumnType, len(names))
	for i, n := range names {
		idxs[i] = f.colIndex(n)
		types[i] = f.types[idxs[i]]
	}
	out := f.derive(names, types)
	for _, row := range f.rows {
		nr := make([]any, len(idxs))
		for i, idx := range idxs {
			nr[i] = row[idx]
		}
		out.rows = append(out.rows, nr)
	}
	return out
}

// Filter returns a new frame with rows where column op value holds.
// op is one of "==", "!=", "<", "<=", ">", ">=", "contains".
func (f *Frame) Filter(name, op string, value any) *Frame {
	idx := f.colIndex(name)
	out := f.derive(f.cols, f.types)
	for _, row := range f.rows {
		if compareCells(row[idx], op, value) {
			out.rows = append(out.rows, append([]any(nil), row...))
		}
	}
	return out
}

// SortBy returns a new frame sorted by the named column.
func (f *Frame) SortBy(name string, descending bool) *Frame {
	idx := f.colIndex(name)
	out := f.derive(f.cols, f.types)
	for _, row := range f.rows {
		out.rows = append(out.rows, append([]any(nil), row...))
	}
	sort.SliceStable(out.rows, func(i, j int) bool {
		less := cellLess(out.rows[i][idx], out.rows[j][idx])
		if descending {
			return !less && !cellEqual(out.rows[i][idx], out.rows[j][idx])
		}
		return less
	})
	return out
}

// GroupMean returns a new two-column frame with the mean of a numeric column
// per distinct value of the group column.
func (f *Frame) GroupMean(groupCol, valueCol string) *Frame {
	gi := f.colIndex(groupCol)
	f.colIndex(valueCol) // validate up front
	vals := f.numericCol(valueCol)

	order := []string{}
	sums := map[string]float64{}
	counts := map[string]int{}
	for i, row := range f.rows {
		key := CellString(row[gi])
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		sums[key] += vals[i]
		counts[key]++
	}

	out := f.derive([]string{groupCol, "mean_" + valueCol}, []ColumnType{f.types[gi], TypeNumeric})
	for _, key := range order {
		out.rows = append(out.rows, []any{key, sums[key] / float64(counts[key])})
	}
	return out
}

// WithColumn returns a new frame with an extra column appended. values must
// match the row count; missing values are filled with the empty string.
func (f *Frame) WithColumn(name string, values []any) *Frame {
	out := f.derive(append(f.Columns(), name), append(f.Types(), inferValues(values)))
	for i, row := range f.rows {
		var v any = ""
		if i < len(values) {
			v = values[i]
		}
		out.rows = append(out.rows, append(append([]any(nil), row...), v))
	}
	return out
}

// Clone returns a deep copy of the frame. The copy is untracked.
func (f *Frame) Clone() *Frame {
	out := New(f.cols, f.types)
	for _, row := range f.rows {
		out.rows = append(out.rows, append([]any(nil), row...))
	}
	return out
}

// String renders the frame as an aligned text table, truncated to the first
// 15 rows. This is the textual form used when a frame is the spoken result.
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(f.cols, " | "))
	b.WriteString("\n")
	limit := len(f.rows)
	if limit > 15 {
		limit = 15
	}
	for _, row := range f.rows[:limit] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = CellString(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(f.rows) > limit {
		fmt.Fprintf(&b, "... (%d rows total)\n", len(f.rows))
	}
	return b.String()
}

// StringRows renders every row of the frame as strings, aligned to Columns().
func (f *Frame) StringRows() [][]string {
	out := make([][]string, len(f.rows))
	for i, row := range f.rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = CellString(v)
		}
		out[i] = cells
	}
	return out
}

// CellString renders a scalar cell value as a string.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func cellLess(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Before(bt)
	}
	return CellString(a) < CellString(b)
}

func cellEqual(a, b any) bool {
	return CellString(a) == CellString(b)
}

func compareCells(cell any, op string, value any) bool {
	switch op {
	case "==":
		return cellEqual(cell, value)
	case "!=":
		return !cellEqual(cell, value)
	case "<":
		return cellLess(cell, value)
	case "<=":
		return cellLess(cell, value) || cellEqual(cell, value)
	case ">":
		return !cellLess(cell, value) && !cellEqual(cell, value)
	case ">=":
		return !cellLess(cell, value)
	case "contains":
		return strings.Contains(CellString(cell), CellString(value))
	default:
		panic(fmt.Sprintf("unknown filter operator %q", op))
	}
}
