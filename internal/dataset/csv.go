package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// temporalLayouts are the date/time forms recognized during type inference.
var temporalLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Load reads a CSV document (header row plus data rows) into a typed frame.
// Column types are inferred by scanning every value: a column is numeric,
// boolean, or temporal only when all of its non-empty values parse as such,
// and text otherwise.
func Load(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	header := records[0]
	raw := records[1:]

	types := make([]ColumnType, len(header))
	for col := range header {
		values := make([]string, 0, len(raw))
		for _, rec := range raw {
			if col < len(rec) {
				values = append(values, rec[col])
			}
		}
		types[col] = inferType(values)
	}

	frame := New(header, types)
	for i, rec := range raw {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d values, header has %d", i+1, len(rec), len(header))
		}
		row := make([]any, len(rec))
		for col, cell := range rec {
			row[col] = parseCell(cell, types[col])
		}
		frame.rows = append(frame.rows, row)
	}
	return frame, nil
}

// LoadFile reads a CSV file into a frame.
func LoadFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Save writes the frame as CSV with a header row.
func (f *Frame) Save(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.cols); err != nil {
		return err
	}
	for _, row := range f.StringRows() {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// inferType picks the narrowest type that fits every non-empty value.
func inferType(values []string) ColumnType {
	nonEmpty := 0
	numeric, boolean, temporal := true, true, true
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		nonEmpty++
		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		if boolean {
			if !isBool(v) {
				boolean = false
			}
		}
		if temporal {
			if _, ok := parseTemporal(v); !ok {
				temporal = false
			}
		}
	}
	if nonEmpty == 0 {
		return TypeText
	}
	switch {
	case boolean:
		return TypeBoolean
	case numeric:
		return TypeNumeric
	case temporal:
		return TypeTemporal
	default:
		return TypeText
	}
}

// inferValues infers a column type from already-typed cell values.
func inferValues(values []any) ColumnType {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = CellString(v)
	}
	return inferType(strs)
}

func isBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false":
		return true
	}
	return false
}

func parseTemporal(v string) (time.Time, bool) {
	for _, layout := range temporalLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseCell(v string, t ColumnType) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	switch t {
	case TypeNumeric:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	case TypeTemporal:
		if ts, ok := parseTemporal(v); ok {
			return ts
		}
	}
	return v
}
