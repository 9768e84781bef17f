// Package tabular defines the abstract tabular data shape consumed by
// the validation engine: a header row plus an ordered sequence of rows
// of scalar cells. The engine is agnostic to the underlying file
// format; readers adapt concrete sources into this shape.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Cell is a single scalar value from the data source: string, float64,
// int, int64, time.Time, or nil for a missing value.
type Cell any

// Table is the in-memory tabular source: one header row and the data
// rows in source order. Row i of Rows is spreadsheet line i+2 (the
// header is line 1).
type Table struct {
	Headers []string
	Rows    [][]Cell
}

// IsEmpty reports whether a cell carries no answer: nil, a blank or
// whitespace-only string, or a NaN float (the numeric empty marker
// spreadsheet readers emit for blank numeric cells).
func IsEmpty(c Cell) bool {
	switch v := c.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case float64:
		return math.IsNaN(v)
	}
	return false
}

// timestampFormat is the serialization used for timestamp cells when
// answers are handed to the external validator.
const timestampFormat = "02/01/2006T15:04:05"

// String renders a cell to its natural string form. Floats with an
// integral value lose the decimal point, so a numeric 123.0 compares
// equal to the textual "123" a text-typed field expects.
func String(c Cell) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case time.Time:
		return v.Format(timestampFormat)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ReadCSV adapts a CSV stream into a Table. The first record is the
// header row; all cells stay strings (the engine's numeric checks parse
// them as needed).
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: no header row")
	}

	t := &Table{Headers: records[0]}
	for _, record := range records[1:] {
		row := make([]Cell, len(record))
		for i, field := range record {
			row[i] = field
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
