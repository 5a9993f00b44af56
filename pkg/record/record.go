// Package record defines the tabular row shape shared by fetchers and writers.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Row maps a column name to a scalar value.
type Row map[string]any

// Batch is an ordered sequence of rows belonging to one fetch unit.
type Batch []Row

// Len returns the number of rows.
func (b Batch) Len() int { return len(b) }

// Empty reports whether the batch holds no rows.
func (b Batch) Empty() bool { return len(b) == 0 }

// Cell renders the value of column in a row as a flat-file cell.
// Missing and null values render as the empty string.
func (r Row) Cell(column string) string {
	return FormatValue(r[column])
}

// FormatValue converts a scalar into its CSV text form.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case *float64:
		if val == nil {
			return ""
		}
		return strconv.FormatFloat(*val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		// Nested values (e.g. Socrata location objects) are kept as JSON.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
