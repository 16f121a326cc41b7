package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one row as it moves through a pipeline: a mapping of column
// name to value. Rows returned by an extract phase are treated as immutable;
// anything derived from them works on a fresh copy.
type Record map[string]any

// Clone returns a shallow copy of the record. Values are never mutated in
// place by the pipelines, so a shallow copy is enough to keep the extracted
// input intact.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies src values over a fresh copy of the template. The template
// supplies the canonical key set for the destination table, so the result is
// always fully populated even when the source row is missing columns.
func Merge(template Record, src Record) Record {
	out := template.Clone()
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Int64 coerces a column value to int64. Database drivers hand back a mix of
// integer widths depending on the column type.
func Int64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return parsed
	case []byte:
		parsed, _ := strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		return parsed
	default:
		return 0
	}
}

// String coerces a column value to a string, with "" for nil.
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Time coerces a column value to a *time.Time, with nil for null columns.
func Time(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}
