// Package models holds the records a scrape run produces and the helpers
// that reshape them: identity keys, lookup tables, deduplication and the
// flattening of nested upstream payloads into scalar columns.
package models

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ajitpratap0/thor/pkg/json"
)

// Record is one row of site fields, as decoded from upstream JSON.
type Record map[string]interface{}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the identity string of the record's id column.
func (r Record) ID() string {
	return Key(r["id"])
}

// Key returns the canonical identity string for v. Integers, integral
// floats, JSON numbers and strings with the same text compare equal, so
// int64(7), 7.0 and json.Number("7") share the key "7". nil maps to "".
func Key(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Int64 converts a decoded JSON scalar to int64.
func Int64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case float64:
		return floatInt64(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatInt64(f)
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// floatInt64 converts f when it is a whole number inside the int64 range.
// 2^63 itself is out of range; -2^63 is not.
func floatInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f != math.Trunc(f) || f < math.MinInt64 || f >= -math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
