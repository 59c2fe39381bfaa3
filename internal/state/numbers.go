package state

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Extension numbers are int64 when integral (uint64 only above the int64
// range) and float64 otherwise, in history snapshots and saved blobs alike.

// normalizeNumbers folds the unsigned integers the snapshot codec produces
// for non-negative values back into int64.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}

// markFloats replaces float64 values with JSON numbers that always carry a
// fraction or exponent, so integral floats are not read back as integers.
func markFloats(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return t
		}
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return json.Number(s)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = markFloats(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = markFloats(e)
		}
		return out
	}
	return v
}

// restoreNumbers converts the json.Number values of a UseNumber decode.
func restoreNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := t.Int64(); err == nil {
				return i
			}
			if u, err := strconv.ParseUint(s, 10, 64); err == nil {
				return u
			}
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = restoreNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = restoreNumbers(e)
		}
		return t
	}
	return v
}

// unmarshalExtension decodes a saved free-form section.
func unmarshalExtension(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
