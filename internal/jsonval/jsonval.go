// Package jsonval provides tolerant accessors over values produced by
// encoding/json unmarshaling into any (maps, slices, float64, string, bool).
// The provider schema drifts across characters and patches, so extraction
// never trusts a field's shape.
package jsonval

import (
	"math"
	"sort"
	"strconv"
)

// Record returns the value as a JSON object, or nil.
func Record(value any) map[string]any {
	record, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return record
}

// Array returns the value as a JSON array, or an empty slice.
func Array(value any) []any {
	array, ok := value.([]any)
	if !ok {
		return nil
	}
	return array
}

// Number coerces native JSON numbers and numeric strings. Anything else
// (including NaN/Inf) reports ok=false.
func Number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// NumberOr is Number with a fallback.
func NumberOr(value any, fallback float64) float64 {
	if n, ok := Number(value); ok {
		return n
	}
	return fallback
}

// FirstNumber returns the first coercible number among candidates.
func FirstNumber(candidates ...any) (float64, bool) {
	for _, candidate := range candidates {
		if n, ok := Number(candidate); ok {
			return n, true
		}
	}
	return 0, false
}

// String returns the value as a string, or "".
func String(value any) string {
	s, _ := value.(string)
	return s
}

// StringArray keeps the non-blank string elements of a JSON array.
func StringArray(value any) []string {
	var out []string
	for _, item := range Array(value) {
		if s := String(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CollectNumbers walks the value depth-first and returns every finite number
// found, up to limit (<=0 means unbounded). Object keys are visited in sorted
// order so the cut-off is deterministic.
func CollectNumbers(value any, limit int) []float64 {
	var out []float64
	var walk func(node any)
	walk = func(node any) {
		if limit > 0 && len(out) >= limit {
			return
		}
		switch v := node.(type) {
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				out = append(out, v)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		case map[string]any:
			for _, key := range SortedKeys(v) {
				walk(v[key])
			}
		}
	}
	walk(value)
	return out
}

// SortedKeys returns the record's keys in ascending order.
func SortedKeys(record map[string]any) []string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
