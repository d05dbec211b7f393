// Package jsonval provides helpers over the generic JSON tree produced by
// encoding/json (map[string]any, []any, float64, string, bool, nil).
// The archive format compares, clones, and hashes these trees constantly,
// so the canonical form lives in one place.
package jsonval

import (
	"encoding/json"
	"fmt"
)

// TypeName returns the JSON type name for a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Canonical returns the canonical serialized form of a JSON tree.
// encoding/json sorts object keys, so two structurally equal trees always
// produce identical bytes. Used as the content key for array move detection.
func Canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only reachable for values that did not come from a JSON decode.
		return fmt.Sprintf("!%v", v)
	}
	return string(b)
}

// Equal reports structural equality of two JSON trees.
func Equal(a, b any) bool {
	return Canonical(a) == Canonical(b)
}

// Clone deep-copies a JSON tree. Scalars are immutable and shared.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}
