package validator

import (
	"encoding/json"
	"strconv"
	"strings"
)

// coerceNumber accepts native JSON numbers plus numeric strings, which LLM
// backends frequently emit for currency fields.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(b)))
		return parsed, err == nil
	default:
		return false, false
	}
}

// coerceItems normalizes a JSON array of objects into []map[string]any.
func coerceItems(v any) ([]map[string]any, bool) {
	raw, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]map[string]any); ok {
			return typed, true
		}
		return nil, false
	}
	items := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		items = append(items, m)
	}
	return items, true
}

// isMissing treats absent keys, nulls, and blank strings as not provided.
func isMissing(candidate map[string]any, name string) bool {
	v, ok := candidate[name]
	if !ok || v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
