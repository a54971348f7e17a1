package transform

import (
	"fmt"
	"strconv"
)

// Option lookups accept the value shapes produced by both YAML (int) and HCL (float64) decoding.

func optString(opts map[string]any, key, def string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q: expected string, got %T", key, v)
	}
	return s, nil
}

func optBool(opts map[string]any, key string, def bool) (bool, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("option %q: %w", key, err)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("option %q: expected bool, got %T", key, v)
	}
}

func optInt(opts map[string]any, key string, def int) (int, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("option %q: expected integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %q: expected integer, got %T", key, v)
	}
}
