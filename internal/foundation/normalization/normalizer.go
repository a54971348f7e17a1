// Package normalization turns loosely written configuration strings into typed enum values.
package normalization

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Enum maps accepted spellings of a configuration value onto a typed constant.
type Enum[T comparable] struct {
	name     string
	values   map[string]T
	fallback T
	keys     []string
}

// NewEnum creates an Enum. Keys are cleaned the same way input is, so
// "Production" and " production " are both accepted.
func NewEnum[T comparable](name string, values map[string]T, fallback T) *Enum[T] {
	e := &Enum[T]{
		name:     name,
		values:   make(map[string]T, len(values)),
		fallback: fallback,
		keys:     make([]string, 0, len(values)),
	}
	for k, v := range values {
		ck := Clean(k)
		e.values[ck] = v
		e.keys = append(e.keys, ck)
	}
	slices.Sort(e.keys)
	return e
}

// Normalize returns the matching value, the fallback for empty input, and the
// fallback for unknown input.
func (e *Enum[T]) Normalize(raw string) T {
	if v, ok := e.values[Clean(raw)]; ok {
		return v
	}
	return e.fallback
}

// Parse returns the matching value. Empty input yields the fallback; unknown
// input yields an error listing the accepted values.
func (e *Enum[T]) Parse(raw string) (T, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return e.fallback, nil
	}
	if v, ok := e.values[cleaned]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %s", e.name, raw, strings.Join(e.keys, ", "))
}

// Valid reports whether v is one of the enum's values.
func (e *Enum[T]) Valid(v T) bool {
	for _, candidate := range e.values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Keys returns the accepted spellings in sorted order.
func (e *Enum[T]) Keys() []string {
	return slices.Clone(e.keys)
}

// Clean lower-cases, trims and NFC-normalizes s. Hyphens and underscores are
// treated alike.
func Clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
	return strings.ReplaceAll(s, "_", "-")
}
