package challenge

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// AsInt converts the numeric shapes produced by the YAML and JSON decoders to
// an int. Digit-only strings are accepted as well.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	case string:
		if isDigits(n) {
			i, err := strconv.Atoi(n)
			return i, err == nil
		}
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Canonical rewrites v so that values decoded from YAML and from JSON compare
// equal: integral numbers become int, sequences become []any and mappings
// become map[string]any.
func Canonical(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, ok := AsInt(t); ok {
			return i
		}
		f, _ := t.Float64()
		return f
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return int(t)
		}
		return t
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Canonical(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Canonical(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = Canonical(e)
		}
		return out
	}
	return v
}

// Equal compares two field values after canonicalization.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Canonical(a), Canonical(b))
}

// StringList returns the string elements of a sequence value. Non-string
// elements are formatted with %v.
func StringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
