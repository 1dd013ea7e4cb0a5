package querybuilder

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Reserved parameter keys. They drive search, sort, pagination and projection
// and are never used as document filters.
const (
	KeySearchTerm = "searchTerm"
	KeySort       = "sort"
	KeyLimit      = "limit"
	KeyPage       = "page"
	KeyFields     = "fields"
	KeySkipLimit  = "skipLimit"
)

var reservedKeys = map[string]struct{}{
	KeySearchTerm: {},
	KeySort:       {},
	KeyLimit:      {},
	KeyPage:       {},
	KeyFields:     {},
	KeySkipLimit:  {},
}

// IsReserved reports whether key is one of the reserved parameter keys.
func IsReserved(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Params is a decoded query-string parameter map. Values are strings, numbers
// or nil for absent values. The builder only reads it.
type Params map[string]any

// ParamsFromValues converts decoded URL values, keeping the first value of each key.
func ParamsFromValues(values url.Values) Params {
	params := make(Params, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			params[key] = nil
			continue
		}
		params[key] = vals[0]
	}
	return params
}

// ParseQuery parses a raw query string such as "searchTerm=shoe&page=2".
func ParseQuery(raw string) (Params, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse query %q: %w", raw, err)
	}
	return ParamsFromValues(values), nil
}

// String returns the textual form of the value stored under key and whether
// the value is truthy (present, non-nil, non-empty, non-zero).
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || !truthy(v) {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Number reads key as a number. Absent, non-numeric, zero and non-finite
// values yield fallback.
func (p Params) Number(key string, fallback float64) float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	n, ok := toNumber(v)
	if !ok || n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return n
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	}
	if n, ok := toNumber(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		if n, ok := prefixedInteger(s); ok {
			return n, true
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// prefixedInteger parses the 0x, 0o and 0b integer literals Number() accepts.
// Signs and digit separators are rejected.
func prefixedInteger(s string) (float64, bool) {
	if len(s) < 3 || s[0] != '0' {
		return 0, false
	}
	base := 0
	switch s[1] {
	case 'x', 'X':
		base = 16
	case 'o', 'O':
		base = 8
	case 'b', 'B':
		base = 2
	default:
		return 0, false
	}
	if strings.ContainsRune(s, '_') {
		return 0, false
	}
	n, err := strconv.ParseUint(s[2:], base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return math.Inf(1), true
		}
		return 0, false
	}
	return float64(n), true
}
