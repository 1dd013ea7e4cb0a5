package querybuilder

import (
	"math"
	"strconv"
	"strings"
)

// Filter is a document filter in MongoDB query shape, e.g.
// {"status": "active", "$or": [...]}.
type Filter map[string]any

// And returns a filter matching documents that satisfy both f and other.
// Filters with disjoint keys are merged into one map; overlapping keys are
// combined under $and so neither condition is lost. Neither input is modified.
func (f Filter) And(other Filter) Filter {
	if len(other) == 0 {
		return f.clone()
	}
	if len(f) == 0 {
		return other.clone()
	}

	if !f.overlaps(other) {
		merged := f.clone()
		for k, v := range other {
			merged[k] = v
		}
		return merged
	}

	if clauses, ok := f.andClauses(); ok {
		out := make([]Filter, 0, len(clauses)+1)
		out = append(out, clauses...)
		return Filter{"$and": append(out, other.clone())}
	}
	return Filter{"$and": []Filter{f.clone(), other.clone()}}
}

func (f Filter) overlaps(other Filter) bool {
	for k := range other {
		if _, ok := f[k]; ok {
			return true
		}
	}
	return false
}

// andClauses returns the clauses when f is exactly {"$and": [...]}.
func (f Filter) andClauses() ([]Filter, bool) {
	if len(f) != 1 {
		return nil, false
	}
	clauses, ok := f["$and"].([]Filter)
	return clauses, ok
}

func (f Filter) clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// NumericValue parses a decimal string filter value. Integers become int64,
// anything else ParseFloat accepts as finite becomes float64. ok is false for
// non-strings and for strings that are not numbers.
func NumericValue(v any) (any, bool) {
	s, isString := v.(string)
	if !isString {
		return v, false
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v, false
	}
	return f, true
}
