package memory

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/nimburion/querykit/pkg/querybuilder"
	"github.com/vinicius-lino-figueiredo/gedb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedb/pkg/structure"
)

// translator rewrites a querybuilder.Filter into the query shape the gedb
// matcher evaluates. The matcher has no $eq or $options, does not allow
// operators next to plain fields, and reads only the first logical operator
// of a document, so every produced document holds either plain field rules
// or exactly one of $and, $or and $not.
//
// Equality based operators ($eq, $ne, $in, $nin) are expressed with plain
// field rules so array fields and missing fields behave as on the server.
type translator struct {
	numberFields map[string]struct{}
}

func (t translator) query(f map[string]any) (map[string]any, error) {
	fields := map[string]any{}
	var parts []any
	for _, key := range slices.Sorted(maps.Keys(f)) {
		cond := f[key]
		switch key {
		case "$and", "$or":
			clauses, err := t.clauses(key, cond)
			if err != nil {
				return nil, err
			}
			parts = append(parts, map[string]any{key: clauses})
		case "$nor":
			clauses, err := t.clauses(key, cond)
			if err != nil {
				return nil, err
			}
			parts = append(parts, map[string]any{"$not": map[string]any{"$or": clauses}})
		default:
			if strings.HasPrefix(key, "$") {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
			}
			extra, err := t.field(fields, key, cond)
			if err != nil {
				return nil, err
			}
			parts = append(parts, extra...)
		}
	}
	if len(fields) > 0 {
		parts = append([]any{fields}, parts...)
	}
	switch len(parts) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return parts[0].(map[string]any), nil
	}
	return map[string]any{"$and": parts}, nil
}

func (t translator) clauses(op string, cond any) ([]any, error) {
	var items []any
	switch v := cond.(type) {
	case []querybuilder.Filter:
		for _, f := range v {
			items = append(items, map[string]any(f))
		}
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	case []any:
		items = v
	default:
		return nil, fmt.Errorf("%s expects an array, got %T", op, cond)
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%s clause must be a document, got %T", op, item)
		}
		q, err := t.query(m)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// field stores the matcher rule for key in fields and returns the clauses
// that must be combined with it.
func (t translator) field(fields map[string]any, key string, cond any) ([]any, error) {
	ops, ok := operatorDocument(cond)
	if !ok {
		fields[key] = t.value(key, cond)
		return nil, nil
	}

	native := map[string]any{}
	var extra []any
	for _, op := range slices.Sorted(maps.Keys(ops)) {
		operand := ops[op]
		switch op {
		case "$eq":
			extra = append(extra, map[string]any{key: t.value(key, operand)})
		case "$ne":
			extra = append(extra, map[string]any{"$not": map[string]any{key: t.value(key, operand)}})
		case "$in", "$nin":
			list, err := t.list(key, op, operand)
			if err != nil {
				return nil, err
			}
			clause := anyOf(key, list)
			if op == "$nin" {
				clause = map[string]any{"$not": clause}
			}
			extra = append(extra, clause)
		case "$gt", "$gte", "$lt", "$lte":
			native[op] = t.value(key, operand)
		case "$exists":
			want, isBool := operand.(bool)
			if !isBool {
				want = operand != nil
			}
			native[op] = want
		case "$size":
			native[op] = operand
		case "$regex":
			re, err := compileRegex(operand, ops["$options"])
			if err != nil {
				return nil, err
			}
			native[op] = re
		case "$options":
			if _, ok := ops["$regex"]; !ok {
				return nil, fmt.Errorf("%w: $options without $regex", ErrUnsupportedOperator)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
		}
	}
	if len(native) > 0 {
		fields[key] = native
	}
	return extra, nil
}

func (t translator) list(key, op string, operand any) ([]any, error) {
	seq, n, err := structure.Seq(operand)
	if err != nil {
		return nil, fmt.Errorf("%s expects an array, got %T", op, operand)
	}
	out := make([]any, 0, n)
	for v := range seq {
		out = append(out, t.value(key, v))
	}
	return out, nil
}

// value prepares a comparison value for key, casting numeric strings for
// the configured number fields.
func (t translator) value(key string, v any) any {
	if f, ok := v.(querybuilder.Filter); ok {
		return map[string]any(f)
	}
	if _, ok := t.numberFields[key]; ok {
		if n, ok := querybuilder.NumericValue(v); ok {
			return n
		}
	}
	return v
}

// anyOf matches key against each value. A nil value also matches documents
// without the field.
func anyOf(key string, values []any) map[string]any {
	clauses := make([]any, 0, len(values)+1)
	for _, v := range values {
		if v == nil {
			clauses = append(clauses, map[string]any{key: map[string]any{"$exists": false}})
		}
		clauses = append(clauses, map[string]any{key: v})
	}
	return map[string]any{"$or": clauses}
}

func compileRegex(pattern any, options any) (*regexp.Regexp, error) {
	if re, ok := pattern.(*regexp.Regexp); ok {
		return re, nil
	}
	expr, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("$regex expects a string, got %T", pattern)
	}
	flags := ""
	if opts, ok := options.(string); ok {
		for _, r := range opts {
			switch r {
			case 'i', 'm', 's':
				flags += string(r)
			}
		}
	}
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid $regex: %w", err)
	}
	return re, nil
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case querybuilder.Filter:
		return t, true
	case map[string]any:
		return t, true
	}
	return nil, false
}

// operatorDocument reports whether cond is a {"$op": ...} document.
func operatorDocument(cond any) (map[string]any, bool) {
	m, ok := asMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// matcherError maps the matcher's operator errors onto ErrUnsupportedOperator.
func matcherError(err error) error {
	var unknownOp matcher.ErrUnknownOperator
	var unknownComp matcher.ErrUnknownComparison
	if errors.As(err, &unknownOp) || errors.As(err, &unknownComp) {
		return fmt.Errorf("%w: %w", ErrUnsupportedOperator, err)
	}
	return err
}
