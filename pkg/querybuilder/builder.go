// Package querybuilder turns decoded query-string parameters into a document
// query: free-text search, equality filters, sort, pagination and projection.
//
// Typical use inside a list handler:
//
//	b := querybuilder.New(query, params).
//		Search("name", "description").
//		Filter().
//		Sort().
//		Paginate().
//		Fields()
//	res, err := b.Execute(ctx)
package querybuilder

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/nimburion/querykit/pkg/observability/logger"
)

// Builder applies parameter-driven refinements to a pending query. A Builder
// owns one pending query and one parameter map for its whole lifetime and is
// not safe for concurrent use while the chain is being built.
type Builder[T any] struct {
	query  PendingQuery[T]
	params Params
	opts   options

	paginated bool
	page      float64
	limit     float64
}

// New creates a Builder over query and params. params is never modified.
func New[T any](query PendingQuery[T], params Params, opts ...Option) *Builder[T] {
	o := options{
		log:      logger.NewNop(),
		defaults: Defaults{}.withFallbacks(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if params == nil {
		params = Params{}
	}
	return &Builder[T]{query: query, params: params, opts: o}
}

// Query returns the refined pending query.
func (b *Builder[T]) Query() PendingQuery[T] {
	return b.query
}

// Params returns the parameter map the builder reads from.
func (b *Builder[T]) Params() Params {
	return b.params
}

// Search narrows the query to documents where at least one of fields matches
// searchTerm case-insensitively. Without a searchTerm or fields it is a no-op.
func (b *Builder[T]) Search(fields ...string) *Builder[T] {
	term, ok := b.params.String(KeySearchTerm)
	if !ok || len(fields) == 0 {
		return b
	}
	if b.opts.literalSearch {
		term = regexp.QuoteMeta(term)
	}

	clauses := make([]Filter, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, Filter{
			field: Filter{"$regex": term, "$options": "i"},
		})
	}
	b.query = b.query.Find(Filter{"$or": clauses})
	b.opts.log.Debug("search applied", "term", term, "fields", fields)
	return b
}

// Filter narrows the query by equality on every non-reserved parameter.
// Parameters with a nil value are ignored.
func (b *Builder[T]) Filter() *Builder[T] {
	conditions := Filter{}
	for key, value := range b.params {
		if IsReserved(key) || value == nil {
			continue
		}
		conditions[key] = value
	}
	if len(conditions) == 0 {
		return b
	}
	b.query = b.query.Find(conditions)
	b.opts.log.Debug("filter applied", "conditions", len(conditions))
	return b
}

// Sort orders the query by the comma separated sort parameter, falling back
// to the default sort (most recent first).
func (b *Builder[T]) Sort() *Builder[T] {
	spec := b.opts.defaults.Sort
	if raw, ok := b.params.String(KeySort); ok {
		spec = commaListToSpec(raw)
	}
	b.query = b.query.Sort(spec)
	return b
}

// Paginate applies skip and limit from page and limit. It is a no-op when
// skipLimit is "YES" in any letter case.
func (b *Builder[T]) Paginate() *Builder[T] {
	if raw, ok := b.params.String(KeySkipLimit); ok && strings.EqualFold(raw, "YES") {
		b.paginated = false
		return b
	}

	page := b.params.Number(KeyPage, float64(b.opts.defaults.Page))
	limit := b.params.Number(KeyLimit, float64(b.opts.defaults.Limit))
	skip := (page - 1) * limit

	b.query = b.query.Skip(toInt64(skip)).Limit(toInt64(limit))
	b.paginated = true
	b.page = page
	b.limit = limit
	b.opts.log.Debug("pagination applied", "page", page, "limit", limit, "skip", toInt64(skip))
	return b
}

// toInt64 truncates f toward zero, saturating at the bounds of int64.
func toInt64(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// Fields projects the comma separated fields parameter, falling back to
// excluding the revision marker.
func (b *Builder[T]) Fields() *Builder[T] {
	spec := b.opts.defaults.Projection
	if raw, ok := b.params.String(KeyFields); ok {
		spec = commaListToSpec(raw)
	}
	b.query = b.query.Select(spec)
	return b
}

// CountTotal counts the documents matching the current conditions. Sort,
// pagination and projection do not affect the result. Backend errors are
// returned as-is.
func (b *Builder[T]) CountTotal(ctx context.Context) (int64, error) {
	total, err := b.query.CountDocuments(ctx, b.query.Conditions())
	if err != nil {
		b.opts.log.Debug("count failed", "error", err)
		return 0, err
	}
	return total, nil
}
