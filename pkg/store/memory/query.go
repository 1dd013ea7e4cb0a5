package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/nimburion/querykit/pkg/querybuilder"
	"github.com/vinicius-lino-figueiredo/gedb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedb/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedb/adapter/projector"
	"github.com/vinicius-lino-figueiredo/gedb/domain"
)

// DefaultTagName is the struct tag used to decode documents into T, so the
// same model type works against MongoDB and this store.
const DefaultTagName = "bson"

// Stateless gedb adapters shared by every query.
var (
	valueComparer = comparer.NewComparer()
	fieldNav      = fieldnavigator.NewFieldNavigator(data.NewDocument)
)

// QueryOption configures a Query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	numberFields map[string]struct{}
}

// WithNumberFields casts numeric strings to numbers when they are compared
// against the named fields, so "?price=25" matches a document whose price is
// stored as 25. Without it a string never equals a number.
func WithNumberFields(names ...string) QueryOption {
	return func(c *queryConfig) {
		for _, n := range names {
			c.numberFields[n] = struct{}{}
		}
	}
}

// Query is a querybuilder.PendingQuery over a Collection.
// Refining methods return a new Query; the receiver is left unchanged.
type Query[T any] struct {
	coll    *Collection
	tagName string
	cfg     *queryConfig

	filter     querybuilder.Filter
	sort       string
	skip       *int64
	limit      *int64
	projection string
}

var _ querybuilder.PendingQuery[map[string]any] = (*Query[map[string]any])(nil)

// NewQuery creates a pending query over every document of coll.
func NewQuery[T any](coll *Collection, opts ...QueryOption) *Query[T] {
	cfg := &queryConfig{numberFields: map[string]struct{}{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Query[T]{coll: coll, tagName: DefaultTagName, cfg: cfg, filter: querybuilder.Filter{}}
}

// WithTagName sets the struct tag used when decoding into T.
func (q *Query[T]) WithTagName(tag string) *Query[T] {
	c := q.clone()
	c.tagName = tag
	return c
}

func (q *Query[T]) clone() *Query[T] {
	c := *q
	return &c
}

func (q *Query[T]) Find(filter querybuilder.Filter) querybuilder.PendingQuery[T] {
	c := q.clone()
	c.filter = q.filter.And(filter)
	return c
}

func (q *Query[T]) Sort(spec string) querybuilder.PendingQuery[T] {
	c := q.clone()
	c.sort = spec
	return c
}

func (q *Query[T]) Skip(n int64) querybuilder.PendingQuery[T] {
	c := q.clone()
	c.skip = &n
	return c
}

func (q *Query[T]) Limit(n int64) querybuilder.PendingQuery[T] {
	c := q.clone()
	c.limit = &n
	return c
}

func (q *Query[T]) Select(spec string) querybuilder.PendingQuery[T] {
	c := q.clone()
	c.projection = spec
	return c
}

func (q *Query[T]) Conditions() querybuilder.Filter {
	return q.filter
}

func (q *Query[T]) CountDocuments(ctx context.Context, filter querybuilder.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	matched, err := q.matching(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (q *Query[T]) Exec(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.skip != nil && *q.skip < 0 {
		return nil, ErrNegativeSkip
	}

	docs, err := q.matching(q.filter)
	if err != nil {
		return nil, err
	}
	if err := q.order(docs); err != nil {
		return nil, err
	}
	docs, err = q.project(q.page(docs))
	if err != nil {
		return nil, err
	}

	results := make([]T, 0, len(docs))
	for _, doc := range docs {
		var out T
		if err := q.decode(plain(doc), &out); err != nil {
			return nil, err
		}
		results = append(results, out)
	}
	return results, nil
}

// Plan describes the query in a printable form.
type Plan struct {
	Collection string              `json:"collection" yaml:"collection"`
	Filter     querybuilder.Filter `json:"filter" yaml:"filter"`
	Sort       string              `json:"sort,omitempty" yaml:"sort,omitempty"`
	Skip       *int64              `json:"skip,omitempty" yaml:"skip,omitempty"`
	Limit      *int64              `json:"limit,omitempty" yaml:"limit,omitempty"`
	Projection string              `json:"projection,omitempty" yaml:"projection,omitempty"`
}

// Plan returns the accumulated filter, ordering, paging and projection.
func (q *Query[T]) Plan() Plan {
	return Plan{
		Collection: q.coll.Name(),
		Filter:     q.filter,
		Sort:       q.sort,
		Skip:       q.skip,
		Limit:      q.limit,
		Projection: q.projection,
	}
}

func (q *Query[T]) matching(filter querybuilder.Filter) ([]domain.Document, error) {
	query, err := translator{numberFields: q.cfg.numberFields}.query(filter)
	if err != nil {
		return nil, err
	}
	m := matcher.NewMatcher(matcher.WithComparer(valueComparer), matcher.WithFieldNavigator(fieldNav))
	if err := m.SetQuery(query); err != nil {
		return nil, matcherError(err)
	}

	docs, err := q.coll.documents()
	if err != nil {
		return nil, err
	}
	var out []domain.Document
	for _, doc := range docs {
		ok, err := m.Match(doc)
		if err != nil {
			return nil, matcherError(err)
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// order sorts docs by the sort spec. Missing fields sort first, then null,
// numbers, strings, booleans and dates.
func (q *Query[T]) order(docs []domain.Document) error {
	keys := querybuilder.ParseSort(q.sort)
	if len(keys) == 0 {
		return nil
	}
	addrs := make([][]string, len(keys))
	for i, k := range keys {
		addr, err := fieldNav.GetAddress(k.Field)
		if err != nil {
			return err
		}
		addrs[i] = addr
	}

	var sortErr error
	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		for i, k := range keys {
			c, err := compareField(a, b, addrs[i])
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return 0
			}
			if k.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return sortErr
}

func compareField(a, b domain.Document, addr []string) (int, error) {
	va, err := sortValue(a, addr)
	if err != nil {
		return 0, err
	}
	vb, err := sortValue(b, addr)
	if err != nil {
		return 0, err
	}
	return valueComparer.Compare(va, vb)
}

// sortValue returns the getter for addr in doc. Expanded array paths sort by
// their first element.
func sortValue(doc domain.Document, addr []string) (domain.Getter, error) {
	got, _, err := fieldNav.GetField(doc, addr...)
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return fieldnavigator.NewGetSetterEmpty(), nil
	}
	return got[0], nil
}

// page applies skip and limit. A zero limit means no limit and a negative
// limit is treated as its absolute value.
func (q *Query[T]) page(docs []domain.Document) []domain.Document {
	if q.skip != nil {
		skip := *q.skip
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if q.limit != nil {
		limit := *q.limit
		if limit < 0 {
			limit = -limit
		}
		if limit > 0 && limit < int64(len(docs)) {
			docs = docs[:limit]
		}
	}
	return docs
}

// project applies the projection spec. Inclusion keeps _id unless it is
// excluded explicitly.
func (q *Query[T]) project(docs []domain.Document) ([]domain.Document, error) {
	spec := querybuilder.ParseProjection(q.projection)
	if len(spec) == 0 {
		return docs, nil
	}
	proj := make(map[string]uint8, len(spec))
	for _, f := range spec {
		if f.Include {
			proj[f.Field] = 1
		} else {
			proj[f.Field] = 0
		}
	}
	out, err := projector.NewProjector(projector.WithFieldNavigator(fieldNav)).Project(docs, proj)
	if errors.Is(err, projector.ErrMixOmitType) {
		return nil, fmt.Errorf("%w: %s", ErrMixedProjection, strings.TrimSpace(q.projection))
	}
	return out, err
}

func (q *Query[T]) decode(doc map[string]any, out *T) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: q.tagName,
		Result:  out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("decode %s document: %w", q.coll.Name(), err)
	}
	return nil
}

// plain converts a gedb document, and the documents nested in it, back into
// ordinary maps.
func plain(doc domain.Document) map[string]any {
	out := make(map[string]any, doc.Len())
	for k, v := range doc.Iter() {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case domain.Document:
		return plain(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	}
	return v
}
