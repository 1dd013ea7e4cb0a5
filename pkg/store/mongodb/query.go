package mongodb

import (
	"context"

	"github.com/nimburion/querykit/pkg/querybuilder"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the part of Adapter a Query needs.
type Store interface {
	FindAll(ctx context.Context, collection string, filter any, opts *options.FindOptions, results any) error
	CountDocuments(ctx context.Context, collection string, filter any) (int64, error)
}

// QueryOption configures a Query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	objectIDFields map[string]struct{}
	numberFields   map[string]struct{}
}

// WithObjectIDFields casts 24 character hex strings to ObjectIDs when they
// are compared against the named fields, so "?category=507f..." matches a
// document whose category is stored as an ObjectID.
func WithObjectIDFields(fields ...string) QueryOption {
	return func(c *queryConfig) {
		for _, f := range fields {
			c.objectIDFields[f] = struct{}{}
		}
	}
}

// WithNumberFields casts numeric strings to numbers when they are compared
// against the named fields, so "?price=25" matches a document whose price is
// stored as 25. The server never treats a string as equal to a number.
func WithNumberFields(fields ...string) QueryOption {
	return func(c *queryConfig) {
		for _, f := range fields {
			c.numberFields[f] = struct{}{}
		}
	}
}

// Query is a querybuilder.PendingQuery over a MongoDB collection.
// Refining methods return a new Query; the receiver is left unchanged.
type Query[T any] struct {
	store      Store
	collection string
	cfg        *queryConfig

	filter     querybuilder.Filter
	sort       string
	skip       *int64
	limit      *int64
	projection string
}

var _ querybuilder.PendingQuery[bson.M] = (*Query[bson.M])(nil)

// NewQuery creates a pending query over every document of collection.
func NewQuery[T any](store Store, collection string, opts ...QueryOption) *Query[T] {
	cfg := &queryConfig{
		objectIDFields: map[string]struct{}{},
		numberFields:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Query[T]{
		store:      store,
		collection: collection,
		cfg:        cfg,
		filter:     querybuilder.Filter{},
	}
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
	return q.store.CountDocuments(ctx, q.collection, q.toBSON(filter))
}

func (q *Query[T]) Exec(ctx context.Context) ([]T, error) {
	results := []T{}
	if err := q.store.FindAll(ctx, q.collection, q.BSONFilter(), q.FindOptions(), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// BSONFilter returns the accumulated filter as sent to the server.
func (q *Query[T]) BSONFilter() bson.M {
	return q.toBSON(q.filter)
}

// FindOptions returns the sort, skip, limit and projection as driver options.
func (q *Query[T]) FindOptions() *options.FindOptions {
	opts := options.Find()
	if sort := sortDocument(q.sort); len(sort) > 0 {
		opts.SetSort(sort)
	}
	if q.skip != nil {
		opts.SetSkip(*q.skip)
	}
	if q.limit != nil {
		opts.SetLimit(*q.limit)
	}
	if projection := projectionDocument(q.projection); len(projection) > 0 {
		opts.SetProjection(projection)
	}
	return opts
}

func sortDocument(spec string) bson.D {
	var doc bson.D
	for _, f := range querybuilder.ParseSort(spec) {
		dir := 1
		if f.Descending {
			dir = -1
		}
		doc = append(doc, bson.E{Key: f.Field, Value: dir})
	}
	return doc
}

func projectionDocument(spec string) bson.D {
	var doc bson.D
	for _, f := range querybuilder.ParseProjection(spec) {
		v := 0
		if f.Include {
			v = 1
		}
		doc = append(doc, bson.E{Key: f.Field, Value: v})
	}
	return doc
}

func (q *Query[T]) toBSON(filter querybuilder.Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		out[k] = q.convert(k, v)
	}
	return out
}

// convert turns nested filters into BSON and casts ObjectID and number
// fields. field is the document field the value is compared against, or an
// operator name.
func (q *Query[T]) convert(field string, v any) any {
	switch t := v.(type) {
	case querybuilder.Filter:
		return q.convertOperators(field, map[string]any(t))
	case map[string]any:
		return q.convertOperators(field, t)
	case []querybuilder.Filter:
		arr := make(bson.A, 0, len(t))
		for _, f := range t {
			arr = append(arr, q.toBSON(f))
		}
		return arr
	case []any:
		arr := make(bson.A, 0, len(t))
		for _, item := range t {
			arr = append(arr, q.convert(field, item))
		}
		return arr
	case []string:
		arr := make(bson.A, 0, len(t))
		for _, item := range t {
			arr = append(arr, q.convert(field, item))
		}
		return arr
	case string:
		if _, ok := q.cfg.objectIDFields[field]; ok {
			if oid, err := primitive.ObjectIDFromHex(t); err == nil {
				return oid
			}
		}
		if _, ok := q.cfg.numberFields[field]; ok {
			if n, ok := querybuilder.NumericValue(t); ok {
				return n
			}
		}
		return t
	default:
		return v
	}
}

// convertOperators handles {"$in": [...]} style values for field, and plain
// sub-filters such as the entries of $or.
func (q *Query[T]) convertOperators(field string, m map[string]any) bson.M {
	out := bson.M{}
	for k, v := range m {
		switch k {
		case "$eq", "$ne", "$in", "$nin", "$gt", "$gte", "$lt", "$lte":
			out[k] = q.convert(field, v)
		case "$regex", "$options":
			out[k] = v
		default:
			out[k] = q.convert(k, v)
		}
	}
	return out
}
