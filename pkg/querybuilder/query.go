package querybuilder

import "context"

// PendingQuery is a composable, not-yet-executed read over a single
// collection of documents of type T. Refining methods return the refined
// query; implementations may refine in place or return a copy.
type PendingQuery[T any] interface {
	// Find narrows the query; the filter is ANDed with prior conditions.
	Find(filter Filter) PendingQuery[T]
	// Sort sets the ordering from a space separated spec ("-price name").
	Sort(spec string) PendingQuery[T]
	Skip(n int64) PendingQuery[T]
	Limit(n int64) PendingQuery[T]
	// Select sets the projection from a space separated spec ("name -__v").
	Select(spec string) PendingQuery[T]
	// Conditions returns the filter accumulated so far.
	Conditions() Filter
	// CountDocuments counts the documents of the collection matching filter.
	CountDocuments(ctx context.Context, filter Filter) (int64, error)
	// Exec runs the query with its current filter, ordering, paging and projection.
	Exec(ctx context.Context) ([]T, error)
}
