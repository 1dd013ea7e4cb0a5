package querybuilder

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// Meta describes the page returned by Execute.
type Meta struct {
	Page      int   `json:"page" yaml:"page"`
	Limit     int   `json:"limit" yaml:"limit"`
	Total     int64 `json:"total" yaml:"total"`
	TotalPage int   `json:"totalPage" yaml:"totalPage"`
}

// Result is a page of documents with its pagination metadata.
type Result[T any] struct {
	Data []T `json:"data" yaml:"data"`
	Meta Meta `json:"meta" yaml:"meta"`
}

// Execute runs the refined query and the total count concurrently. Both are
// reads against the same conditions; the first error cancels the other.
func (b *Builder[T]) Execute(ctx context.Context) (*Result[T], error) {
	var (
		data  []T
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = b.query.Exec(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = b.CountTotal(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if data == nil {
		data = []T{}
	}
	return &Result[T]{Data: data, Meta: b.Meta(total)}, nil
}

// Meta computes pagination metadata for total matching documents. Without
// pagination the whole result set is reported as a single page.
func (b *Builder[T]) Meta(total int64) Meta {
	if !b.paginated {
		return Meta{Page: 1, Limit: int(total), Total: total, TotalPage: 1}
	}
	meta := Meta{Page: int(toInt64(b.page)), Limit: int(toInt64(b.limit)), Total: total}
	if b.limit > 0 {
		meta.TotalPage = int(math.Ceil(float64(total) / b.limit))
	}
	return meta
}
