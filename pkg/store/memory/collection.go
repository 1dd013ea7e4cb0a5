// Package memory is an in-process document store implementing
// querybuilder.PendingQuery on top of the gedb matcher, comparer and
// projector. It understands the subset of the MongoDB query language the
// builder produces plus the common comparison operators.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vinicius-lino-figueiredo/gedb/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedb/domain"
)

var (
	// ErrNegativeSkip mirrors the server rejecting a negative skip.
	ErrNegativeSkip = errors.New("skip value must be non-negative")
	// ErrMixedProjection is returned when a projection mixes inclusion and
	// exclusion of fields other than _id.
	ErrMixedProjection = errors.New("projection cannot mix inclusion and exclusion")
	// ErrUnsupportedOperator is returned for query operators the matcher does not know.
	ErrUnsupportedOperator = errors.New("unsupported query operator")
)

// Collection is a named set of documents safe for concurrent use.
type Collection struct {
	name string
	mu   sync.RWMutex
	docs []map[string]any
}

// NewCollection creates a collection holding docs.
func NewCollection(name string, docs ...map[string]any) *Collection {
	c := &Collection{name: name}
	c.Insert(docs...)
	return c
}

func (c *Collection) Name() string {
	return c.name
}

// Insert appends docs. Each document is copied one level deep.
func (c *Collection) Insert(docs ...map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range docs {
		c.docs = append(c.docs, copyDoc(d))
	}
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *Collection) snapshot() []map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]map[string]any, len(c.docs))
	copy(out, c.docs)
	return out
}

// documents converts a snapshot into gedb documents. Nested maps and slices
// are copied, so the result can be modified freely.
func (c *Collection) documents() ([]domain.Document, error) {
	snap := c.snapshot()
	out := make([]domain.Document, 0, len(snap))
	for _, d := range snap {
		doc, err := data.NewDocument(d)
		if err != nil {
			return nil, fmt.Errorf("convert %s document: %w", c.name, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func copyDoc(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
