package schema

import (
	"context"
	"sync"
)

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Catalog lists the queryable tables and their columns.
type Catalog interface {
	Tables(ctx context.Context) ([]Table, error)
}

// Cached wraps a catalog so the underlying listing is fetched once and reused
// for the process lifetime. A failed load is not memoized, so startup races
// against a slow database resolve on a later call.
func Cached(inner Catalog) Catalog {
	return &cachedCatalog{inner: inner}
}

type cachedCatalog struct {
	inner  Catalog
	mu     sync.Mutex
	loaded bool
	tables []Table
}

func (c *cachedCatalog) Tables(ctx context.Context) ([]Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.tables, nil
	}
	tables, err := c.inner.Tables(ctx)
	if err != nil {
		return nil, err
	}
	c.tables = tables
	c.loaded = true
	return c.tables, nil
}
