package schema

import (
	"context"
	"errors"
	"testing"
)

type countingCatalog struct {
	calls  int
	tables []Table
	err    error
}

func (c *countingCatalog) Tables(context.Context) ([]Table, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.tables, nil
}

func TestCachedLoadsOnce(t *testing.T) {
	inner := &countingCatalog{tables: []Table{{Name: "students"}}}
	catalog := Cached(inner)

	for i := 0; i < 3; i++ {
		tables, err := catalog.Tables(context.Background())
		if err != nil {
			t.Fatalf("Tables() error = %v", err)
		}
		if len(tables) != 1 || tables[0].Name != "students" {
			t.Fatalf("tables = %+v", tables)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCachedDoesNotMemoizeFailure(t *testing.T) {
	inner := &countingCatalog{err: errors.New("db down")}
	catalog := Cached(inner)

	if _, err := catalog.Tables(context.Background()); err == nil {
		t.Fatal("Tables() expected error")
	}

	inner.err = nil
	inner.tables = []Table{{Name: "courses"}}
	tables, err := catalog.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables() error after recovery = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("tables = %+v", tables)
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls = %d, want 2", inner.calls)
	}
}
