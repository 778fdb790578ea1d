package executor

import (
	"context"
	"time"
)

type Result struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	Duration time.Duration `json:"-"`
}

// Executor runs a validated read query against the warehouse database.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}
