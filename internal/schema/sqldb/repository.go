package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/schema"
)

// Repository loads table metadata from information_schema, which both
// supported drivers (pgx, duckdb) expose.
type Repository struct {
	db         *sql.DB
	schemaName string
}

func NewRepository(db *sql.DB, schemaName string) *Repository {
	if strings.TrimSpace(schemaName) == "" {
		schemaName = "public"
	}
	return &Repository{db: db, schemaName: schemaName}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (r *Repository) Tables(ctx context.Context) ([]schema.Table, error) {
	query := `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name ASC, ordinal_position ASC`

	rows, err := r.db.QueryContext(ctx, query, r.schemaName)
	if err != nil {
		return nil, fmt.Errorf("list schema columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]schema.Table, 0)
	byName := map[string]int{}
	for rows.Next() {
		var tableName, columnName, dataType string
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return nil, fmt.Errorf("scan schema column row: %w", err)
		}
		index, ok := byName[tableName]
		if !ok {
			index = len(tables)
			byName[tableName] = index
			tables = append(tables, schema.Table{Name: tableName})
		}
		tables[index].Columns = append(tables[index].Columns, schema.Column{
			Name:     columnName,
			DataType: dataType,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema column rows: %w", err)
	}
	return tables, nil
}
