// Package narrow selects the schema subset relevant to a question so the
// generation prompt carries a handful of tables instead of the whole catalog.
package narrow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/askdb/askdb/internal/embed"
	"github.com/askdb/askdb/internal/schema"
)

type questionEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Narrower ranks tables by embedding similarity against the question and
// keeps the top K above the relevance floor. Narrowing is an optimization,
// not a gate: when embeddings are unavailable or nothing clears the floor it
// falls open to the full catalog rather than starving the prompt.
type Narrower struct {
	catalog  schema.Catalog
	embedder questionEmbedder
	topK     int
	floor    float64
	logger   *slog.Logger

	mu       sync.Mutex
	prepared bool
	tables   []schema.Table
	vectors  [][]float32
}

func New(catalog schema.Catalog, embedder questionEmbedder, topK int, floor float64, logger *slog.Logger) (*Narrower, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top-k must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Narrower{
		catalog:  catalog,
		embedder: embedder,
		topK:     topK,
		floor:    floor,
		logger:   logger,
	}, nil
}

// RelevantTables returns the tables to include in the prompt, most relevant
// first. A catalog failure is fatal; an embedding failure returns the full
// catalog in listing order.
func (n *Narrower) RelevantTables(ctx context.Context, question string) ([]schema.Table, error) {
	tables, vectors, err := n.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, nil
	}

	queryVector, err := n.embedder.Embed(ctx, strings.ToLower(strings.TrimSpace(question)))
	if err != nil {
		n.logger.WarnContext(ctx, "question embedding failed, using full catalog",
			slog.Any("error", err))
		return tables, nil
	}

	type ranked struct {
		table      schema.Table
		similarity float64
	}
	scored := make([]ranked, 0, len(tables))
	for i, table := range tables {
		if vectors[i] == nil {
			continue
		}
		sim := embed.Cosine(queryVector, vectors[i])
		if sim < n.floor {
			continue
		}
		scored = append(scored, ranked{table: table, similarity: sim})
	}
	if len(scored) == 0 {
		return tables, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if len(scored) > n.topK {
		scored = scored[:n.topK]
	}

	selected := make([]schema.Table, len(scored))
	for i, r := range scored {
		selected[i] = r.table
	}
	return selected, nil
}

// prepare loads the catalog and embeds one description per table. A table
// whose description cannot be embedded is excluded from ranking but still
// served by the fail-open paths. Failures are not memoized.
func (n *Narrower) prepare(ctx context.Context) ([]schema.Table, [][]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.prepared {
		return n.tables, n.vectors, nil
	}

	tables, err := n.catalog.Tables(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}

	vectors := make([][]float32, len(tables))
	for i, table := range tables {
		vector, err := n.embedder.Embed(ctx, describeTable(table))
		if err != nil {
			n.logger.WarnContext(ctx, "table description embedding failed",
				slog.String("table", table.Name),
				slog.Any("error", err))
			continue
		}
		vectors[i] = vector
	}

	n.tables = tables
	n.vectors = vectors
	n.prepared = true
	return n.tables, n.vectors, nil
}

func describeTable(table schema.Table) string {
	var b strings.Builder
	b.WriteString("table ")
	b.WriteString(strings.ToLower(table.Name))
	b.WriteString(" columns")
	for _, col := range table.Columns {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(col.Name))
	}
	return b.String()
}

// SchemaText renders tables for the generation prompt, preserving the given
// order, with foreign-key hints inferred from *_id column naming.
func SchemaText(tables []schema.Table) string {
	var b strings.Builder
	for i, table := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Table: ")
		b.WriteString(table.Name)
		b.WriteString("\nColumns: ")
		for j, col := range table.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteString(" (")
			b.WriteString(col.DataType)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	hints := relationshipHints(tables)
	if len(hints) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, hint := range hints {
			b.WriteString("- ")
			b.WriteString(hint)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// relationshipHints matches columns like student_id against table names
// student, students, and studentes within the same selection.
func relationshipHints(tables []schema.Table) []string {
	names := make(map[string]string, len(tables))
	for _, table := range tables {
		names[strings.ToLower(table.Name)] = table.Name
	}

	var hints []string
	for _, table := range tables {
		for _, col := range table.Columns {
			lower := strings.ToLower(col.Name)
			if lower == "id" || !strings.HasSuffix(lower, "_id") {
				continue
			}
			base := strings.TrimSuffix(lower, "_id")
			for _, candidate := range []string{base, base + "s", base + "es"} {
				target, ok := names[candidate]
				if !ok || target == table.Name {
					continue
				}
				hints = append(hints, fmt.Sprintf("%s.%s -> %s.id", table.Name, col.Name, target))
				break
			}
		}
	}
	return hints
}
