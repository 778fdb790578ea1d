// Package cache implements the semantic question cache: answered questions
// are stored with an embedding of their normalized text, and a new question
// hits when its embedding is close enough to a stored one, even if the
// wording differs ("show students" vs "list all students").
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/askdb/askdb/internal/embed"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/observability"
)

const (
	MatchExact    = "exact"
	MatchSemantic = "semantic"
)

type Entry struct {
	Question   string
	Embedding  []float32
	SQL        string
	Results    executor.Result
	Cost       time.Duration
	CreatedAt  time.Time
	LastAccess time.Time
}

type Hit struct {
	SQL        string
	Results    executor.Result
	Similarity float64
	Match      string
}

type Stats struct {
	Size             int     `json:"size"`
	Capacity         int     `json:"capacity"`
	Hits             uint64  `json:"hits"`
	Misses           uint64  `json:"misses"`
	HitRate          float64 `json:"hit_rate"`
	TimeSavedSeconds float64 `json:"time_saved_seconds"`
}

// SemanticCache is the only mutable state shared between concurrent requests.
// Lookups refresh recency, so every cache operation holds the write lock; the
// linear scan over a few hundred entries is far cheaper than the generation
// call it avoids.
type SemanticCache struct {
	embedder  lookupEmbedder
	threshold float64
	capacity  int
	logger    *slog.Logger

	mu        sync.Mutex
	entries   *lru.Cache[string, *Entry]
	hits      uint64
	misses    uint64
	timeSaved time.Duration
}

type lookupEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

func New(embedder lookupEmbedder, capacity int, threshold float64, logger *slog.Logger) (*SemanticCache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive")
	}
	if threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [-1, 1]")
	}
	entries, err := lru.New[string, *Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru store: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SemanticCache{
		embedder:  embedder,
		threshold: threshold,
		capacity:  capacity,
		logger:    logger,
		entries:   entries,
	}, nil
}

// Lookup returns the stored answer for the question with the most similar
// embedding, provided the similarity clears the threshold. Exact normalized
// matches short-circuit the scan. An embedding failure is a miss, never an
// error: the pipeline falls through to fresh generation.
//
// The embedding call can be a network round trip, so it happens outside the
// lock. Only the exact-match check, the similarity scan and the counters hold
// the mutex.
func (c *SemanticCache) Lookup(ctx context.Context, question string) (Hit, bool) {
	normalized := normalizeQuestion(question)
	if normalized == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.miss()
	}

	c.mu.Lock()
	if entry, ok := c.entries.Get(normalized); ok {
		hit, matched := c.hit(entry, 1.0, MatchExact)
		c.mu.Unlock()
		return hit, matched
	}
	c.mu.Unlock()

	vector, err := c.embedder.Embed(ctx, normalized)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.DebugContext(ctx, "cache lookup embedding failed", slog.Any("error", err))
		return c.miss()
	}

	var (
		bestKey string
		bestSim = -2.0
	)
	// Keys run oldest to newest, so >= lets the more recently used entry win
	// a similarity tie.
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if sim := embed.Cosine(vector, entry.Embedding); sim >= bestSim {
			bestSim = sim
			bestKey = key
		}
	}
	if bestKey == "" || bestSim < c.threshold {
		return c.miss()
	}

	entry, ok := c.entries.Get(bestKey)
	if !ok {
		return c.miss()
	}
	return c.hit(entry, bestSim, MatchSemantic)
}

// Store inserts an answered question. At capacity the least recently used
// entry is evicted first; storing an identical normalized question refreshes
// the existing slot.
func (c *SemanticCache) Store(ctx context.Context, question, sqlText string, results executor.Result, cost time.Duration) error {
	normalized := normalizeQuestion(question)
	if normalized == "" {
		return fmt.Errorf("question is empty after normalization")
	}

	vector, err := c.embedder.Embed(ctx, normalized)
	if err != nil {
		return fmt.Errorf("embed question: %w", err)
	}

	now := time.Now()
	entry := &Entry{
		Question:   normalized,
		Embedding:  vector,
		SQL:        sqlText,
		Results:    results,
		Cost:       cost,
		CreatedAt:  now,
		LastAccess: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted := c.entries.Add(normalized, entry); evicted {
		observability.ObserveCacheEviction()
	}
	observability.SetCacheEntries(c.entries.Len())
	return nil
}

func (c *SemanticCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	observability.SetCacheEntries(0)
}

func (c *SemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Size:             c.entries.Len(),
		Capacity:         c.capacity,
		Hits:             c.hits,
		Misses:           c.misses,
		TimeSavedSeconds: c.timeSaved.Seconds(),
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *SemanticCache) hit(entry *Entry, similarity float64, match string) (Hit, bool) {
	entry.LastAccess = time.Now()
	c.hits++
	c.timeSaved += entry.Cost
	observability.ObserveCacheHit(match, entry.Cost)
	return Hit{
		SQL:        entry.SQL,
		Results:    entry.Results,
		Similarity: similarity,
		Match:      match,
	}, true
}

func (c *SemanticCache) miss() (Hit, bool) {
	c.misses++
	observability.ObserveCacheMiss()
	return Hit{}, false
}

func normalizeQuestion(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}
