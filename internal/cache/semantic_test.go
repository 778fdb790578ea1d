package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/executor"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vector, ok := s.vectors[text]
	if !ok {
		return []float32{0, 1}, nil
	}
	return vector, nil
}

func resultWithRows(count int) executor.Result {
	return executor.Result{
		Columns:  []string{"name"},
		Rows:     [][]any{{"alice"}},
		RowCount: count,
	}
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	embedder := &stubEmbedder{}
	if _, err := New(nil, 10, 0.9, nil); err == nil {
		t.Fatal("expected error for nil embedder")
	}
	if _, err := New(embedder, 0, 0.9, nil); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := New(embedder, 10, 1.5, nil); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}

func TestLookupExactMatchSkipsEmbedding(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"list all students": {1, 0},
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "List all students", "SELECT * FROM students", resultWithRows(3), 2*time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	embedder.calls = 0
	hit, ok := c.Lookup(ctx, "  LIST ALL STUDENTS  ")
	if !ok {
		t.Fatal("expected exact hit for normalized question")
	}
	if hit.Match != MatchExact {
		t.Fatalf("match kind = %q, want %q", hit.Match, MatchExact)
	}
	if hit.Similarity != 1.0 {
		t.Fatalf("similarity = %v, want 1.0", hit.Similarity)
	}
	if hit.SQL != "SELECT * FROM students" {
		t.Fatalf("unexpected SQL %q", hit.SQL)
	}
	if embedder.calls != 0 {
		t.Fatalf("exact lookup embedded %d times, want 0", embedder.calls)
	}
}

func TestLookupSemanticMatchAboveThreshold(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"list all students": {1, 0},
		"show students":     {0.95, 0.3122499},
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "list all students", "SELECT * FROM students", resultWithRows(3), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	hit, ok := c.Lookup(ctx, "show students")
	if !ok {
		t.Fatal("expected semantic hit")
	}
	if hit.Match != MatchSemantic {
		t.Fatalf("match kind = %q, want %q", hit.Match, MatchSemantic)
	}
	if hit.Similarity < 0.9 || hit.Similarity > 1.0 {
		t.Fatalf("similarity = %v, want within [0.9, 1.0]", hit.Similarity)
	}
	if hit.SQL != "SELECT * FROM students" {
		t.Fatalf("unexpected SQL %q", hit.SQL)
	}
}

func TestLookupMissBelowThreshold(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"list all students":   {1, 0},
		"how many enrollments": {0.5, 0.8660254},
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "list all students", "SELECT * FROM students", resultWithRows(3), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, ok := c.Lookup(ctx, "how many enrollments"); ok {
		t.Fatal("expected miss for dissimilar question")
	}
}

func TestLookupThresholdBoundary(t *testing.T) {
	// cos([1,0],[3,4]) = 3/5, which rounds to the same float64 as the 0.6
	// threshold literal, so the similarity lands exactly on the boundary.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"stored question": {1, 0},
		"at threshold":    {3, 4},
		"below threshold": {1, 2},
	}}
	c, err := New(embedder, 10, 0.6, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "stored question", "SELECT 1", resultWithRows(1), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, ok := c.Lookup(ctx, "at threshold"); !ok {
		t.Fatal("similarity exactly at the threshold must hit")
	}
	if _, ok := c.Lookup(ctx, "below threshold"); ok {
		t.Fatal("similarity strictly below the threshold must miss")
	}
}

func TestLookupEmbeddingFailureIsMiss(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"list all students": {1, 0},
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "list all students", "SELECT * FROM students", resultWithRows(3), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	embedder.err = errors.New("embedder down")
	if _, ok := c.Lookup(ctx, "show students"); ok {
		t.Fatal("expected miss when embedding fails")
	}
	stats := c.Stats()
	if stats.Misses != 1 {
		t.Fatalf("misses = %d, want 1", stats.Misses)
	}
}

func TestStoreEmbeddingFailureReturnsError(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("embedder down")}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Store(context.Background(), "list all students", "SELECT 1", resultWithRows(1), time.Second); err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if c.Stats().Size != 0 {
		t.Fatal("failed store must not add an entry")
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"question one":   {1, 0},
		"question two":   {0, 1},
		"question three": {0.7071068, 0.7071068},
	}}
	c, err := New(embedder, 2, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	for _, q := range []string{"question one", "question two"} {
		if err := c.Store(ctx, q, "SELECT 1", resultWithRows(1), time.Second); err != nil {
			t.Fatalf("Store(%q): %v", q, err)
		}
	}

	// Touch question one so question two becomes the eviction candidate.
	if _, ok := c.Lookup(ctx, "question one"); !ok {
		t.Fatal("expected exact hit for question one")
	}

	if err := c.Store(ctx, "question three", "SELECT 3", resultWithRows(1), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, ok := c.Lookup(ctx, "question two"); ok {
		t.Fatal("question two should have been evicted")
	}
	if _, ok := c.Lookup(ctx, "question one"); !ok {
		t.Fatal("question one should have survived eviction")
	}
	if size := c.Stats().Size; size != 2 {
		t.Fatalf("size = %d, want 2", size)
	}
}

func TestLookupTieBreaksToMostRecentlyUsed(t *testing.T) {
	shared := []float32{1, 0}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"first question":  shared,
		"second question": shared,
		"first question?": shared,
		"query text":      shared,
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "first question", "SELECT 'first'", resultWithRows(1), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(ctx, "second question", "SELECT 'second'", resultWithRows(1), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	hit, ok := c.Lookup(ctx, "query text")
	if !ok {
		t.Fatal("expected semantic hit")
	}
	if hit.SQL != "SELECT 'second'" {
		t.Fatalf("tie should favor most recently stored, got %q", hit.SQL)
	}

	// Refresh recency of the first entry, then the same tie resolves to it.
	if _, ok := c.Lookup(ctx, "first question"); !ok {
		t.Fatal("expected exact hit for first question")
	}
	hit, ok = c.Lookup(ctx, "query text")
	if !ok {
		t.Fatal("expected semantic hit")
	}
	if hit.SQL != "SELECT 'first'" {
		t.Fatalf("tie should favor most recently used, got %q", hit.SQL)
	}
}

func TestStatsTrackHitsMissesAndTimeSaved(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"list all students": {1, 0},
		"unrelated thing":   {0, 1},
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "list all students", "SELECT 1", resultWithRows(1), 1500*time.Millisecond); err != nil {
		t.Fatalf("Store: %v", err)
	}

	c.Lookup(ctx, "list all students")
	c.Lookup(ctx, "list all students")
	c.Lookup(ctx, "unrelated thing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Fatalf("hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Fatalf("misses = %d, want 1", stats.Misses)
	}
	if want := 2.0 / 3.0; stats.HitRate < want-1e-9 || stats.HitRate > want+1e-9 {
		t.Fatalf("hit rate = %v, want %v", stats.HitRate, want)
	}
	if stats.TimeSavedSeconds != 3.0 {
		t.Fatalf("time saved = %v, want 3.0", stats.TimeSavedSeconds)
	}
	if stats.Capacity != 10 {
		t.Fatalf("capacity = %d, want 10", stats.Capacity)
	}
}

func TestStatsEmptyCacheHasZeroHitRate(t *testing.T) {
	c, err := New(&stubEmbedder{}, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stats := c.Stats()
	if stats.HitRate != 0 {
		t.Fatalf("hit rate = %v, want 0", stats.HitRate)
	}
	if stats.Size != 0 {
		t.Fatalf("size = %d, want 0", stats.Size)
	}
}

func TestClearRemovesEntriesKeepsCounters(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"list all students": {1, 0},
	}}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Store(ctx, "list all students", "SELECT 1", resultWithRows(1), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}
	c.Lookup(ctx, "list all students")

	c.Clear()

	stats := c.Stats()
	if stats.Size != 0 {
		t.Fatalf("size after clear = %d, want 0", stats.Size)
	}
	if stats.Hits != 1 {
		t.Fatalf("hits after clear = %d, want 1", stats.Hits)
	}
	if _, ok := c.Lookup(ctx, "list all students"); ok {
		t.Fatal("cleared cache must not return hits")
	}
}

func TestStoreRejectsBlankQuestion(t *testing.T) {
	c, err := New(&stubEmbedder{}, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Store(context.Background(), "   ", "SELECT 1", resultWithRows(1), time.Second); err == nil {
		t.Fatal("expected error for blank question")
	}
}

// gateEmbedder blocks embedding calls for one question until released,
// standing in for a slow embedding service.
type gateEmbedder struct {
	slowQuestion string
	entered      chan struct{}
	release      chan struct{}
}

func (g *gateEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == g.slowQuestion {
		g.entered <- struct{}{}
		<-g.release
	}
	return []float32{1, 0}, nil
}

func TestStatsAvailableWhileLookupEmbeds(t *testing.T) {
	embedder := &gateEmbedder{
		slowQuestion: "how many students enrolled",
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	c, err := New(embedder, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := c.Store(ctx, "list all students", "SELECT 1", resultWithRows(1), time.Second); err != nil {
		t.Fatalf("Store: %v", err)
	}

	lookupDone := make(chan struct{})
	go func() {
		defer close(lookupDone)
		c.Lookup(ctx, embedder.slowQuestion)
	}()
	<-embedder.entered

	statsDone := make(chan Stats, 1)
	go func() {
		statsDone <- c.Stats()
	}()
	select {
	case stats := <-statsDone:
		if stats.Size != 1 {
			t.Fatalf("size = %d, want 1", stats.Size)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stats blocked while a lookup was waiting on its embedding")
	}

	close(embedder.release)
	<-lookupDone
}

func TestLookupBlankQuestionCountsMiss(t *testing.T) {
	c, err := New(&stubEmbedder{}, 10, 0.9, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	const lookups = 8
	for range lookups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Lookup(ctx, "   "); ok {
				t.Error("blank question must miss")
			}
		}()
	}
	wg.Wait()

	if got := c.Stats().Misses; got != lookups {
		t.Fatalf("misses = %d, want %d", got, lookups)
	}
}
