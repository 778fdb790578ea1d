package embed

import (
	"context"
	"math"
	"testing"
)

func TestCosineIdenticalVectors(t *testing.T) {
	v := []float32{0.6, 0.8}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("Cosine() = %v, want 1.0", got)
	}
}

func TestCosineOrthogonalVectors(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("Cosine() = %v, want 0", got)
	}
}

func TestCosineOppositeVectors(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1.0) > 1e-9 {
		t.Fatalf("Cosine() = %v, want -1.0", got)
	}
}

func TestCosineMismatchedDimensions(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("Cosine() = %v, want 0 for mismatched dimensions", got)
	}
}

func TestCosineZeroVector(t *testing.T) {
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("Cosine() = %v, want 0 for zero vector", got)
	}
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	embedder, err := NewLocalEmbedder(64)
	if err != nil {
		t.Fatalf("NewLocalEmbedder() error = %v", err)
	}

	first, err := embedder.Embed(context.Background(), "show all students")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := embedder.Embed(context.Background(), "show all students")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(first) != 64 || len(second) != 64 {
		t.Fatalf("dimensions = %d, %d, want 64", len(first), len(second))
	}
	if got := Cosine(first, second); math.Abs(got-1.0) > 1e-6 {
		t.Fatalf("Cosine(same text) = %v, want 1.0", got)
	}
}

func TestLocalEmbedderIsNormalized(t *testing.T) {
	embedder, err := NewLocalEmbedder(128)
	if err != nil {
		t.Fatalf("NewLocalEmbedder() error = %v", err)
	}
	vector, err := embedder.Embed(context.Background(), "count enrollments by department")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-6 {
		t.Fatalf("vector norm = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestLocalEmbedderSimilarTextScoresHigherThanUnrelated(t *testing.T) {
	embedder, err := NewLocalEmbedder(256)
	if err != nil {
		t.Fatalf("NewLocalEmbedder() error = %v", err)
	}

	base, err := embedder.Embed(context.Background(), "show all students ordered by gpa")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	similar, err := embedder.Embed(context.Background(), "show me all students ordered by gpa")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	unrelated, err := embedder.Embed(context.Background(), "warden capacity of every hostel building")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if Cosine(base, similar) <= Cosine(base, unrelated) {
		t.Fatalf("similarity ordering wrong: similar=%v unrelated=%v",
			Cosine(base, similar), Cosine(base, unrelated))
	}
}

func TestLocalEmbedderRejectsEmptyInput(t *testing.T) {
	embedder, err := NewLocalEmbedder(64)
	if err != nil {
		t.Fatalf("NewLocalEmbedder() error = %v", err)
	}
	if _, err := embedder.Embed(context.Background(), "   !!! "); err == nil {
		t.Fatal("Embed() expected error for empty token stream")
	}
}

func TestNewLocalEmbedderRejectsBadDimension(t *testing.T) {
	if _, err := NewLocalEmbedder(0); err == nil {
		t.Fatal("NewLocalEmbedder(0) expected error")
	}
}
