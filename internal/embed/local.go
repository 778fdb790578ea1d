package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic feature-hashing embedder: each token (and
// adjacent token pair) is hashed into a signed bucket of a fixed-width vector,
// which is then L2-normalized. It needs no external service and always
// produces the same vector for the same text, which keeps similarity
// comparisons reproducible across processes.
type LocalEmbedder struct {
	dimension int
}

func NewLocalEmbedder(dimension int) (*LocalEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	return &LocalEmbedder{dimension: dimension}, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens in input text")
	}

	vector := make([]float32, e.dimension)
	for i, token := range tokens {
		addFeature(vector, token)
		if i+1 < len(tokens) {
			addFeature(vector, token+" "+tokens[i+1])
		}
	}
	return normalize(vector), nil
}

func addFeature(vector []float32, feature string) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	bucket := int(sum % uint64(len(vector)))
	if (sum>>63)&1 == 1 {
		vector[bucket]--
	} else {
		vector[bucket]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
