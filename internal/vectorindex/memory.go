package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docchat/internal/model"
)

// memoryIndex ranks an in-memory snapshot of one document's chunks by cosine similarity.
type memoryIndex struct {
	chunks  []model.Chunk
	vectors [][]float32
	dims    int
}

func newMemoryIndex(chunks []model.Chunk, vectors [][]float32) *memoryIndex {
	idx := &memoryIndex{chunks: chunks, vectors: vectors}
	if len(vectors) > 0 {
		idx.dims = len(vectors[0])
	}
	return idx
}

func (m *memoryIndex) Search(ctx context.Context, vector []float32, filter *Filter, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(m.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != m.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrIndexLoad, len(vector), m.dims)
	}

	matches := make([]Match, 0, len(m.chunks))
	for i, c := range m.chunks {
		if !filter.Match(c.Attributes()) {
			continue
		}
		matches = append(matches, Match{Chunk: c, Score: cosineSimilarity(vector, m.vectors[i])})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *memoryIndex) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
