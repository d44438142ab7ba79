package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"docchat/internal/model"
)

var (
	ErrIndexBuild = errors.New("index build failure")
	ErrIndexLoad  = errors.New("index load failure")
)

// Store persists one index per locator.
type Store interface {
	// Build replaces any previous index at locator, including partial leftovers.
	Build(ctx context.Context, locator string, chunks []model.Chunk, vectors [][]float32) error
	Open(ctx context.Context, locator string) (Index, error)
}

type Index interface {
	Search(ctx context.Context, vector []float32, filter *Filter, k int) ([]Match, error)
	Close() error
}

type Match struct {
	Chunk model.Chunk `json:"chunk"`
	Score float32     `json:"score"`
}

// Locator is the per-document index location derived from its owner and id.
func Locator(root string, userID, documentID uint) string {
	return filepath.ToSlash(filepath.Join(root, fmt.Sprintf("user_%d", userID), fmt.Sprintf("doc_%d", documentID)))
}

func validateBuildInput(chunks []model.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: no chunks to index", ErrIndexBuild)
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks but %d vectors", ErrIndexBuild, len(chunks), len(vectors))
	}
	dims := len(vectors[0])
	if dims == 0 {
		return 0, fmt.Errorf("%w: empty vectors", ErrIndexBuild)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrIndexBuild, i, len(v), dims)
		}
	}
	return dims, nil
}
