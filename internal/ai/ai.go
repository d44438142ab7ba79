package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrExternalCapability marks failures of embedding or language-model calls.
var ErrExternalCapability = errors.New("external capability failure")

// Embedder maps texts to dense vectors. It must be deterministic for a given model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Completer answers a single system+user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

func capabilityError(op string, err error) error {
	return fmt.Errorf("%s failed: %w: %w", op, ErrExternalCapability, err)
}
