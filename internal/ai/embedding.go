package ai

import (
	"context"
	"fmt"
)

const defaultEmbeddingBatchSize = 10 // DashScope and similar APIs often limit batch size

// OpenAIEmbedder splits requests into provider-sized batches.
type OpenAIEmbedder struct {
	client    *OpenAICompatibleClient
	batchSize int
}

func NewOpenAIEmbedder(cfg Config, batchSize int) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	return &OpenAIEmbedder{
		client:    NewOpenAICompatibleClient(cfg),
		batchSize: batchSize,
	}
}

func (e *OpenAIEmbedder) Model() string {
	return e.client.Model()
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.client.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, capabilityError("embedding", err)
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(texts) {
		return nil, capabilityError("embedding", fmt.Errorf("got %d vectors for %d texts", len(embeddings), len(texts)))
	}
	return embeddings, nil
}
