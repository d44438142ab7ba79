package retrieval

import (
	"context"
	"fmt"

	"docchat/internal/ai"
	"docchat/internal/ingest"
	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/vectorindex"
)

// Retriever answers questions against the index of a single document.
type Retriever struct {
	doc        model.Document
	kind       ingest.Kind
	index      vectorindex.Index
	translator QueryTranslator
	embedder   ai.Embedder
	k          int
	log        *logger.Logger
}

type Result struct {
	DocumentID   uint        `json:"document_id"`
	DocumentName string      `json:"document_name"`
	Chunk        model.Chunk `json:"chunk"`
	Score        float32     `json:"score"`
}

func (r *Retriever) Document() model.Document {
	return r.doc
}

func (r *Retriever) Close() error {
	return r.index.Close()
}

func (r *Retriever) retrieve(ctx context.Context, question string, memo *queryMemo) ([]Result, error) {
	sq, err := memo.translate(ctx, r.translator, question, r.kind)
	if err != nil {
		return nil, err
	}
	vector, err := memo.embed(ctx, r.embedder, sq.Query)
	if err != nil {
		return nil, err
	}
	matches, err := r.index.Search(ctx, vector, sq.Filter, r.k)
	if err != nil {
		return nil, fmt.Errorf("search %s failed: %w", r.doc.Name, err)
	}
	r.log.Debug("document searched",
		"document_id", r.doc.ID,
		"query", sq.Query,
		"filter", sq.Filter.String(),
		"matches", len(matches),
	)

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			DocumentID:   r.doc.ID,
			DocumentName: r.doc.Name,
			Chunk:        m.Chunk,
			Score:        m.Score,
		})
	}
	return results, nil
}

// queryMemo shares translation and embedding work between the retrievers of one
// search. Documents of the same kind share a schema and therefore a translation.
type queryMemo struct {
	translations map[ingest.Kind]*StructuredQuery
	vectors      map[string][]float32
}

func newQueryMemo() *queryMemo {
	return &queryMemo{
		translations: make(map[ingest.Kind]*StructuredQuery),
		vectors:      make(map[string][]float32),
	}
}

func (m *queryMemo) translate(ctx context.Context, t QueryTranslator, question string, kind ingest.Kind) (*StructuredQuery, error) {
	if sq, ok := m.translations[kind]; ok {
		return sq, nil
	}
	sq, err := t.Translate(ctx, question, ingest.SchemaFor(kind))
	if err != nil {
		return nil, err
	}
	m.translations[kind] = sq
	return sq, nil
}

func (m *queryMemo) embed(ctx context.Context, e ai.Embedder, query string) ([]float32, error) {
	if v, ok := m.vectors[query]; ok {
		return v, nil
	}
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query failed: %w: got %d vectors", ai.ErrExternalCapability, len(vectors))
	}
	m.vectors[query] = vectors[0]
	return vectors[0], nil
}
