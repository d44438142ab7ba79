package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"docchat/internal/ai"
	"docchat/internal/lock"
	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/vectorindex"
)

// Registry is the part of the document registry the indexer writes to.
type Registry interface {
	MarkProcessed(documentID uint, locator string) error
}

// FileOpener reads stored upload bytes by storage key.
type FileOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type IndexerDeps struct {
	Registry  Registry
	Files     FileOpener
	Store     vectorindex.Store
	Embedder  ai.Embedder
	Locker    lock.Locker
	Splitter  Splitter
	IndexRoot string
	Logger    *logger.Logger
}

// Indexer turns a registered document into a searchable index.
type Indexer struct {
	registry  Registry
	files     FileOpener
	store     vectorindex.Store
	embedder  ai.Embedder
	locker    lock.Locker
	splitter  Splitter
	indexRoot string
	log       *logger.Logger
}

type Result struct {
	DocumentID uint   `json:"document_id"`
	Locator    string `json:"vector_store_id"`
	ChunkCount int    `json:"chunk_count"`
}

func NewIndexer(deps IndexerDeps) *Indexer {
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Splitter.ChunkSize == 0 {
		deps.Splitter = NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Indexer{
		registry:  deps.Registry,
		files:     deps.Files,
		store:     deps.Store,
		embedder:  deps.Embedder,
		locker:    deps.Locker,
		splitter:  deps.Splitter,
		indexRoot: deps.IndexRoot,
		log:       deps.Logger,
	}
}

// Process loads, splits, embeds and indexes doc, then marks it processed.
// Running it again rebuilds the index at the same locator. The registry is only
// touched after the index is fully written.
func (ix *Indexer) Process(ctx context.Context, doc *model.Document) (*Result, error) {
	kind, err := ResolveKind(doc.Type, doc.Name)
	if err != nil {
		return nil, err
	}

	unlock, err := ix.locker.TryLock(ctx, fmt.Sprintf("document:%d", doc.ID))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDocumentBusy, doc.Name, err)
		}
		return nil, fmt.Errorf("acquire document lock failed: %w", err)
	}
	defer unlock()

	started := time.Now()
	path := doc.FilePath
	loader, err := NewLoader(kind, doc.Name, func(ctx context.Context) (io.ReadCloser, error) {
		return ix.files.Open(ctx, path)
	}, ix.splitter)
	if err != nil {
		return nil, err
	}

	records, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	chunks := loader.Split(records)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s has no extractable text", vectorindex.ErrIndexBuild, doc.Name)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	locator := vectorindex.Locator(ix.indexRoot, doc.UserID, doc.ID)
	if err := ix.store.Build(ctx, locator, chunks, vectors); err != nil {
		return nil, err
	}
	if err := ix.registry.MarkProcessed(doc.ID, locator); err != nil {
		return nil, err
	}
	doc.Processed = true
	doc.VectorStoreID = &locator

	ix.log.Info("document indexed",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"kind", string(kind),
		"chunks", len(chunks),
		"embedding_model", ix.embedder.Model(),
		"elapsed", time.Since(started).String(),
	)
	return &Result{DocumentID: doc.ID, Locator: locator, ChunkCount: len(chunks)}, nil
}
