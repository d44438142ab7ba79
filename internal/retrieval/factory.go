package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docchat/internal/ai"
	"docchat/internal/ingest"
	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/vectorindex"
)

const (
	DefaultPerDocumentK = 4
	DefaultMaxResults   = 5

	MessageNoDocuments = "no documents processed"
	MessageNoRelevant  = "no relevant information"
)

type Status string

const (
	StatusAnswered    Status = "answered"
	StatusNoDocuments Status = "no_documents"
	StatusNoRelevant  Status = "no_relevant_information"
)

// DocumentLister is the part of the document registry the factory reads.
type DocumentLister interface {
	ListByUserID(userID uint, processedOnly bool) ([]model.Document, error)
}

type Warning struct {
	DocumentID   uint   `json:"document_id"`
	DocumentName string `json:"document_name"`
	Reason       string `json:"reason"`
}

// Answer is the merged outcome of searching every processed document of a user.
type Answer struct {
	Status   Status    `json:"status"`
	Results  []Result  `json:"results"`
	Warnings []Warning `json:"warnings"`
}

// Text renders the answer as assistant message content.
func (a *Answer) Text() string {
	switch a.Status {
	case StatusNoDocuments:
		return MessageNoDocuments
	case StatusNoRelevant:
		return MessageNoRelevant
	}
	parts := make([]string, 0, len(a.Results))
	for _, r := range a.Results {
		parts = append(parts, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

type FactoryDeps struct {
	Documents    DocumentLister
	Store        vectorindex.Store
	Embedder     ai.Embedder
	Translator   QueryTranslator
	PerDocumentK int
	MaxResults   int
	Logger       *logger.Logger
}

type Factory struct {
	docs       DocumentLister
	store      vectorindex.Store
	embedder   ai.Embedder
	translator QueryTranslator
	k          int
	maxResults int
	log        *logger.Logger
}

func NewFactory(deps FactoryDeps) *Factory {
	if deps.PerDocumentK <= 0 {
		deps.PerDocumentK = DefaultPerDocumentK
	}
	if deps.MaxResults <= 0 {
		deps.MaxResults = DefaultMaxResults
	}
	if deps.Translator == nil {
		deps.Translator = PassthroughTranslator{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Factory{
		docs:       deps.Documents,
		store:      deps.Store,
		embedder:   deps.Embedder,
		translator: deps.Translator,
		k:          deps.PerDocumentK,
		maxResults: deps.MaxResults,
		log:        deps.Logger,
	}
}

// ForDocument opens the index of one processed document.
func (f *Factory) ForDocument(ctx context.Context, doc model.Document) (*Retriever, error) {
	if !doc.Processed || doc.VectorStoreID == nil || *doc.VectorStoreID == "" {
		return nil, fmt.Errorf("%w: document %q has not been processed", vectorindex.ErrIndexLoad, doc.Name)
	}
	kind, err := ingest.ResolveKind(doc.Type, doc.Name)
	if err != nil {
		return nil, err
	}
	index, err := f.store.Open(ctx, *doc.VectorStoreID)
	if err != nil {
		return nil, err
	}
	return &Retriever{
		doc:        doc,
		kind:       kind,
		index:      index,
		translator: f.translator,
		embedder:   f.embedder,
		k:          f.k,
		log:        f.log,
	}, nil
}

// ForUser opens a retriever for every processed document of the user, in upload
// order. Documents whose index cannot be opened are reported as warnings.
func (f *Factory) ForUser(ctx context.Context, userID uint) ([]*Retriever, []Warning, error) {
	docs, err := f.docs.ListByUserID(userID, true)
	if err != nil {
		return nil, nil, err
	}

	var (
		retrievers []*Retriever
		warnings   []Warning
	)
	for _, doc := range docs {
		r, err := f.ForDocument(ctx, doc)
		if err != nil {
			f.log.Warn("skip document index", "user_id", userID, "document_id", doc.ID, "error", err)
			warnings = append(warnings, Warning{DocumentID: doc.ID, DocumentName: doc.Name, Reason: err.Error()})
			continue
		}
		retrievers = append(retrievers, r)
	}
	return retrievers, warnings, nil
}

// Search queries each processed document in turn and keeps the first MaxResults
// chunks in document order.
func (f *Factory) Search(ctx context.Context, userID uint, question string) (*Answer, error) {
	retrievers, warnings, err := f.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, r := range retrievers {
			_ = r.Close()
		}
	}()

	if len(retrievers) == 0 {
		return &Answer{Status: StatusNoDocuments, Warnings: warnings}, nil
	}

	memo := newQueryMemo()
	var (
		results          []Result
		capabilityFailed int
		capabilityErr    error
	)
	for _, r := range retrievers {
		doc := r.Document()
		found, err := r.retrieve(ctx, question, memo)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, ai.ErrExternalCapability) {
				capabilityFailed++
				if capabilityErr == nil {
					capabilityErr = err
				}
			}
			f.log.Warn("document retrieval failed", "user_id", userID, "document_id", doc.ID, "error", err)
			warnings = append(warnings, Warning{DocumentID: doc.ID, DocumentName: doc.Name, Reason: err.Error()})
			continue
		}
		results = append(results, found...)
	}

	// only a capability outage on every document is an error; anything less degrades
	if capabilityFailed == len(retrievers) {
		return nil, capabilityErr
	}
	if len(results) > f.maxResults {
		results = results[:f.maxResults]
	}
	if len(results) == 0 {
		return &Answer{Status: StatusNoRelevant, Warnings: warnings}, nil
	}
	return &Answer{Status: StatusAnswered, Results: results, Warnings: warnings}, nil
}
