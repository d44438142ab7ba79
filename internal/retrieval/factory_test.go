package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/vectorindex"
)

type fakeLister struct {
	docs []model.Document
}

func (l *fakeLister) ListByUserID(userID uint, processedOnly bool) ([]model.Document, error) {
	var out []model.Document
	for _, d := range l.docs {
		if d.UserID != userID || (processedOnly && !d.Processed) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type fakeIndex struct {
	matches []vectorindex.Match
	err     error
	closed  bool
}

func (i *fakeIndex) Search(_ context.Context, _ []float32, filter *vectorindex.Filter, k int) ([]vectorindex.Match, error) {
	if i.err != nil {
		return nil, i.err
	}
	var out []vectorindex.Match
	for _, m := range i.matches {
		if filter.Match(m.Chunk.Attributes()) {
			out = append(out, m)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (i *fakeIndex) Close() error {
	i.closed = true
	return nil
}

type fakeStore struct {
	indexes map[string]*fakeIndex
	opened  []string
}

func (s *fakeStore) Build(context.Context, string, []model.Chunk, [][]float32) error {
	return nil
}

func (s *fakeStore) Open(_ context.Context, locator string) (vectorindex.Index, error) {
	s.opened = append(s.opened, locator)
	idx, ok := s.indexes[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing", vectorindex.ErrIndexLoad, locator)
	}
	return idx, nil
}

type countingEmbedder struct {
	ai.Embedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	return e.Embedder.Embed(ctx, texts)
}

type countingTranslator struct {
	calls int
	err   error
}

func (t *countingTranslator) Translate(_ context.Context, q string, _ []model.Attribute) (*StructuredQuery, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return &StructuredQuery{Query: q}, nil
}

func processedDoc(id uint, name, docType string) model.Document {
	locator := vectorindex.Locator("vs", 1, id)
	return model.Document{ID: id, UserID: 1, Name: name, Type: docType, Processed: true, VectorStoreID: &locator}
}

func matchesFor(name string, n int) []vectorindex.Match {
	out := make([]vectorindex.Match, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, vectorindex.Match{
			Chunk: model.Chunk{Position: i, Text: fmt.Sprintf("%s chunk %d", name, i), Source: name},
			Score: 1 - float32(i)/10,
		})
	}
	return out
}

func newTestFactory(docs []model.Document, store *fakeStore, tr QueryTranslator) (*Factory, *countingEmbedder) {
	emb := &countingEmbedder{Embedder: ai.NewHashEmbedder(16)}
	return NewFactory(FactoryDeps{
		Documents:  &fakeLister{docs: docs},
		Store:      store,
		Embedder:   emb,
		Translator: tr,
	}), emb
}

func TestSearchNoProcessedDocuments(t *testing.T) {
	pending := model.Document{ID: 1, UserID: 1, Name: "a.txt", Type: "text/plain"}
	f, _ := newTestFactory([]model.Document{pending}, &fakeStore{}, nil)

	ans, err := f.Search(context.Background(), 1, "anything?")
	require.NoError(t, err)
	assert.Equal(t, StatusNoDocuments, ans.Status)
	assert.Equal(t, "no documents processed", ans.Text())
	assert.Empty(t, ans.Results)
}

func TestSearchOpensOneRetrieverPerProcessedDocument(t *testing.T) {
	a := processedDoc(1, "a.txt", "text/plain")
	b := processedDoc(2, "b.pdf", "application/pdf")
	pending := model.Document{ID: 3, UserID: 1, Name: "c.txt", Type: "text/plain"}
	store := &fakeStore{indexes: map[string]*fakeIndex{
		*a.VectorStoreID: {matches: matchesFor("a.txt", 4)},
		*b.VectorStoreID: {matches: matchesFor("b.pdf", 4)},
	}}
	f, _ := newTestFactory([]model.Document{a, b, pending}, store, nil)

	ans, err := f.Search(context.Background(), 1, "question")
	require.NoError(t, err)

	assert.Len(t, store.opened, 2)
	assert.Equal(t, StatusAnswered, ans.Status)
	require.Len(t, ans.Results, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, uint(1), ans.Results[i].DocumentID)
	}
	assert.Equal(t, "b.pdf chunk 0", ans.Results[4].Chunk.Text)
	assert.Contains(t, ans.Text(), "a.txt chunk 0\n\na.txt chunk 1")
	for _, idx := range store.indexes {
		assert.True(t, idx.closed)
	}
}

func TestSearchSkipsUnloadableIndex(t *testing.T) {
	broken := processedDoc(1, "broken.txt", "text/plain")
	good := processedDoc(2, "good.txt", "text/plain")
	store := &fakeStore{indexes: map[string]*fakeIndex{
		*good.VectorStoreID: {matches: matchesFor("good.txt", 2)},
	}}
	f, _ := newTestFactory([]model.Document{broken, good}, store, nil)

	ans, err := f.Search(context.Background(), 1, "question")
	require.NoError(t, err)

	assert.Equal(t, StatusAnswered, ans.Status)
	assert.Len(t, ans.Results, 2)
	require.Len(t, ans.Warnings, 1)
	assert.Equal(t, uint(1), ans.Warnings[0].DocumentID)
	assert.Equal(t, "broken.txt", ans.Warnings[0].DocumentName)
}

func TestSearchNoRelevantInformation(t *testing.T) {
	doc := processedDoc(1, "empty.txt", "text/plain")
	store := &fakeStore{indexes: map[string]*fakeIndex{*doc.VectorStoreID: {}}}
	f, _ := newTestFactory([]model.Document{doc}, store, nil)

	ans, err := f.Search(context.Background(), 1, "question")
	require.NoError(t, err)
	assert.Equal(t, StatusNoRelevant, ans.Status)
	assert.Equal(t, "no relevant information", ans.Text())
}

func TestSearchAllRetrieversFailWithCapabilityError(t *testing.T) {
	a := processedDoc(1, "a.txt", "text/plain")
	b := processedDoc(2, "b.pdf", "application/pdf")
	store := &fakeStore{indexes: map[string]*fakeIndex{
		*a.VectorStoreID: {matches: matchesFor("a.txt", 1)},
		*b.VectorStoreID: {matches: matchesFor("b.pdf", 1)},
	}}
	tr := &countingTranslator{err: fmt.Errorf("query translation failed: %w", ai.ErrExternalCapability)}
	f, _ := newTestFactory([]model.Document{a, b}, store, tr)

	_, err := f.Search(context.Background(), 1, "question")
	assert.ErrorIs(t, err, ai.ErrExternalCapability)
}

func TestSearchSharesTranslationAndEmbedding(t *testing.T) {
	a := processedDoc(1, "a.txt", "text/plain")
	b := processedDoc(2, "b.txt", "text/plain")
	c := processedDoc(3, "c.pdf", "application/pdf")
	store := &fakeStore{indexes: map[string]*fakeIndex{
		*a.VectorStoreID: {matches: matchesFor("a.txt", 1)},
		*b.VectorStoreID: {matches: matchesFor("b.txt", 1)},
		*c.VectorStoreID: {matches: matchesFor("c.pdf", 1)},
	}}
	tr := &countingTranslator{}
	f, emb := newTestFactory([]model.Document{a, b, c}, store, tr)

	ans, err := f.Search(context.Background(), 1, "question")
	require.NoError(t, err)

	assert.Len(t, ans.Results, 3)
	assert.Equal(t, 2, tr.calls)
	assert.Equal(t, 1, emb.calls)
}

func TestForDocumentRejectsUnprocessed(t *testing.T) {
	f, _ := newTestFactory(nil, &fakeStore{}, nil)
	_, err := f.ForDocument(context.Background(), model.Document{ID: 1, Name: "a.txt", Type: "text/plain"})
	assert.ErrorIs(t, err, vectorindex.ErrIndexLoad)
}

// pdfFailingTranslator fails only for schemas that carry a page attribute.
type pdfFailingTranslator struct{}

func (pdfFailingTranslator) Translate(_ context.Context, q string, schema []model.Attribute) (*StructuredQuery, error) {
	for _, a := range schema {
		if a.Name == "page" {
			return nil, fmt.Errorf("query translation failed: %w", ai.ErrExternalCapability)
		}
	}
	return &StructuredQuery{Query: q}, nil
}

func TestSearchMixedFailuresDegrade(t *testing.T) {
	a := processedDoc(1, "a.txt", "text/plain")
	b := processedDoc(2, "b.pdf", "application/pdf")
	store := &fakeStore{indexes: map[string]*fakeIndex{
		*a.VectorStoreID: {err: errors.New("disk gone")},
		*b.VectorStoreID: {matches: matchesFor("b.pdf", 1)},
	}}
	f, _ := newTestFactory([]model.Document{a, b}, store, pdfFailingTranslator{})

	ans, err := f.Search(context.Background(), 1, "question")
	require.NoError(t, err)
	assert.Equal(t, StatusNoRelevant, ans.Status)
	require.Len(t, ans.Warnings, 2)
	assert.Equal(t, uint(1), ans.Warnings[0].DocumentID)
	assert.Contains(t, ans.Warnings[0].Reason, "disk gone")
	assert.Equal(t, uint(2), ans.Warnings[1].DocumentID)
}

func TestSearchLogsTranslatedFilter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	doc := processedDoc(1, "guide.pdf", "application/pdf")
	store := &fakeStore{indexes: map[string]*fakeIndex{*doc.VectorStoreID: {matches: matchesFor("guide.pdf", 2)}}}
	filter, err := vectorindex.ParseFilter(map[string]any{"source": "guide.pdf"}, []model.Attribute{
		{Name: "source", Type: model.AttributeString},
		{Name: "page", Type: model.AttributeInteger},
	})
	require.NoError(t, err)

	f := NewFactory(FactoryDeps{
		Documents:  &fakeLister{docs: []model.Document{doc}},
		Store:      store,
		Embedder:   ai.NewHashEmbedder(16),
		Translator: fixedTranslator{sq: &StructuredQuery{Query: "setup", Filter: filter}},
		Logger:     log,
	})

	ans, err := f.Search(context.Background(), 1, "how do I set it up?")
	require.NoError(t, err)
	assert.Len(t, ans.Results, 2)

	entries := logs.FilterMessage("document searched").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, filter.String(), fields["filter"])
	assert.Equal(t, "setup", fields["query"])
	assert.EqualValues(t, 2, fields["matches"])
}

type fixedTranslator struct {
	sq *StructuredQuery
}

func (t fixedTranslator) Translate(context.Context, string, []model.Attribute) (*StructuredQuery, error) {
	return t.sq, nil
}
