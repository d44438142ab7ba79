package ingest

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
)

// Record is one unit of extracted text. Page is 1-based, zero when the source has no pages.
type Record struct {
	Text string
	Page int
}

// Opener yields the raw bytes of a stored file.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// DocumentLoader extracts records from one document and splits them into chunks.
type DocumentLoader interface {
	Kind() Kind
	Load(ctx context.Context) ([]Record, error)
	Split(records []Record) []model.Chunk
	Schema() []model.Attribute
}

func NewLoader(kind Kind, source string, open Opener, splitter Splitter) (DocumentLoader, error) {
	base := baseLoader{source: source, open: open, splitter: splitter}
	switch kind {
	case KindPDF:
		return &PdfLoader{baseLoader: base, pages: pdfextract.ExtractPages}, nil
	case KindText:
		return &TextLoader{baseLoader: base}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, kind)
}

type baseLoader struct {
	source   string
	open     Opener
	splitter Splitter
}

func (b baseLoader) read(ctx context.Context) ([]byte, error) {
	rc, err := b.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrFileRead, b.source, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrFileRead, b.source, err)
	}
	return data, nil
}

// Split chunks every record and numbers the chunks across the whole document.
func (b baseLoader) Split(records []Record) []model.Chunk {
	var chunks []model.Chunk
	for _, r := range records {
		for _, text := range b.splitter.SplitText(r.Text) {
			chunks = append(chunks, model.Chunk{
				Position: len(chunks),
				Text:     text,
				Source:   b.source,
				Page:     r.Page,
			})
		}
	}
	return chunks
}

type PdfLoader struct {
	baseLoader
	pages func(data []byte) ([]string, error)
}

func (l *PdfLoader) Kind() Kind { return KindPDF }

func (l *PdfLoader) Schema() []model.Attribute { return SchemaFor(KindPDF) }

func (l *PdfLoader) Load(ctx context.Context) ([]Record, error) {
	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := l.pages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse pdf %s: %w", ErrFileRead, l.source, err)
	}
	records := make([]Record, 0, len(pages))
	for i, text := range pages {
		records = append(records, Record{Text: text, Page: i + 1})
	}
	return records, nil
}

type TextLoader struct {
	baseLoader
}

func (l *TextLoader) Kind() Kind { return KindText }

func (l *TextLoader) Schema() []model.Attribute { return SchemaFor(KindText) }

func (l *TextLoader) Load(ctx context.Context) ([]Record, error) {
	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrFileRead, l.source)
	}
	return []Record{{Text: string(data)}}, nil
}
