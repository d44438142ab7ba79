package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"docchat/internal/model"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileRead            = errors.New("file read failure")
	ErrDocumentBusy        = errors.New("document is already being processed")
)

// Kind selects the loader for a document.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
)

// ResolveKind maps a declared content type and file name to a Kind. It never
// touches the file itself.
func ResolveKind(docType, name string) (Kind, error) {
	t := strings.ToLower(strings.TrimSpace(docType))
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case strings.Contains(t, "pdf") || ext == ".pdf":
		return KindPDF, nil
	case strings.HasPrefix(t, "text/") || ext == ".txt" || ext == ".md":
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFileType, name, docType)
}

// SchemaFor lists the metadata attributes a query filter may reference.
func SchemaFor(kind Kind) []model.Attribute {
	attrs := []model.Attribute{{
		Name:        "source",
		Type:        model.AttributeString,
		Description: "The document the chunk is from",
	}}
	if kind == KindPDF {
		attrs = append(attrs, model.Attribute{
			Name:        "page",
			Type:        model.AttributeInteger,
			Description: "The page of the document the chunk is from",
		})
	}
	return attrs
}
