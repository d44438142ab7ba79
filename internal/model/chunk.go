package model

// Attribute describes one filterable metadata field of indexed chunks.
type Attribute struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

const (
	AttributeString  = "string"
	AttributeInteger = "integer"
)

// Chunk is a span of document text plus its positional metadata.
// Page is 1-based and zero for sources without pages.
type Chunk struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
	Source   string `json:"source"`
	Page     int    `json:"page,omitempty"`
}

func (c Chunk) Attributes() map[string]any {
	attrs := map[string]any{"source": c.Source}
	if c.Page > 0 {
		attrs["page"] = c.Page
	}
	return attrs
}
