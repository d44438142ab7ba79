package model

import (
	"encoding/json"

	"github.com/pgvector/pgvector-go"
)

// IndexChunk is one row of a file-backed per-document index.
// Embedding is stored as JSON array of float32 for portability.
type IndexChunk struct {
	ID        uint   `gorm:"primaryKey"`
	Position  int    `gorm:"not null;index"`
	Content   string `gorm:"type:text;not null"`
	Source    string `gorm:"size:255;not null"`
	Page      int    `gorm:"not null;default:0"`
	Embedding string `gorm:"type:text;not null"`
}

// IndexMeta records how an index was built.
type IndexMeta struct {
	ID         uint   `gorm:"primaryKey"`
	Locator    string `gorm:"size:255;not null"`
	Dimensions int    `gorm:"not null"`
	ChunkCount int    `gorm:"not null"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *IndexChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(c.Embedding), &v); err != nil {
		return nil
	}
	return v
}

func (c *IndexChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}

func (c *IndexChunk) Chunk() Chunk {
	return Chunk{Position: c.Position, Text: c.Content, Source: c.Source, Page: c.Page}
}

// VectorChunk is the pgvector-backed variant; all documents share one table keyed by locator.
type VectorChunk struct {
	ID        uint            `gorm:"primaryKey"`
	Locator   string          `gorm:"size:255;not null;index"`
	Position  int             `gorm:"not null"`
	Content   string          `gorm:"type:text;not null"`
	Source    string          `gorm:"size:255;not null"`
	Page      *int            `gorm:"index"`
	Embedding pgvector.Vector `gorm:"type:vector"`
}

func (c *VectorChunk) Chunk() Chunk {
	out := Chunk{Position: c.Position, Text: c.Content, Source: c.Source}
	if c.Page != nil {
		out.Page = *c.Page
	}
	return out
}
