package model

import "time"

// ProcessDocumentJob asks a worker to index one registered document.
type ProcessDocumentJob struct {
	UserID     uint      `json:"user_id"`
	DocumentID uint      `json:"document_id"`
	QueuedAt   time.Time `json:"queued_at"`
}

// DocumentProcessedEvent announces a finished index build.
type DocumentProcessedEvent struct {
	UserID        uint      `json:"user_id"`
	DocumentID    uint      `json:"document_id"`
	DocumentName  string    `json:"document_name"`
	VectorStoreID string    `json:"vector_store_id"`
	ChunkCount    int       `json:"chunk_count"`
	ProcessedAt   time.Time `json:"processed_at"`
}
