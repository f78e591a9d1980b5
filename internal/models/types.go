// Package models defines the shared domain types used across the DocTalk
// service: knowledge bases, documents, chunks, and the error taxonomy
// surfaced by the API.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentStatus tracks a document through the ingestion lifecycle
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// KnowledgeBase groups documents that are searched together. Each knowledge
// base owns one vector collection.
type KnowledgeBase struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document holds the extracted text of an uploaded file plus ingestion state.
// Immutable once completed, except for deletion.
type Document struct {
	ID              string         `json:"id"`
	KnowledgeBaseID string         `json:"knowledge_base_id"`
	Filename        string         `json:"filename"`
	Text            string         `json:"text,omitempty"`
	Checksum        string         `json:"checksum"`
	Status          DocumentStatus `json:"status"`
	ChunkCount      int            `json:"chunk_count"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Chunk is a bounded contiguous span of a document's text, the unit that is
// embedded and indexed. Offsets are byte offsets into the source text.
type Chunk struct {
	DocumentID  string `json:"document_id"`
	Index       int    `json:"index"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Size        int    `json:"size"`
}

// Checksum returns the content hash used for duplicate detection during
// ingestion.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
