// Package repository persists knowledge bases and document metadata. Two
// implementations are provided: Postgres for deployments and an in-memory
// store for tests and single-node setups without a database.
package repository

import (
	"context"

	"github.com/doctalk/doctalk/internal/models"
)

// KnowledgeBaseRepository stores knowledge base records
type KnowledgeBaseRepository interface {
	Save(ctx context.Context, kb *models.KnowledgeBase) error
	FindByID(ctx context.Context, id string) (*models.KnowledgeBase, error)
	List(ctx context.Context) ([]*models.KnowledgeBase, error)
	DeleteByID(ctx context.Context, id string) error
}

// DocumentRepository stores document records. Document text is persisted so
// re-ingestion after an index rebuild does not require the original file.
type DocumentRepository interface {
	Save(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	FindByChecksum(ctx context.Context, kbID, checksum string) (*models.Document, error)
	ListByKnowledgeBase(ctx context.Context, kbID string) ([]*models.Document, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByKnowledgeBase(ctx context.Context, kbID string) error
}

// Repositories bundles the stores a service needs
type Repositories struct {
	KnowledgeBases KnowledgeBaseRepository
	Documents      DocumentRepository
}
