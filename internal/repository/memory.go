package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/doctalk/doctalk/internal/models"
)

// MemoryKnowledgeBaseRepository is a map-backed KnowledgeBaseRepository
type MemoryKnowledgeBaseRepository struct {
	mu  sync.RWMutex
	kbs map[string]models.KnowledgeBase
}

// NewMemoryKnowledgeBaseRepository creates an empty in-memory repository
func NewMemoryKnowledgeBaseRepository() *MemoryKnowledgeBaseRepository {
	return &MemoryKnowledgeBaseRepository{kbs: make(map[string]models.KnowledgeBase)}
}

func (r *MemoryKnowledgeBaseRepository) Save(ctx context.Context, kb *models.KnowledgeBase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kbs[kb.ID] = *kb
	return nil
}

func (r *MemoryKnowledgeBaseRepository) FindByID(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kb, ok := r.kbs[id]
	if !ok {
		return nil, models.NewError(models.ErrKindNotFound, "knowledge base not found: "+id)
	}
	return &kb, nil
}

func (r *MemoryKnowledgeBaseRepository) List(ctx context.Context) ([]*models.KnowledgeBase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.KnowledgeBase, 0, len(r.kbs))
	for _, kb := range r.kbs {
		copied := kb
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryKnowledgeBaseRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kbs, id)
	return nil
}

// MemoryDocumentRepository is a map-backed DocumentRepository
type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

// NewMemoryDocumentRepository creates an empty in-memory repository
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{docs: make(map[string]models.Document)}
}

func (r *MemoryDocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	return nil
}

func (r *MemoryDocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, models.NewError(models.ErrKindNotFound, "document not found: "+id)
	}
	return &doc, nil
}

func (r *MemoryDocumentRepository) FindByChecksum(ctx context.Context, kbID, checksum string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.docs {
		if doc.KnowledgeBaseID == kbID && doc.Checksum == checksum {
			copied := doc
			return &copied, nil
		}
	}
	return nil, models.NewError(models.ErrKindNotFound, "no document with matching checksum")
}

func (r *MemoryDocumentRepository) ListByKnowledgeBase(ctx context.Context, kbID string) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Document
	for _, doc := range r.docs {
		if doc.KnowledgeBaseID == kbID {
			copied := doc
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryDocumentRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *MemoryDocumentRepository) DeleteByKnowledgeBase(ctx context.Context, kbID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, doc := range r.docs {
		if doc.KnowledgeBaseID == kbID {
			delete(r.docs, id)
		}
	}
	return nil
}

// NewMemoryRepositories bundles fresh in-memory stores
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		KnowledgeBases: NewMemoryKnowledgeBaseRepository(),
		Documents:      NewMemoryDocumentRepository(),
	}
}
