package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/cache"
	"github.com/doctalk/doctalk/internal/chunker"
	"github.com/doctalk/doctalk/internal/conversation"
	"github.com/doctalk/doctalk/internal/keyword"
	"github.com/doctalk/doctalk/internal/llm"
	"github.com/doctalk/doctalk/internal/models"
	"github.com/doctalk/doctalk/internal/repository"
	"github.com/doctalk/doctalk/internal/vectordb/qdrant"
)

// CollectionName returns the vector collection for a knowledge base. Each
// knowledge base owns exactly one collection.
func CollectionName(knowledgeBaseID string) string {
	return "kb_" + knowledgeBaseID
}

// ChunkID is the stable chunk identity shared by the vector payload and the
// keyword index, so fusion can key results from both sources the same way.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// ErrDuplicateDocument is returned when a knowledge base already holds a
// document with the same content checksum.
var ErrDuplicateDocument = models.NewError(models.ErrKindValidation, "document with identical content already exists in this knowledge base")

// VectorIndex is the subset of the vector service the pipeline uses
type VectorIndex interface {
	VectorSearcher
	EnsureCollection(ctx context.Context, name string, vectorSize int, distance string) error
	DeleteCollection(ctx context.Context, name string) error
	UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error
	DeleteByDocument(ctx context.Context, collection, documentID string) error
}

// BatchEmbedder embeds single texts and batches
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// ServiceConfig tunes the pipeline
type ServiceConfig struct {
	SearchDefaults SearchOptions
	Assembler      AssemblerConfig
	SearchCacheTTL time.Duration
	Heartbeat      time.Duration
	PromptTurns    int
}

// DefaultServiceConfig returns pipeline defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SearchDefaults: SearchOptions{
			Mode:           ModeHybrid,
			Limit:          5,
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			MinScore:       0.3,
			Oversample:     2,
		},
		Assembler:      DefaultAssemblerConfig(),
		SearchCacheTTL: 5 * time.Minute,
		Heartbeat:      15 * time.Second,
		PromptTurns:    6,
	}
}

// Service is the RAG pipeline: ingestion on one side, retrieval and answer
// generation on the other.
type Service struct {
	repos         *repository.Repositories
	chunker       *chunker.Chunker
	embedder      BatchEmbedder
	vector        VectorIndex
	keywordIdx    *keyword.Index
	retriever     *Retriever
	generator     *Generator
	conversations conversation.Store
	results       *cache.ResultCache
	cfg           ServiceConfig
	logger        *logrus.Logger
}

// NewService wires the pipeline together
func NewService(
	repos *repository.Repositories,
	ch *chunker.Chunker,
	embedder BatchEmbedder,
	vector VectorIndex,
	keywordIdx *keyword.Index,
	generator *Generator,
	conversations conversation.Store,
	results *cache.ResultCache,
	cfg ServiceConfig,
	logger *logrus.Logger,
) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		repos:         repos,
		chunker:       ch,
		embedder:      embedder,
		vector:        vector,
		keywordIdx:    keywordIdx,
		retriever:     NewRetriever(embedder, vector, IndexSearcher{Index: keywordIdx}, cfg.SearchDefaults, logger),
		generator:     generator,
		conversations: conversations,
		results:       results,
		cfg:           cfg,
		logger:        logger,
	}
}

// CreateKnowledgeBase provisions the record and its vector collection
func (s *Service) CreateKnowledgeBase(ctx context.Context, name, description string) (*models.KnowledgeBase, error) {
	kb := &models.KnowledgeBase{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		EmbeddingModel: s.embedder.Model(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.vector.EnsureCollection(ctx, CollectionName(kb.ID), s.embedder.Dimensions(), "Cosine"); err != nil {
		return nil, models.WrapError(models.ErrKindVectorSearch, "failed to create vector collection", err)
	}
	if err := s.repos.KnowledgeBases.Save(ctx, kb); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"knowledge_base_id": kb.ID, "name": name}).Info("Knowledge base created")
	return kb, nil
}

// DeleteKnowledgeBase removes the record, its documents, and all indexed data
func (s *Service) DeleteKnowledgeBase(ctx context.Context, kbID string) error {
	if _, err := s.repos.KnowledgeBases.FindByID(ctx, kbID); err != nil {
		return err
	}
	if err := s.vector.DeleteCollection(ctx, CollectionName(kbID)); err != nil {
		return models.WrapError(models.ErrKindVectorSearch, "failed to delete vector collection", err)
	}
	s.keywordIdx.RemoveKnowledgeBase(kbID)
	if err := s.repos.Documents.DeleteByKnowledgeBase(ctx, kbID); err != nil {
		return err
	}
	return s.repos.KnowledgeBases.DeleteByID(ctx, kbID)
}

// IngestDocument chunks, embeds, and indexes extracted text. Re-ingestion of
// identical content is rejected by checksum; point ids are deterministic so
// a retried ingestion upserts rather than duplicates.
func (s *Service) IngestDocument(ctx context.Context, kbID, filename, text string) (*models.Document, error) {
	kb, err := s.repos.KnowledgeBases.FindByID(ctx, kbID)
	if err != nil {
		return nil, err
	}

	checksum := models.Checksum(text)
	if existing, err := s.repos.Documents.FindByChecksum(ctx, kbID, checksum); err == nil && existing.Status != models.StatusFailed {
		return existing, ErrDuplicateDocument
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:              uuid.NewString(),
		KnowledgeBaseID: kbID,
		Filename:        filename,
		Text:            text,
		Checksum:        checksum,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repos.Documents.Save(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.index(ctx, kb, doc); err != nil {
		doc.Status = models.StatusFailed
		doc.Error = err.Error()
		doc.UpdatedAt = time.Now().UTC()
		if saveErr := s.repos.Documents.Save(ctx, doc); saveErr != nil {
			s.logger.WithField("document_id", doc.ID).WithError(saveErr).Error("Failed to record ingestion failure")
		}
		return doc, err
	}
	return doc, nil
}

func (s *Service) index(ctx context.Context, kb *models.KnowledgeBase, doc *models.Document) error {
	doc.Status = models.StatusProcessing
	doc.UpdatedAt = time.Now().UTC()
	if err := s.repos.Documents.Save(ctx, doc); err != nil {
		return err
	}

	chunks := s.chunker.Split(doc.ID, doc.Text)
	if len(chunks) == 0 {
		doc.Status = models.StatusCompleted
		doc.ChunkCount = 0
		doc.UpdatedAt = time.Now().UTC()
		return s.repos.Documents.Save(ctx, doc)
	}

	collection := CollectionName(kb.ID)
	if err := s.vector.EnsureCollection(ctx, collection, s.embedder.Dimensions(), "Cosine"); err != nil {
		return models.WrapError(models.ErrKindVectorSearch, "failed to ensure vector collection", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	points := make([]qdrant.Point, len(chunks))
	for i, c := range chunks {
		points[i] = qdrant.Point{
			ID:     qdrant.PointID(doc.ID, c.Index),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"document_id":       doc.ID,
				"chunk_id":          ChunkID(doc.ID, c.Index),
				"content":           c.Content,
				"knowledge_base_id": kb.ID,
				"filename":          doc.Filename,
				"created_at":        doc.CreatedAt.Format(time.RFC3339),
			},
		}
	}
	if err := s.vector.UpsertPoints(ctx, collection, points); err != nil {
		return models.WrapError(models.ErrKindVectorSearch, "failed to upsert vectors", err)
	}

	for _, c := range chunks {
		s.keywordIdx.Add(kb.ID, doc.ID, ChunkID(doc.ID, c.Index), c.Content)
	}

	doc.Status = models.StatusCompleted
	doc.ChunkCount = len(chunks)
	doc.UpdatedAt = time.Now().UTC()
	if err := s.repos.Documents.Save(ctx, doc); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":       doc.ID,
		"knowledge_base_id": kb.ID,
		"chunks":            len(chunks),
	}).Info("Document ingested")
	return nil
}

// DeleteDocument removes a document and its indexed vectors and terms
func (s *Service) DeleteDocument(ctx context.Context, kbID, documentID string) error {
	doc, err := s.repos.Documents.FindByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.KnowledgeBaseID != kbID {
		return models.NewError(models.ErrKindNotFound, "document not found in knowledge base: "+documentID)
	}
	if err := s.vector.DeleteByDocument(ctx, CollectionName(kbID), documentID); err != nil {
		return models.WrapError(models.ErrKindVectorSearch, "failed to delete vectors", err)
	}
	s.keywordIdx.RemoveDocument(kbID, documentID)
	return s.repos.Documents.DeleteByID(ctx, documentID)
}

// Search runs retrieval only, with short-TTL result caching
func (s *Service) Search(ctx context.Context, kbID, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := opts.Normalize(s.cfg.SearchDefaults); err != nil {
		return nil, err
	}

	key := cache.SearchKey(string(opts.Mode), kbID, query, opts.CacheParams())
	if s.results != nil {
		var cached []SearchResult
		if s.results.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	found, err := s.retriever.Search(ctx, kbID, query, opts)
	if err != nil {
		return nil, err
	}
	if s.results != nil {
		s.results.SetJSON(ctx, key, found, s.cfg.SearchCacheTTL)
	}
	return found, nil
}

// QueryRequest is one chat question against a knowledge base
type QueryRequest struct {
	KnowledgeBaseID string
	ConversationID  string
	Question        string
	Options         SearchOptions
}

// Query answers a question synchronously and records the turn
func (s *Service) Query(ctx context.Context, req QueryRequest) (*Answer, error) {
	if _, err := s.repos.KnowledgeBases.FindByID(ctx, req.KnowledgeBaseID); err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	history, err := s.conversations.History(ctx, conversationID, s.cfg.PromptTurns)
	if err != nil {
		s.logger.WithField("conversation_id", conversationID).WithError(err).Warn("Failed to load conversation history")
		history = nil
	}

	found, err := s.Search(ctx, req.KnowledgeBaseID, req.Question, req.Options)
	if err != nil {
		return nil, err
	}

	contextBlock, included := AssembleContext(found, s.cfg.Assembler)
	resp, err := s.generator.Generate(ctx, contextBlock, history, req.Question)
	if err != nil {
		return nil, err
	}

	s.appendTurn(ctx, conversationID, req.Question, resp.Content, included)

	return &Answer{
		ConversationID: conversationID,
		Content:        resp.Content,
		Sources:        included,
		Usage:          resp.Usage,
		FinishReason:   resp.FinishReason,
		Model:          resp.Model,
	}, nil
}

// QueryStream answers a question as an ordered event stream. The channel is
// closed after the final event; cancelling ctx (caller disconnect) stops the
// heartbeat and the in-flight provider call.
func (s *Service) QueryStream(ctx context.Context, req QueryRequest) <-chan StreamEvent {
	events := make(chan StreamEvent, 8)
	go s.streamQuery(ctx, req, events)
	return events
}

func (s *Service) streamQuery(ctx context.Context, req QueryRequest, events chan<- StreamEvent) {
	defer close(events)

	emit := func(ev StreamEvent) bool {
		ev.Timestamp = time.Now().UTC()
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		s.logger.WithFields(logrus.Fields{
			"knowledge_base_id": req.KnowledgeBaseID,
			"query":             truncate(req.Question, 80),
		}).WithError(err).Error("Streaming query failed")
		emit(StreamEvent{
			Type:      EventError,
			ErrorKind: string(models.KindOf(err)),
			Error:     err.Error(),
		})
	}

	if _, err := s.repos.KnowledgeBases.FindByID(ctx, req.KnowledgeBaseID); err != nil {
		fail(err)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if !emit(StreamEvent{Type: EventConversationStart, ConversationID: conversationID}) {
		return
	}

	history, err := s.conversations.History(ctx, conversationID, s.cfg.PromptTurns)
	if err != nil {
		history = nil
	}

	if !emit(StreamEvent{Type: EventSearchStart}) {
		return
	}
	found, err := s.Search(ctx, req.KnowledgeBaseID, req.Question, req.Options)
	if err != nil {
		fail(err)
		return
	}
	contextBlock, included := AssembleContext(found, s.cfg.Assembler)
	if !emit(StreamEvent{Type: EventSearchComplete, Sources: included}) {
		return
	}

	deltas, err := s.generator.GenerateStream(ctx, contextBlock, history, req.Question)
	if err != nil {
		fail(err)
		return
	}
	if !emit(StreamEvent{Type: EventResponseStart}) {
		return
	}

	heartbeat := s.cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	var (
		answer string
		usage  *llm.Usage
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !emit(StreamEvent{Type: EventHeartbeat}) {
				return
			}
		case delta, ok := <-deltas:
			if !ok {
				goto done
			}
			if delta.Err != nil {
				fail(delta.Err)
				return
			}
			if delta.Content != "" {
				answer += delta.Content
				if !emit(StreamEvent{Type: EventResponseChunk, Content: delta.Content}) {
					return
				}
			}
			if delta.Usage != nil {
				usage = delta.Usage
			}
			if delta.Done {
				goto done
			}
		}
	}

done:
	s.appendTurn(ctx, conversationID, req.Question, answer, included)
	emit(StreamEvent{
		Type:           EventResponseComplete,
		ConversationID: conversationID,
		Sources:        included,
		Usage:          usage,
	})
}

func (s *Service) appendTurn(ctx context.Context, conversationID, question, answer string, sources []SearchResult) {
	refs := make([]string, len(sources))
	for i, src := range sources {
		refs[i] = src.ChunkID
	}
	turn := conversation.Turn{
		Question:      question,
		Answer:        answer,
		ContextChunks: refs,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.conversations.Append(ctx, conversationID, turn); err != nil {
		s.logger.WithField("conversation_id", conversationID).WithError(err).Warn("Failed to record conversation turn")
	}
}

// History exposes a session's turns
func (s *Service) History(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	return s.conversations.History(ctx, conversationID, limit)
}

// DeleteConversation removes a session
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.conversations.Delete(ctx, conversationID)
}
