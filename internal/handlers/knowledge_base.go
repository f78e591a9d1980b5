package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/rag"
	"github.com/doctalk/doctalk/internal/repository"
)

// KnowledgeBaseHandler manages knowledge bases and their documents
type KnowledgeBaseHandler struct {
	service *rag.Service
	repos   *repository.Repositories
	maxDoc  int
	logger  *logrus.Logger
}

// NewKnowledgeBaseHandler creates the knowledge base handler. maxDocumentSize
// caps uploaded text in characters.
func NewKnowledgeBaseHandler(service *rag.Service, repos *repository.Repositories, maxDocumentSize int, logger *logrus.Logger) *KnowledgeBaseHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &KnowledgeBaseHandler{service: service, repos: repos, maxDoc: maxDocumentSize, logger: logger}
}

// CreateKnowledgeBaseRequest is the body for POST /v1/knowledge-bases
type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Create handles POST /v1/knowledge-bases
func (h *KnowledgeBaseHandler) Create(c *gin.Context) {
	var req CreateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	kb, err := h.service.CreateKnowledgeBase(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, kb)
}

// List handles GET /v1/knowledge-bases
func (h *KnowledgeBaseHandler) List(c *gin.Context) {
	kbs, err := h.repos.KnowledgeBases.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge_bases": kbs})
}

// Get handles GET /v1/knowledge-bases/:id
func (h *KnowledgeBaseHandler) Get(c *gin.Context) {
	kb, err := h.repos.KnowledgeBases.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, kb)
}

// Delete handles DELETE /v1/knowledge-bases/:id
func (h *KnowledgeBaseHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteKnowledgeBase(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// IngestDocumentRequest is the body for POST /v1/knowledge-bases/:id/documents.
// Text is already-extracted plain text; file parsing happens upstream.
type IngestDocumentRequest struct {
	Filename string `json:"filename" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// IngestDocument handles POST /v1/knowledge-bases/:id/documents
func (h *KnowledgeBaseHandler) IngestDocument(c *gin.Context) {
	var req IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if h.maxDoc > 0 && len(req.Text) > h.maxDoc {
		badRequest(c, "document text exceeds maximum size")
		return
	}

	doc, err := h.service.IngestDocument(c.Request.Context(), c.Param("id"), req.Filename, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	// omit the full text from the response
	doc.Text = ""
	c.JSON(http.StatusCreated, doc)
}

// ListDocuments handles GET /v1/knowledge-bases/:id/documents
func (h *KnowledgeBaseHandler) ListDocuments(c *gin.Context) {
	if _, err := h.repos.KnowledgeBases.FindByID(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	docs, err := h.repos.Documents.ListByKnowledgeBase(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	for _, doc := range docs {
		doc.Text = ""
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// GetDocument handles GET /v1/knowledge-bases/:id/documents/:docId
func (h *KnowledgeBaseHandler) GetDocument(c *gin.Context) {
	doc, err := h.repos.Documents.FindByID(c.Request.Context(), c.Param("docId"))
	if err != nil {
		writeError(c, err)
		return
	}
	doc.Text = ""
	c.JSON(http.StatusOK, doc)
}

// DeleteDocument handles DELETE /v1/knowledge-bases/:id/documents/:docId
func (h *KnowledgeBaseHandler) DeleteDocument(c *gin.Context) {
	if err := h.service.DeleteDocument(c.Request.Context(), c.Param("id"), c.Param("docId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
