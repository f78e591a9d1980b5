package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/rag"
)

// ChatHandler answers questions against a knowledge base
type ChatHandler struct {
	service     *rag.Service
	maxQuestion int
	logger      *logrus.Logger
}

// NewChatHandler creates the chat handler. maxQuestionLength caps questions
// in characters.
func NewChatHandler(service *rag.Service, maxQuestionLength int, logger *logrus.Logger) *ChatHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChatHandler{service: service, maxQuestion: maxQuestionLength, logger: logger}
}

// ChatRequest is the body for POST /v1/chat and /v1/chat/stream
type ChatRequest struct {
	KnowledgeBaseID string  `json:"knowledge_base_id" binding:"required"`
	Question        string  `json:"question" binding:"required"`
	ConversationID  string  `json:"conversation_id"`
	Mode            string  `json:"mode"`
	Limit           int     `json:"limit"`
	SemanticWeight  float64 `json:"semantic_weight"`
	KeywordWeight   float64 `json:"keyword_weight"`
	MinScore        float64 `json:"min_score"`
}

func (h *ChatHandler) parseRequest(c *gin.Context) (*rag.QueryRequest, bool) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		badRequest(c, "question must not be blank")
		return nil, false
	}
	if h.maxQuestion > 0 && len(req.Question) > h.maxQuestion {
		badRequest(c, "question exceeds maximum length")
		return nil, false
	}

	return &rag.QueryRequest{
		KnowledgeBaseID: req.KnowledgeBaseID,
		ConversationID:  req.ConversationID,
		Question:        req.Question,
		Options: rag.SearchOptions{
			Mode:           rag.SearchMode(req.Mode),
			Limit:          req.Limit,
			SemanticWeight: req.SemanticWeight,
			KeywordWeight:  req.KeywordWeight,
			MinScore:       req.MinScore,
		},
	}, true
}

// Chat handles POST /v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	answer, err := h.service.Query(c.Request.Context(), *req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// ChatStream handles POST /v1/chat/stream as text/event-stream. Events are
// framed as data: <json> and the stream ends with data: [DONE]. After
// headers are sent, failures surface as an error event rather than an HTTP
// status.
func (h *ChatHandler) ChatStream(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, errStreamingUnsupported)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.service.QueryStream(c.Request.Context(), *req)
	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.WithError(err).Error("Failed to encode stream event")
			continue
		}
		if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
			// client went away; the service sees the cancelled context
			return
		}
		flusher.Flush()
	}

	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	flusher.Flush()
}

// GetConversation handles GET /v1/conversations/:id
func (h *ChatHandler) GetConversation(c *gin.Context) {
	turns, err := h.service.History(c.Request.Context(), c.Param("id"), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("id"),
		"turns":           turns,
	})
}

// DeleteConversation handles DELETE /v1/conversations/:id
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
