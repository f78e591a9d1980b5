// Package handlers exposes the HTTP API: knowledge base and document
// management, synchronous and streamed chat, conversation access, and
// health.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doctalk/doctalk/internal/models"
	"github.com/doctalk/doctalk/internal/rag"
)

var errStreamingUnsupported = models.NewError(models.ErrKindValidation, "streaming is not supported by this connection")

// statusForError maps the error taxonomy onto HTTP status codes
func statusForError(err error) int {
	if errors.Is(err, rag.ErrDuplicateDocument) {
		return http.StatusConflict
	}
	switch models.KindOf(err) {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindEmbedding, models.ErrKindVectorSearch, models.ErrKindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{
		"error": gin.H{
			"kind":    string(models.KindOf(err)),
			"message": err.Error(),
		},
	})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, models.NewError(models.ErrKindValidation, message))
}
