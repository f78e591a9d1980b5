package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ValidationConfig bounds incoming requests
type ValidationConfig struct {
	// MaxBodySize caps the request body in bytes
	MaxBodySize int64
	// MaxQuestionLength caps chat questions in characters
	MaxQuestionLength int
	// MaxDocumentSize caps uploaded document text in characters
	MaxDocumentSize int
}

// DefaultValidationConfig returns request bounds suitable for most
// deployments.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxBodySize:       20 * 1024 * 1024,
		MaxQuestionLength: 4000,
		MaxDocumentSize:   5 * 1024 * 1024,
	}
}

// BodySize rejects oversized requests before reading the body
func BodySize(cfg ValidationConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > cfg.MaxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": gin.H{
					"kind": "validation_error",
					"message": fmt.Sprintf("request body too large: %d bytes exceeds maximum %d bytes",
						c.Request.ContentLength, cfg.MaxBodySize),
				},
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodySize)
		c.Next()
	}
}
