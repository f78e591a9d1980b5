// Package middleware provides the gin middleware shared across routes:
// API-key auth, request validation, and request logging.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthConfig configures API-key authentication
type AuthConfig struct {
	// APIKey is the expected key. Empty disables auth entirely, for local
	// development.
	APIKey string
}

// Auth validates the X-API-Key header (or a Bearer token) against the
// configured key.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APIKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			authz := c.GetHeader("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				key = strings.TrimPrefix(authz, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"kind":    "validation_error",
					"message": "invalid or missing API key",
				},
			})
			return
		}
		c.Next()
	}
}
