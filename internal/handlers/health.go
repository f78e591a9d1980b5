package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker probes one dependency
type HealthChecker func(ctx context.Context) error

// HealthHandler reports service and dependency health
type HealthHandler struct {
	version  string
	checkers map[string]HealthChecker
}

// NewHealthHandler creates the health handler
func NewHealthHandler(version string, checkers map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{version: version, checkers: checkers}
}

// Health handles GET /health. Degraded dependencies flip the status to
// unhealthy with a 503 but the body still lists each check.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := gin.H{}
	for name, check := range h.checkers {
		if err := check(ctx); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			checks[name] = gin.H{"status": "down", "error": err.Error()}
			continue
		}
		checks[name] = gin.H{"status": "up"}
	}

	c.JSON(code, gin.H{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}
