package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.POST("/echo", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestAuthRejectsMissingKey(t *testing.T) {
	router := newTestRouter(Auth(AuthConfig{APIKey: "secret"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestAuthAcceptsHeaderKey(t *testing.T) {
	router := newTestRouter(Auth(AuthConfig{APIKey: "secret"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set("X-API-Key", "secret")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	router := newTestRouter(Auth(AuthConfig{APIKey: "secret"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set("Authorization", "Bearer secret")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	router := newTestRouter(Auth(AuthConfig{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBodySizeRejectsOversizedRequests(t *testing.T) {
	router := newTestRouter(BodySize(ValidationConfig{MaxBodySize: 16}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 64)))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestBodySizeAllowsSmallRequests(t *testing.T) {
	router := newTestRouter(BodySize(DefaultValidationConfig()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
