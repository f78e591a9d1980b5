// Package router assembles the gin engine: middleware chain plus the v1
// API routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/handlers"
	"github.com/doctalk/doctalk/internal/middleware"
	"github.com/doctalk/doctalk/internal/rag"
	"github.com/doctalk/doctalk/internal/repository"
)

// Dependencies carries everything the routes need
type Dependencies struct {
	Service    *rag.Service
	Repos      *repository.Repositories
	Logger     *logrus.Logger
	Auth       middleware.AuthConfig
	Validation middleware.ValidationConfig
	Health     map[string]handlers.HealthChecker
	Version    string
}

// New builds the HTTP engine
func New(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Validation.MaxBodySize == 0 {
		deps.Validation = middleware.DefaultValidationConfig()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(deps.Logger))
	engine.Use(middleware.BodySize(deps.Validation))

	health := handlers.NewHealthHandler(deps.Version, deps.Health)
	engine.GET("/health", health.Health)

	kb := handlers.NewKnowledgeBaseHandler(deps.Service, deps.Repos, deps.Validation.MaxDocumentSize, deps.Logger)
	chat := handlers.NewChatHandler(deps.Service, deps.Validation.MaxQuestionLength, deps.Logger)

	v1 := engine.Group("/v1")
	v1.Use(middleware.Auth(deps.Auth))
	{
		v1.POST("/knowledge-bases", kb.Create)
		v1.GET("/knowledge-bases", kb.List)
		v1.GET("/knowledge-bases/:id", kb.Get)
		v1.DELETE("/knowledge-bases/:id", kb.Delete)

		v1.POST("/knowledge-bases/:id/documents", kb.IngestDocument)
		v1.GET("/knowledge-bases/:id/documents", kb.ListDocuments)
		v1.GET("/knowledge-bases/:id/documents/:docId", kb.GetDocument)
		v1.DELETE("/knowledge-bases/:id/documents/:docId", kb.DeleteDocument)

		v1.POST("/chat", chat.Chat)
		v1.POST("/chat/stream", chat.ChatStream)

		v1.GET("/conversations/:id", chat.GetConversation)
		v1.DELETE("/conversations/:id", chat.DeleteConversation)
	}

	return engine
}
