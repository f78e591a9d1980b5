// DocTalk answers natural-language questions over uploaded documents using
// hybrid retrieval (vector similarity plus BM25 keyword search) and a
// chat-completion provider.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/doctalk/doctalk/internal/cache"
	"github.com/doctalk/doctalk/internal/chunker"
	"github.com/doctalk/doctalk/internal/config"
	"github.com/doctalk/doctalk/internal/conversation"
	"github.com/doctalk/doctalk/internal/embedding"
	"github.com/doctalk/doctalk/internal/handlers"
	"github.com/doctalk/doctalk/internal/keyword"
	"github.com/doctalk/doctalk/internal/llm"
	"github.com/doctalk/doctalk/internal/middleware"
	"github.com/doctalk/doctalk/internal/models"
	"github.com/doctalk/doctalk/internal/rag"
	"github.com/doctalk/doctalk/internal/repository"
	"github.com/doctalk/doctalk/internal/router"
	"github.com/doctalk/doctalk/internal/vectordb/qdrant"
)

const version = "1.0.0"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs the result cache and conversation sessions; when it is
	// unreachable both degrade rather than block startup.
	redisClient := cache.NewRedisClient(cfg.Redis)
	results := cache.NewResultCache(redisClient, cfg.Embedding.CacheTTL, logger)

	var conversations conversation.Store
	convCfg := conversation.Config{
		MaxHistory: cfg.Conversation.MaxHistory,
		SessionTTL: cfg.Conversation.SessionTTL,
	}
	if results.IsEnabled() {
		conversations = conversation.NewRedisStore(redisClient, convCfg)
	} else {
		logger.Warn("Redis unavailable, keeping conversations in memory")
		conversations = conversation.NewMemoryStore(convCfg)
	}

	repos := repository.NewMemoryRepositories()
	if cfg.Database.Enabled {
		pool, err := repository.NewPostgresPool(ctx, cfg.Database.DSN())
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to postgres")
		}
		defer pool.Close()
		repos = repository.NewPostgresRepositories(pool)
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		URL:     cfg.Qdrant.URL,
		APIKey:  cfg.Qdrant.APIKey,
		Timeout: cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create qdrant client")
	}

	embedProvider := embedding.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.RequestTimeout)
	gateway := embedding.NewGateway(embedProvider, results, embedding.Config{
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		BatchSize:     cfg.Embedding.BatchSize,
		BatchDelay:    cfg.Embedding.BatchDelay,
		MaxInputChars: cfg.Embedding.MaxInputChars,
		CacheTTL:      cfg.Embedding.CacheTTL,
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
	}, logger)

	retryCfg := llm.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.LLM.MaxRetries

	var llmProvider llm.Provider
	switch cfg.LLM.Provider {
	case "openrouter":
		llmProvider = llm.NewOpenRouterProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout).WithRetryConfig(retryCfg)
	default:
		llmProvider = llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout).WithRetryConfig(retryCfg)
	}

	generator := rag.NewGenerator(llmProvider, rag.GeneratorConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		PromptTurns: cfg.Conversation.PromptTurns,
	}, logger).WithCache(results, time.Hour)

	keywordIdx := keyword.NewIndex()

	service := rag.NewService(
		repos,
		chunker.New(chunker.Config{
			ChunkSize:    cfg.Chunking.ChunkSize,
			Overlap:      cfg.Chunking.Overlap,
			MinChunkSize: cfg.Chunking.MinChunkSize,
		}),
		gateway,
		qdrantClient,
		keywordIdx,
		generator,
		conversations,
		results,
		rag.ServiceConfig{
			SearchDefaults: rag.SearchOptions{
				Mode:           rag.ModeHybrid,
				Limit:          cfg.Retrieval.Limit,
				SemanticWeight: cfg.Retrieval.SemanticWeight,
				KeywordWeight:  cfg.Retrieval.KeywordWeight,
				MinScore:       cfg.Retrieval.MinScore,
				Oversample:     cfg.Retrieval.Oversample,
			},
			Assembler: rag.AssemblerConfig{
				MaxChunks: cfg.Retrieval.MaxContextChunk,
				MaxChars:  cfg.Retrieval.MaxContextChars,
			},
			SearchCacheTTL: 5 * time.Minute,
			Heartbeat:      cfg.LLM.Heartbeat,
			PromptTurns:    cfg.Conversation.PromptTurns,
		},
		logger,
	)

	// the keyword index lives in memory; rebuild it from stored documents
	if err := rebuildKeywordIndex(ctx, repos, keywordIdx, cfg.Chunking, logger); err != nil {
		logger.WithError(err).Warn("Failed to rebuild keyword index")
	}

	engine := router.New(router.Dependencies{
		Service: service,
		Repos:   repos,
		Logger:  logger,
		Auth:    middleware.AuthConfig{APIKey: cfg.Server.APIKey},
		Validation: middleware.ValidationConfig{
			MaxBodySize:       20 * 1024 * 1024,
			MaxQuestionLength: 4000,
			MaxDocumentSize:   5 * 1024 * 1024,
		},
		Health: map[string]handlers.HealthChecker{
			"qdrant": qdrantClient.HealthCheck,
			"redis":  redisClient.Ping,
		},
		Version: version,
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
	_ = redisClient.Close()
}

// rebuildKeywordIndex re-chunks completed documents so BM25 search survives
// a restart. Chunking is deterministic, so chunk ids line up with the
// vectors already in Qdrant.
func rebuildKeywordIndex(ctx context.Context, repos *repository.Repositories, idx *keyword.Index, chunking config.ChunkingConfig, logger *logrus.Logger) error {
	kbs, err := repos.KnowledgeBases.List(ctx)
	if err != nil {
		return err
	}
	ch := chunker.New(chunker.Config{
		ChunkSize:    chunking.ChunkSize,
		Overlap:      chunking.Overlap,
		MinChunkSize: chunking.MinChunkSize,
	})
	indexed := 0
	for _, kb := range kbs {
		docs, err := repos.Documents.ListByKnowledgeBase(ctx, kb.ID)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.Status != models.StatusCompleted || doc.Text == "" {
				continue
			}
			for _, c := range ch.Split(doc.ID, doc.Text) {
				idx.Add(kb.ID, doc.ID, rag.ChunkID(doc.ID, c.Index), c.Content)
			}
			indexed++
		}
	}
	if indexed > 0 {
		logger.WithField("documents", indexed).Info("Keyword index rebuilt")
	}
	return nil
}
