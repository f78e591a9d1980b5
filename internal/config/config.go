// Package config loads service configuration from the environment with an
// optional YAML overlay. Values resolve in order: defaults, config file,
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Qdrant       QdrantConfig       `yaml:"qdrant"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	LLM          LLMConfig          `yaml:"llm"`
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	APIKey         string        `yaml:"api_key"`
	Mode           string        `yaml:"mode"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestLogging bool          `yaml:"request_logging"`
	LogLevel       string        `yaml:"log_level"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN builds a pgx connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode, d.PoolSize)
}

type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     string        `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Addr returns the host:port address for the redis client
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type QdrantConfig struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	Distance string        `yaml:"distance"`
}

type EmbeddingConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Dimensions     int           `yaml:"dimensions"`
	BatchSize      int           `yaml:"batch_size"`
	BatchDelay     time.Duration `yaml:"batch_delay"`
	MaxInputChars  int           `yaml:"max_input_chars"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "openai" or "openrouter"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	Overlap      int `yaml:"overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

type RetrievalConfig struct {
	Limit           int     `yaml:"limit"`
	SemanticWeight  float64 `yaml:"semantic_weight"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	MinScore        float64 `yaml:"min_score"`
	Oversample      int     `yaml:"oversample"`
	MaxContextChunk int     `yaml:"max_context_chunks"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

type ConversationConfig struct {
	MaxHistory  int           `yaml:"max_history"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	PromptTurns int           `yaml:"prompt_turns"`
}

// Load reads .env (if present), applies defaults, an optional YAML config
// file named by DOCTALK_CONFIG, and finally environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("DOCTALK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			Mode:           "release",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   0, // streaming responses must not be cut off
			RequestLogging: true,
			LogLevel:       "info",
		},
		Database: DatabaseConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     "5432",
			User:     "doctalk",
			Name:     "doctalk",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host:    "localhost",
			Port:    "6379",
			Timeout: 5 * time.Second,
		},
		Qdrant: QdrantConfig{
			URL:      "http://localhost:6333",
			Timeout:  30 * time.Second,
			Distance: "Cosine",
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-3-small",
			Dimensions:     1536,
			BatchSize:      100,
			BatchDelay:     200 * time.Millisecond,
			MaxInputChars:  32000,
			RequestTimeout: 30 * time.Second,
			CacheTTL:       7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   2048,
			Timeout:     120 * time.Second,
			MaxRetries:  3,
			Heartbeat:   15 * time.Second,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			Overlap:      200,
			MinChunkSize: 100,
		},
		Retrieval: RetrievalConfig{
			Limit:           5,
			SemanticWeight:  0.7,
			KeywordWeight:   0.3,
			MinScore:        0.3,
			Oversample:      2,
			MaxContextChunk: 5,
			MaxContextChars: 8000,
		},
		Conversation: ConversationConfig{
			MaxHistory:  20,
			SessionTTL:  24 * time.Hour,
			PromptTurns: 6,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.APIKey = getEnv("DOCTALK_API_KEY", cfg.Server.APIKey)
	cfg.Server.Mode = getEnv("GIN_MODE", cfg.Server.Mode)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.RequestLogging = getBoolEnv("REQUEST_LOGGING", cfg.Server.RequestLogging)

	cfg.Database.Enabled = getBoolEnv("DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.PoolSize = getIntEnv("DB_POOL_SIZE", cfg.Database.PoolSize)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("REDIS_DB", cfg.Redis.DB)

	cfg.Qdrant.URL = getEnv("QDRANT_URL", cfg.Qdrant.URL)
	cfg.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.Qdrant.APIKey)

	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey))
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = getIntEnv("EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.BatchSize = getIntEnv("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", cfg.LLM.APIKey))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.MaxRetries = getIntEnv("LLM_MAX_RETRIES", cfg.LLM.MaxRetries)
	cfg.LLM.Heartbeat = getDurationEnv("LLM_HEARTBEAT", cfg.LLM.Heartbeat)

	cfg.Chunking.ChunkSize = getIntEnv("CHUNK_SIZE", cfg.Chunking.ChunkSize)
	cfg.Chunking.Overlap = getIntEnv("CHUNK_OVERLAP", cfg.Chunking.Overlap)
	cfg.Chunking.MinChunkSize = getIntEnv("CHUNK_MIN_SIZE", cfg.Chunking.MinChunkSize)

	cfg.Retrieval.SemanticWeight = getFloatEnv("SEMANTIC_WEIGHT", cfg.Retrieval.SemanticWeight)
	cfg.Retrieval.KeywordWeight = getFloatEnv("KEYWORD_WEIGHT", cfg.Retrieval.KeywordWeight)
	cfg.Retrieval.MinScore = getFloatEnv("MIN_SCORE", cfg.Retrieval.MinScore)

	cfg.Conversation.MaxHistory = getIntEnv("CONVERSATION_MAX_HISTORY", cfg.Conversation.MaxHistory)
	cfg.Conversation.SessionTTL = getDurationEnv("CONVERSATION_TTL", cfg.Conversation.SessionTTL)
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)",
			c.Chunking.Overlap, c.Chunking.ChunkSize)
	}
	if sum := c.Retrieval.SemanticWeight + c.Retrieval.KeywordWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("semantic and keyword weights must sum to 1, got %.3f", sum)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
