package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.InDelta(t, 1.0, cfg.Retrieval.SemanticWeight+cfg.Retrieval.KeywordWeight, 0.001)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("SEMANTIC_WEIGHT", "0.6")
	t.Setenv("KEYWORD_WEIGHT", "0.4")

	cfg := defaults()
	applyEnv(cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 0.6, cfg.Retrieval.SemanticWeight)
}

func TestYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7070"
retrieval:
  limit: 10
`), 0o600))
	t.Setenv("DOCTALK_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Retrieval.Limit)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := defaults()
	cfg.Retrieval.SemanticWeight = 0.9
	cfg.Retrieval.KeywordWeight = 0.9
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOverlapAtLeastChunkSize(t *testing.T) {
	cfg := defaults()
	cfg.Chunking.Overlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p",
		Name: "doctalk", SSLMode: "disable", PoolSize: 4,
	}
	assert.Equal(t, "postgres://u:p@db:5432/doctalk?sslmode=disable&pool_max_conns=4", d.DSN())
}
