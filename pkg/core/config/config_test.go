package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, 1000, cfg.Index.ChunkSize)
	assert.Equal(t, 120, cfg.Index.ChunkOverlap)
	assert.Equal(t, "gpt-5.2", cfg.LLM.Model)
	assert.Equal(t, 3000, cfg.LLM.MaxTokens)
	assert.Equal(t, 1.0, cfg.LLM.TopP)
	assert.Equal(t, 15, cfg.Retrieval.K)
	assert.Equal(t, 10, cfg.Retrieval.TopKExtract)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Empty(t, cfg.Store.DatabaseURL)
}

func TestLoadFileEnvAndOverrides(t *testing.T) {
	t.Setenv("INDEX_ROOT", "/data/indexes")
	t.Setenv("RATING_RETRIEVAL_K", "7")
	t.Setenv("DATABASE_URL", "postgres://localhost/rating")

	path := writeFile(t, "app.yaml", `
index:
  path: ${INDEX_ROOT}/faiss
  chunk_size: 800
  embedding_provider: gemini
cache:
  ttl: 2h
  redis_addr: localhost:6379
companies:
  repsol:
    - repsol_cuentas-anuales-consolidadas_dump
  dia:
    - dia_esp_plan_estrategico_2025_textract
`)
	cfg, err := Load(LoadOptions{File: path, Overrides: map[string]interface{}{"server.addr": ":9090"}})
	require.NoError(t, err)

	assert.Equal(t, "/data/indexes/faiss", cfg.Index.Path)
	assert.Equal(t, 800, cfg.Index.ChunkSize)
	assert.Equal(t, "gemini", cfg.Index.EmbeddingProvider)
	assert.Equal(t, 7, cfg.Retrieval.K)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, []string{"repsol_cuentas-anuales-consolidadas_dump"}, cfg.Companies["repsol"])
	assert.Len(t, cfg.Companies, 2)
	assert.Equal(t, "postgres://localhost/rating", cfg.Store.DatabaseURL)
}

func TestLoadEnvFile(t *testing.T) {
	env := writeFile(t, ".env", "RATING_LLM_MODEL=gpt-test\n")
	t.Cleanup(func() { os.Unsetenv("RATING_LLM_MODEL") })

	cfg, err := Load(LoadOptions{EnvFile: env})
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", cfg.LLM.Model)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)

	tests := []struct {
		name string
		yaml string
	}{
		{"overlap beyond size", "index:\n  chunk_size: 100\n  chunk_overlap: 200\n"},
		{"unknown embedder", "index:\n  embedding_provider: faiss\n"},
		{"unknown backend", "index:\n  backend: milvus\n"},
		{"postgres without dsn", "index:\n  backend: postgres\n"},
		{"zero k", "retrieval:\n  k: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoadOptions{File: writeFile(t, "app.yaml", tt.yaml)})
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}
