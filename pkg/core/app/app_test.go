package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rating_calculator/pkg/core/config"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	cfg, err := config.Load(config.LoadOptions{
		File: filepath.Join("..", "..", "..", config.DefaultFile),
		Overrides: map[string]interface{}{
			"index.backend":           knowledge.BackendMemory,
			"prompts.fields_dir":      filepath.Join("..", "..", "..", "prompts", "fields"),
			"prompts.questions_dir":   filepath.Join("..", "..", "..", "prompts", "subfactors"),
			"prompts.retrieve_params": filepath.Join("..", "..", "..", "prompts", "retrieve_params.yaml"),
			"prompts.catalog_path":    filepath.Join(t.TempDir(), "missing.xlsx"),
			"llm.models_file":         filepath.Join("..", "..", "..", "config", "models.yaml"),
		},
	})
	require.NoError(t, err)
	return cfg
}

func TestNewWiresServices(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.Params, 3)
	assert.Nil(t, a.Catalog)
	require.Len(t, a.Warnings, 1)
	assert.Contains(t, a.Warnings[0], "field catalog unavailable")
	assert.False(t, a.Runner.Mock())
	assert.IsType(t, &store.MemoryRunRepo{}, a.Runs)
	assert.Equal(t, "gemini", func() string { name, _ := a.Agents.GetProvider("assistant"); return name }())

	names, err := a.Definitions.ListFields()
	require.NoError(t, err)
	assert.Contains(t, names, "019_maturities")

	reg, err := a.Runner.Registry("dia")
	require.NoError(t, err)
	assert.Len(t, reg.Fields, 3)
	assert.Len(t, reg.RowsFor("019_maturities"), len(cfg.Companies["dia"]))

	ctx := context.Background()
	_, err = a.Store(ctx, "dia_esp_plan_estrategico_2025_textract")
	assert.ErrorIs(t, err, knowledge.ErrIndexNotFound)
	_, err = a.RAG(ctx, "dia_esp_plan_estrategico_2025_textract")
	assert.ErrorIs(t, err, knowledge.ErrIndexNotFound)

	wf, err := a.Ingestor(ctx, "dia_esp_plan_estrategico_2025_textract")
	require.NoError(t, err)
	assert.NotNil(t, wf)
	vs, err := a.Store(ctx, "dia_esp_plan_estrategico_2025_textract")
	require.NoError(t, err)
	again, err := a.Store(ctx, "dia_esp_plan_estrategico_2025_textract")
	require.NoError(t, err)
	assert.Same(t, vs, again)

	svc, err := a.RAG(ctx, "dia_esp_plan_estrategico_2025_textract")
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNewMockMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Mock = true
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Runner.Mock())

	cfg = testConfig(t)
	cfg.Prompts.RetrieveParams = filepath.Join(t.TempDir(), "none.yaml")
	a, err = New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Runner.Mock())
	assert.Len(t, a.Warnings, 2)
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(config.IndexConfig{EmbeddingProvider: "gemini", EmbeddingModel: "text-embedding-004"})
	require.NoError(t, err)
	assert.IsType(t, &llm.GeminiEmbedder{}, e)

	e, err = NewEmbedder(config.IndexConfig{})
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIEmbedder{}, e)

	_, err = NewEmbedder(config.IndexConfig{EmbeddingProvider: "faiss"})
	assert.Error(t, err)
}

func TestNewTemplatesDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts.TemplatesDir = filepath.Join(t.TempDir(), "absent")
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.tmpl"), []byte("hi {{ .name }}"), 0o644))
	cfg.Prompts.TemplatesDir = dir
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	out, err := a.Prompts.GetPrompt("hello", map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "hi x", out)
}
