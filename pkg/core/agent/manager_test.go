package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	options map[string]interface{}
	system  string
}

func (f *fakeProvider) GenerateResponse(_ context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	f.options = options
	f.system = systemPrompt
	return f.name + ":" + prompt, nil
}

func (f *fakeProvider) AdaptInstructions(raw string) string { return "[" + raw + "]" }

func TestManagerRouting(t *testing.T) {
	m := NewManager(Config{
		ActiveProvider: "fake",
		Agents: map[string]AgentConfig{
			RoleCritique:  {Provider: "strict", Model: "judge-1", Temperature: 0.2},
			RoleSummarize: {Provider: "missing"},
		},
	}, nil)
	fake := &fakeProvider{name: "fake"}
	strict := &fakeProvider{name: "strict"}
	m.Register("fake", fake)
	m.Register("strict", strict)

	ctx := context.Background()
	out, err := m.ExecutePrompt(ctx, RoleExtract, "chunks", "sys", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake:chunks", out)
	assert.Equal(t, "[sys]", fake.system)

	out, err = m.ExecutePrompt(ctx, RoleCritique, "x", "sys", map[string]interface{}{"temperature": 0.7})
	require.NoError(t, err)
	assert.Equal(t, "strict:x", out)
	assert.Equal(t, "judge-1", strict.options["model"])
	assert.Equal(t, 0.7, strict.options["temperature"])

	name, _ := m.GetProvider(RoleSummarize)
	assert.Equal(t, "fake", name)
}

func TestManagerSetGlobalProvider(t *testing.T) {
	m := NewManager(Config{}, nil)
	assert.Equal(t, "openai", m.GetActiveProvider())
	assert.Contains(t, m.Available(), "gemini")

	require.NoError(t, m.SetGlobalProvider("deepseek"))
	assert.Equal(t, "deepseek", m.GetActiveProvider())
	assert.Error(t, m.SetGlobalProvider("kimi"))
	assert.Nil(t, m.GetProviderByName("kimi"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`active_provider: openai
agents:
  critique:
    provider: gemini
    temperature: 0.1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.ActiveProvider)
	assert.Equal(t, "gemini", cfg.Agents[RoleCritique].Provider)
	assert.Equal(t, 0.1, cfg.Agents[RoleCritique].Temperature)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
