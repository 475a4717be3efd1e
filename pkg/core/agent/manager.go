package agent

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/logging"
)

// Roles of the extraction and evaluation chains.
const (
	RoleExtract     = "extract"
	RoleAlternative = "alternative"
	RoleCritique    = "critique"
	RoleSummarize   = "summarize"
	RoleEvaluate    = "evaluate"
	RoleConsolidate = "consolidate"
	RoleAssistant   = "assistant"
)

type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Agents         map[string]AgentConfig `yaml:"agents"`
}

type AgentConfig struct {
	Provider    string  `yaml:"provider"` // Optional override
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Description string  `yaml:"description"`
}

// LoadConfig reads the agent routing file (config/models.yaml).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading agent config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing agent config: %w", err)
	}
	return cfg, nil
}

type Manager struct {
	mu        sync.RWMutex
	config    Config
	providers map[string]llm.Provider
	log       *zap.SugaredLogger
}

// NewManager wires the built-in providers. Extra providers (or test fakes)
// can be added with Register.
func NewManager(config Config, log *zap.SugaredLogger) *Manager {
	if config.ActiveProvider == "" {
		config.ActiveProvider = "openai"
	}
	return &Manager{
		config: config,
		providers: map[string]llm.Provider{
			"openai":   &llm.OpenAIProvider{},
			"gemini":   &llm.GeminiProvider{},
			"deepseek": &llm.DeepSeekProvider{},
			"qwen":     &llm.QwenProvider{},
		},
		log: logging.OrNop(log),
	}
}

// Register adds or replaces a provider.
func (m *Manager) Register(name string, p llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = p
}

// Available lists the registered provider names.
func (m *Manager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for k := range m.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetProvider resolves the provider of a role: the role override first, then
// the active provider, then openai.
func (m *Manager) GetProvider(role string) (string, llm.Provider) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if agentConfig, ok := m.config.Agents[role]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return agentConfig.Provider, p
		}
		m.log.Warnw("agent provider not registered, using active provider", "role", role, "provider", agentConfig.Provider)
	}
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return m.config.ActiveProvider, p
	}
	return "openai", m.providers["openai"]
}

// GetProviderByName returns a registered provider or nil.
func (m *Manager) GetProviderByName(name string) llm.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[name]
}

// ExecutePrompt adapts the system prompt for the role's provider and runs it.
// Role settings from the config fill options the caller left unset.
func (m *Manager) ExecutePrompt(ctx context.Context, role string, userPrompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	name, provider := m.GetProvider(role)
	if provider == nil {
		return "", fmt.Errorf("no provider available for role %s", role)
	}

	opts := make(map[string]interface{}, len(options)+3)
	m.mu.RLock()
	if ac, ok := m.config.Agents[role]; ok {
		if ac.Model != "" {
			opts[llm.OptModel] = ac.Model
		}
		if ac.Temperature != 0 {
			opts[llm.OptTemperature] = ac.Temperature
		}
		if ac.MaxTokens != 0 {
			opts[llm.OptMaxTokens] = ac.MaxTokens
		}
	}
	m.mu.RUnlock()
	for k, v := range options {
		opts[k] = v
	}

	m.log.Debugw("executing prompt", "role", role, "provider", name)
	return provider.GenerateResponse(ctx, userPrompt, provider.AdaptInstructions(systemPrompt), opts)
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found", newProvider)
	}
	m.config.ActiveProvider = newProvider
	m.log.Infow("global provider set", "provider", newProvider)
	return nil
}

func (m *Manager) GetActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}
