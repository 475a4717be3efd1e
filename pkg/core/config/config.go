// Package config loads the application configuration from config/app.yaml,
// RATING_* environment variables and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/logging"
)

// EnvPrefix prefixes the environment variables read by Load, e.g.
// RATING_SERVER_ADDR overrides server.addr.
const EnvPrefix = "RATING"

// DefaultFile is the config file used when none is given.
const DefaultFile = "config/app.yaml"

type Config struct {
	Prompts   PromptsConfig       `mapstructure:"prompts"`
	Index     IndexConfig         `mapstructure:"index"`
	LLM       LLMConfig           `mapstructure:"llm"`
	Retrieval RetrievalConfig     `mapstructure:"retrieval"`
	Server    ServerConfig        `mapstructure:"server"`
	Companies map[string][]string `mapstructure:"companies"`
	Log       logging.Options     `mapstructure:"log"`
	Cache     CacheConfig         `mapstructure:"cache"`
	Store     StoreConfig         `mapstructure:"store"`
}

// PromptsConfig locates templates, definitions and the field catalog.
type PromptsConfig struct {
	TemplatesDir   string `mapstructure:"templates_dir"`   // empty: embedded templates
	FieldsDir      string `mapstructure:"fields_dir"`
	QuestionsDir   string `mapstructure:"questions_dir"`
	CatalogPath    string `mapstructure:"catalog_path"`
	CatalogSheet   string `mapstructure:"catalog_sheet"`
	RetrieveParams string `mapstructure:"retrieve_params"`
}

type IndexConfig struct {
	knowledge.IndexConfig `mapstructure:",squash"`

	ChunkSize         int    `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap      int    `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	EmbeddingProvider string `mapstructure:"embedding_provider" validate:"oneof=openai gemini aistudio"`
	EmbeddingModel    string `mapstructure:"embedding_model"`
	Workers           int    `mapstructure:"workers"`
	DetectLanguage    bool   `mapstructure:"detect_language"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `mapstructure:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"gte=0"`
	// ModelsFile routes agent roles to providers.
	ModelsFile string `mapstructure:"models_file"`
	// Mock serves placeholder payloads instead of calling any model.
	Mock bool `mapstructure:"mock"`
}

type RetrievalConfig struct {
	K           int `mapstructure:"k" validate:"gt=0"`
	TopK        int `mapstructure:"top_k" validate:"gt=0"`
	TopKExtract int `mapstructure:"top_k_extract" validate:"gt=0"`
	Workers     int `mapstructure:"workers"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr" validate:"required"`
	AllowOrigin string `mapstructure:"allow_origin"`
}

// CacheConfig configures the embedding cache. Redis is used only when
// RedisAddr is set.
type CacheConfig struct {
	Size      int           `mapstructure:"size"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
}

// StoreConfig enables run history when DatabaseURL is set.
type StoreConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// File is the config file. When empty DefaultFile is read if it exists.
	File string
	// EnvFile is loaded into the environment first; ".env" when empty.
	EnvFile string
	// Overrides take precedence over every other source, keyed like
	// "server.addr".
	Overrides map[string]interface{}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("prompts.fields_dir", "prompts/fields")
	v.SetDefault("prompts.questions_dir", "prompts/subfactors")
	v.SetDefault("prompts.catalog_sheet", catalog.DefaultCatalogSheet)
	v.SetDefault("prompts.catalog_path", catalog.DefaultCatalogPath)
	v.SetDefault("prompts.retrieve_params", "prompts/retrieve_params.yaml")

	v.SetDefault("index.backend", knowledge.BackendSQLite)
	v.SetDefault("index.path", "indexes")
	v.SetDefault("index.table", knowledge.DefaultPGTable)
	v.SetDefault("index.dimensions", 1536)
	v.SetDefault("index.chunk_size", 1000)
	v.SetDefault("index.chunk_overlap", 120)
	v.SetDefault("index.embedding_provider", "openai")
	v.SetDefault("index.embedding_model", "text-embedding-3-small")
	v.SetDefault("index.workers", 4)
	v.SetDefault("index.detect_language", true)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-5.2")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.max_tokens", 3000)
	v.SetDefault("llm.models_file", "config/models.yaml")

	v.SetDefault("retrieval.k", 15)
	v.SetDefault("retrieval.top_k", 20)
	v.SetDefault("retrieval.top_k_extract", 10)
	v.SetDefault("retrieval.workers", 4)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allow_origin", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("cache.size", 4096)
	v.SetDefault("cache.ttl", 24*time.Hour)
}

// Load reads the configuration. A missing default file is not an error; a
// missing explicit file is.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	file := opts.File
	explicit := file != ""
	if !explicit {
		file = DefaultFile
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	expandEnvVars(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks value ranges and the backend settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch strings.ToLower(c.Index.Backend) {
	case "", knowledge.BackendSQLite, knowledge.BackendMemory:
	case knowledge.BackendPostgres:
		if c.Index.DSN == "" {
			return fmt.Errorf("invalid config: index.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid config: unknown index backend %q", c.Index.Backend)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR in string values. Unset variables
// are left as written.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envPattern.ReplaceAllStringFunc(s, func(match string) string {
			name := strings.TrimPrefix(match, "$")
			name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return match
		})
		if expanded != s {
			v.Set(key, expanded)
		}
	}
}
