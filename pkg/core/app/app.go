// Package app assembles the services shared by the API server and the CLI
// from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rating_calculator/pkg/core/agent"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/config"
	"rating_calculator/pkg/core/ingest"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/pipeline"
	"rating_calculator/pkg/core/prompt"
	"rating_calculator/pkg/core/rag"
	"rating_calculator/pkg/core/store"
)

// App holds the wired services. Optional parts that fail to load are
// replaced by fallbacks and reported in Warnings.
type App struct {
	Config      *config.Config
	Prompts     *prompt.Orchestrator
	Definitions *catalog.Loader
	Catalog     *catalog.FieldCatalog
	Params      []catalog.RetrieveParam
	Agents      *agent.Manager
	Embedder    llm.Embedder
	Indexes     *knowledge.IndexSet
	Runner      *pipeline.Runner
	Runs        store.RunRepository
	Warnings    []string

	redis *goredis.Client
	log   *zap.SugaredLogger
}

// New wires every service described by cfg.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	log = logging.OrNop(log)
	a := &App{Config: cfg, log: log}

	prompts, defs, err := NewPrompts(cfg.Prompts, log)
	if err != nil {
		return nil, err
	}
	a.Prompts, a.Definitions = prompts, defs

	if cat, err := catalog.LoadCatalog(cfg.Prompts.CatalogPath, cfg.Prompts.CatalogSheet); err != nil {
		a.warn("field catalog unavailable, every field is typed String", err)
	} else {
		a.Catalog = cat
	}

	if params, err := catalog.LoadRetrieveParams(cfg.Prompts.RetrieveParams); err != nil {
		a.warn("retrieve params unavailable", err)
	} else {
		a.Params = params
	}

	a.Agents = NewAgents(cfg.LLM, log.Named("agent"))

	emb, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}
	a.Embedder = emb
	a.Indexes = knowledge.NewIndexSet(cfg.Index.IndexConfig, emb, log.Named("knowledge"))

	a.Runs = a.openRuns(ctx)

	var (
		agents  rag.Executor
		indexes pipeline.Indexes
	)
	if !cfg.LLM.Mock && len(a.Params) > 0 {
		agents, indexes = a.Agents, a.Indexes
	}
	a.Runner = pipeline.NewRunner(a.Prompts, indexes, agents, pipeline.Config{
		Params:      a.Params,
		Companies:   cfg.Companies,
		Catalog:     a.Catalog,
		Definitions: defs,
		TopKExtract: cfg.Retrieval.TopKExtract,
		Workers:     cfg.Retrieval.Workers,
	}, log.Named("pipeline.Runner"))
	a.Runner.SetRepository(a.Runs)
	return a, nil
}

// NewPrompts opens the template orchestrator (the templates directory, or the
// embedded templates when none is configured) and the definition loader.
func NewPrompts(cfg config.PromptsConfig, log *zap.SugaredLogger) (*prompt.Orchestrator, *catalog.Loader, error) {
	log = logging.OrNop(log)
	var o *prompt.Orchestrator
	if cfg.TemplatesDir != "" {
		var err error
		o, err = prompt.NewFromDir(cfg.TemplatesDir, prompt.WithLogger(log.Named("prompt")))
		if err != nil {
			return nil, nil, err
		}
	} else {
		o = prompt.New(prompt.EmbeddedTemplates(), prompt.WithLogger(log.Named("prompt")))
	}
	defs, err := catalog.NewLoader(cfg.FieldsDir, cfg.QuestionsDir, log.Named("catalog"))
	if err != nil {
		return nil, nil, err
	}
	return o, defs, nil
}

func (a *App) warn(msg string, err error) {
	a.Warnings = append(a.Warnings, fmt.Sprintf("%s: %v", msg, err))
	a.log.Warnw(msg, "error", err)
}

// NewAgents builds the agent manager from the models file, falling back to
// the configured provider for every role.
func NewAgents(cfg config.LLMConfig, log *zap.SugaredLogger) *agent.Manager {
	log = logging.OrNop(log)
	routing := agent.Config{}
	if cfg.ModelsFile != "" {
		c, err := agent.LoadConfig(cfg.ModelsFile)
		if err != nil {
			log.Warnw("agent routing file unavailable, using the default provider", "path", cfg.ModelsFile, "error", err)
		} else {
			routing = c
		}
	}
	if routing.ActiveProvider == "" {
		routing.ActiveProvider = cfg.Provider
	}

	m := agent.NewManager(routing, log)
	m.Register("openai", &llm.OpenAIProvider{Model: cfg.Model})
	return m
}

// NewEmbedder returns the embedding provider named by cfg.
func NewEmbedder(cfg config.IndexConfig) (llm.Embedder, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "", "openai":
		return &llm.OpenAIEmbedder{Model: cfg.EmbeddingModel}, nil
	case "gemini":
		return &llm.GeminiEmbedder{Model: cfg.EmbeddingModel}, nil
	case "aistudio":
		return &llm.AIStudioEmbedder{Model: cfg.EmbeddingModel}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func (a *App) newEmbedder() (llm.Embedder, error) {
	base, err := NewEmbedder(a.Config.Index)
	if err != nil {
		return nil, err
	}
	cc := a.Config.Cache
	if cc.RedisAddr != "" {
		a.redis = goredis.NewClient(&goredis.Options{Addr: cc.RedisAddr, DB: cc.RedisDB})
	}
	return llm.NewCachedEmbedder(base, a.redis, llm.CacheConfig{Size: cc.Size, TTL: cc.TTL}, a.log.Named("llm.Cache"))
}

// openRuns uses Postgres when a database URL is configured and reachable,
// and keeps runs in memory otherwise.
func (a *App) openRuns(ctx context.Context) store.RunRepository {
	dsn := a.Config.Store.DatabaseURL
	if dsn == "" {
		return store.NewMemoryRunRepo()
	}
	if err := store.InitDB(ctx, dsn); err != nil {
		a.warn("run history database unavailable, keeping runs in memory", err)
		return store.NewMemoryRunRepo()
	}
	repo := store.NewRunRepo()
	if err := repo.EnsureSchema(ctx); err != nil {
		a.warn("run history table unavailable, keeping runs in memory", err)
		return store.NewMemoryRunRepo()
	}
	return repo
}

// Store opens the named vector index for reading. An index that was never
// ingested is knowledge.ErrIndexNotFound.
func (a *App) Store(ctx context.Context, indexName string) (*knowledge.VectorStore, error) {
	return a.Indexes.Get(ctx, indexName)
}

// RAG returns a retrieval service over the named index.
func (a *App) RAG(ctx context.Context, indexName string) (*rag.Service, error) {
	vs, err := a.Store(ctx, indexName)
	if err != nil {
		return nil, err
	}
	return rag.NewService(a.Prompts, vs, a.Agents, rag.Config{
		Definitions: a.Definitions,
		Workers:     a.Config.Retrieval.Workers,
	}, a.log.Named("rag.Retriever")), nil
}

// Ingestor returns an ingestion workflow writing into the named index.
func (a *App) Ingestor(ctx context.Context, indexName string) (*ingest.Workflow, error) {
	vs, err := a.Indexes.Create(ctx, indexName)
	if err != nil {
		return nil, err
	}
	ic := a.Config.Index
	return ingest.NewWorkflow(vs, ingest.Options{
		ChunkSize:      ic.ChunkSize,
		ChunkOverlap:   ic.ChunkOverlap,
		Workers:        ic.Workers,
		DetectLanguage: ic.DetectLanguage,
	}, a.log.Named("ingest.Workflow")), nil
}

// Close releases indexes, the redis client and the database pool.
func (a *App) Close() error {
	err := a.Indexes.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	store.Close()
	return err
}
