// Package pipeline runs the field extraction chain for one company: retrieve
// chunks from every company index, extract, extract again with the
// alternative prompt, summarize string results and critique the first
// extraction.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rating_calculator/pkg/core/agent"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/promptset"
	"rating_calculator/pkg/core/rag"
	"rating_calculator/pkg/core/schema"
	"rating_calculator/pkg/core/store"
	"rating_calculator/pkg/core/workers"
)

// Retrieval defaults.
const (
	DefaultTopK        = 20
	DefaultTopKExtract = 10
)

// ErrUnknownField is returned when the company registry has no such field id.
var ErrUnknownField = errors.New("unknown field")

// Indexes opens a company index by name. *knowledge.IndexSet satisfies it.
type Indexes interface {
	Get(ctx context.Context, name string) (*knowledge.VectorStore, error)
}

// Config holds the registry inputs and retrieval sizes.
type Config struct {
	Params      []catalog.RetrieveParam
	Companies   catalog.Companies
	Catalog     *catalog.FieldCatalog
	Definitions *catalog.Loader
	// TopKExtract is the number of merged chunks given to the prompts.
	TopKExtract int
	Workers     int
}

// Result is the outcome of one run. Payloads are the generic JSON form of the
// parsed outputs. Summary is only set for String fields.
type Result struct {
	RunID       string                 `json:"run_id"`
	Company     string                 `json:"company"`
	FieldID     string                 `json:"field_id"`
	FieldType   string                 `json:"field_type"`
	Initial     map[string]interface{} `json:"initial"`
	Alternative map[string]interface{} `json:"alternative"`
	Critique    map[string]interface{} `json:"critique"`
	Summary     string                 `json:"summary,omitempty"`
	Mock        bool                   `json:"mock"`
	Chunks      []knowledge.Document   `json:"chunks,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Runner executes extraction runs.
type Runner struct {
	prompts promptset.Renderer
	builder *promptset.Builder
	indexes Indexes
	agents  rag.Executor
	repo    store.RunRepository
	cfg     Config
	log     *zap.SugaredLogger
}

// NewRunner creates a runner. With nil agents or indexes every run returns
// mock payloads.
func NewRunner(prompts promptset.Renderer, indexes Indexes, agents rag.Executor, cfg Config, log *zap.SugaredLogger) *Runner {
	log = logging.OrNop(log)
	if cfg.TopKExtract <= 0 {
		cfg.TopKExtract = DefaultTopKExtract
	}
	var builder *promptset.Builder
	if prompts != nil {
		builder = promptset.NewBuilder(prompts, cfg.Definitions, log)
	}
	return &Runner{
		prompts: prompts,
		builder: builder,
		indexes: indexes,
		agents:  agents,
		cfg:     cfg,
		log:     log,
	}
}

// SetRepository enables run history. A nil repo disables it.
func (r *Runner) SetRepository(repo store.RunRepository) {
	r.repo = repo
}

// Mock reports whether runs return placeholder payloads.
func (r *Runner) Mock() bool {
	return r.agents == nil || r.indexes == nil || r.prompts == nil
}

// Companies returns the configured company keys.
func (r *Runner) Companies() []string {
	return r.cfg.Companies.Names()
}

// Registry expands the retrieval parameters for company.
func (r *Runner) Registry(company string) (*catalog.Registry, error) {
	return catalog.BuildRegistry(company, r.cfg.Params, r.cfg.Companies, r.cfg.Catalog)
}

// Run extracts fieldID for company. fieldType is the catalog type (Numeric,
// Table or String) and picks the output schema; when empty the registry type
// is used.
func (r *Runner) Run(ctx context.Context, company, fieldID, fieldType string) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Company:   company,
		FieldID:   fieldID,
		FieldType: fieldType,
		CreatedAt: time.Now(),
	}

	if r.Mock() {
		res.Mock = true
		res.Initial, res.Alternative, res.Critique = MockPayloads(fieldType)
		r.log.Warnw("running in mock mode", "company", company, "field_id", fieldID)
		return res, nil
	}

	reg, err := r.Registry(company)
	if err != nil {
		return nil, err
	}
	entry, ok := reg.Lookup(fieldID)
	if !ok {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnknownField, fieldID, company)
	}
	if res.FieldType == "" {
		res.FieldType = entry.Type
	}
	kind := schema.KindFor(res.FieldType)

	def, err := r.definition(fieldID, entry.Field)
	if err != nil {
		return nil, err
	}
	set, err := r.builder.Load(promptset.Options{Process: promptset.ProcessExtraction, FieldInfo: def})
	if err != nil {
		return nil, err
	}
	extractKey, alternativeKey, critiqueKey := bundleKeys(def.FieldType())

	start := time.Now()
	docs, err := r.retrieve(ctx, reg.RowsFor(fieldID))
	if err != nil {
		return nil, err
	}
	res.Chunks = docs
	chunks := rag.ChunkLines(docs)
	r.log.Infow("chunks retrieved", "company", company, "field_id", fieldID, "chunks", len(docs), "elapsed", time.Since(start))

	userExtract, err := r.prompts.GetPrompt(promptset.TemplateUser, map[string]interface{}{
		"user_type": "extract",
		"chunks":    chunks,
	})
	if err != nil {
		return nil, err
	}
	options, err := structuredOptions(schema.NewExtraction(kind), "extraction")
	if err != nil {
		return nil, err
	}

	system, _ := set.Get(extractKey)
	initial, err := r.extract(ctx, agent.RoleExtract, kind, userExtract, system, options)
	if err != nil {
		return nil, fmt.Errorf("initial extraction of %s: %w", fieldID, err)
	}
	system, _ = set.Get(alternativeKey)
	alternative, err := r.extract(ctx, agent.RoleAlternative, kind, userExtract, system, options)
	if err != nil {
		return nil, fmt.Errorf("alternative extraction of %s: %w", fieldID, err)
	}

	if kind == schema.KindString {
		res.Summary, err = r.summarize(ctx, set, initial)
		if err != nil {
			return nil, fmt.Errorf("summary of %s: %w", fieldID, err)
		}
	}

	critique, err := r.critique(ctx, set, critiqueKey, chunks, initial)
	if err != nil {
		return nil, fmt.Errorf("critique of %s: %w", fieldID, err)
	}

	res.Initial = schema.AsMap(initial)
	res.Alternative = schema.AsMap(alternative)
	res.Critique = schema.AsMap(critique)
	r.save(ctx, res)
	return res, nil
}

// bundleKeys returns the prompt keys of a field type. Qualitative fields have
// no dedicated alternative prompt and reuse the extraction prompt.
func bundleKeys(fieldType string) (extract, alternative, critique string) {
	if fieldType == promptset.FieldQualitative {
		return promptset.KeyExtractQualitative, promptset.KeyExtractQualitative, promptset.KeyCritiqueQualitative
	}
	return promptset.KeyExtractQuantitative, promptset.KeyAlternativeQuantitative, promptset.KeyCritiqueQuantitative
}

// definition loads the YAML of a field id, falling back to the catalog field
// name.
func (r *Runner) definition(fieldID, field string) (*catalog.Definition, error) {
	if r.cfg.Definitions == nil {
		return nil, fmt.Errorf("%w: no definition loader configured", promptset.ErrMissingSource)
	}
	def, err := r.cfg.Definitions.Field(fieldID)
	if err == nil || field == "" || !errors.Is(err, catalog.ErrDefinitionNotFound) {
		return def, err
	}
	return r.cfg.Definitions.Field(field)
}

// retrieve searches every row's index concurrently, merges the hits by score
// and keeps the best TopKExtract.
func (r *Runner) retrieve(ctx context.Context, rows []catalog.Row) ([]knowledge.Document, error) {
	pool, err := workers.NewPool("pipeline.retrieve", r.cfg.Workers, r.log)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	hits := make([][]knowledge.ScoredChunk, len(rows))
	errs := pool.Run(ctx, len(rows), func(ctx context.Context, i int) error {
		row := rows[i]
		vs, err := r.indexes.Get(ctx, row.IndexName)
		if err != nil {
			return err
		}
		k := row.TopK
		if k <= 0 {
			k = DefaultTopK
		}
		found, err := vs.SimilaritySearchWithScore(ctx, row.Keywords, k)
		if err != nil {
			return fmt.Errorf("searching %s: %w", row.IndexName, err)
		}
		hits[i] = found
		return nil
	})

	var merged []knowledge.ScoredChunk
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			r.log.Warnw("index search failed", "index", rows[i].IndexName, "error", err)
			continue
		}
		merged = append(merged, hits[i]...)
	}
	if len(rows) > 0 && failed == len(rows) {
		return nil, fmt.Errorf("all %d index searches failed: %w", failed, workers.FirstError(errs))
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	seen := make(map[string]bool, len(merged))
	docs := make([]knowledge.Document, 0, r.cfg.TopKExtract)
	for _, h := range merged {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		docs = append(docs, h.ToDocument())
		if len(docs) == r.cfg.TopKExtract {
			break
		}
	}
	return docs, nil
}

func (r *Runner) extract(ctx context.Context, role string, kind schema.Kind, user, system string, options map[string]interface{}) (interface{}, error) {
	raw, err := r.agents.ExecutePrompt(ctx, role, user, system, options)
	if err != nil {
		return nil, err
	}
	return schema.ParseExtraction(kind, raw)
}

func (r *Runner) critique(ctx context.Context, set *promptset.Set, key, chunks string, extraction interface{}) (*schema.OutputSchemaCritic, error) {
	data, err := json.Marshal(extraction)
	if err != nil {
		return nil, err
	}
	user, err := r.prompts.GetPrompt(promptset.TemplateUser, map[string]interface{}{
		"user_type":  "critique",
		"extraction": string(data),
		"chunks":     chunks,
	})
	if err != nil {
		return nil, err
	}
	options, err := structuredOptions(&schema.OutputSchemaCritic{}, "critique")
	if err != nil {
		return nil, err
	}
	system, _ := set.Get(key)
	raw, err := r.agents.ExecutePrompt(ctx, agent.RoleCritique, user, system, options)
	if err != nil {
		return nil, err
	}
	return schema.ParseCritique(raw)
}

// summarize condenses the text of a string extraction. Bundles without a
// summary prompt use the generic one with a closing judgment.
func (r *Runner) summarize(ctx context.Context, set *promptset.Set, extraction interface{}) (string, error) {
	out, ok := extraction.(*schema.OutputStringField)
	if !ok || strings.TrimSpace(out.ResultField.Text) == "" {
		return "", nil
	}
	system, ok := set.Get(promptset.KeySummary)
	if !ok {
		var err error
		system, err = r.prompts.GetPrompt(promptset.TemplateSummarize, map[string]interface{}{"include_judgment": true})
		if err != nil {
			return "", err
		}
	}
	user, err := r.prompts.GetPrompt(promptset.TemplateUser, map[string]interface{}{
		"user_type": "summarize",
		"content":   out.ResultField.Text,
	})
	if err != nil {
		return "", err
	}
	summary, err := r.agents.ExecutePrompt(ctx, agent.RoleSummarize, user, system, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func structuredOptions(v interface{}, name string) (map[string]interface{}, error) {
	js, err := schema.JSONSchema(v)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		llm.OptResponseFormat: "json_object",
		llm.OptJSONSchema:     js,
		llm.OptSchemaName:     name,
	}, nil
}

// save stores the run when a repository is set. Failures are logged only.
func (r *Runner) save(ctx context.Context, res *Result) {
	if r.repo == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"initial":     res.Initial,
		"alternative": res.Alternative,
		"critique":    res.Critique,
		"summary":     res.Summary,
		"chunks":      res.Chunks,
	})
	if err != nil {
		r.log.Warnw("failed to encode run", "run_id", res.RunID, "error", err)
		return
	}
	err = r.repo.Save(ctx, &store.RunRecord{
		ID:        res.RunID,
		Company:   res.Company,
		FieldID:   res.FieldID,
		FieldType: res.FieldType,
		Mock:      res.Mock,
		Payload:   payload,
		CreatedAt: res.CreatedAt,
	})
	if err != nil {
		r.log.Warnw("failed to save run", "run_id", res.RunID, "error", err)
	}
}
