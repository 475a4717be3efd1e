package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rating_calculator/pkg/core/agent"
	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/knowledge"
	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/logging"
	"rating_calculator/pkg/core/promptset"
	"rating_calculator/pkg/core/schema"
	"rating_calculator/pkg/core/utils"
	"rating_calculator/pkg/core/workers"
)

// Retrieval defaults.
const (
	DefaultK             = 15
	DefaultSummaryWords  = 150
	defaultLanguage      = "es"
	keyResultKind        = "result_kind"
	qualitativeMaxChars  = 5000
	quantitativeMaxChars = 1000
)

// Searcher finds the documents closest to a query. *knowledge.VectorStore
// satisfies it.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]knowledge.Document, error)
}

// Executor runs a prompt for an agent role. *agent.Manager satisfies it.
type Executor interface {
	ExecutePrompt(ctx context.Context, role, userPrompt, systemPrompt string, options map[string]interface{}) (string, error)
}

// Answer is one model call with the prompts that produced it.
type Answer struct {
	Content      string               `json:"content"`
	SystemPrompt string               `json:"system_prompt"`
	UserPrompt   string               `json:"user_prompt"`
	Chunks       []knowledge.Document `json:"chunks,omitempty"`
}

// Text returns the extracted text of a JSON answer: result_field.text, or
// value.value for older contracts, or the raw content when neither is there.
func (a *Answer) Text() string {
	var payload map[string]interface{}
	if _, err := utils.SmartParse(a.Content, &payload); err != nil {
		return strings.TrimSpace(a.Content)
	}
	for _, path := range [][2]string{{"result_field", "text"}, {"value", "value"}} {
		if inner, ok := payload[path[0]].(map[string]interface{}); ok {
			if s, ok := inner[path[1]].(string); ok {
				return s
			}
		}
	}
	return strings.TrimSpace(a.Content)
}

// Service wires templates, the vector store and the chat agents.
type Service struct {
	prompts promptset.Renderer
	store   Searcher
	agents  Executor
	defs    *catalog.Loader
	workers int
	log     *zap.SugaredLogger
}

// Config holds the optional parts of a Service.
type Config struct {
	// Definitions resolves field names for ExtractMany.
	Definitions *catalog.Loader
	// Workers bounds concurrent extractions in ExtractMany.
	Workers int
}

// NewService builds a Service.
func NewService(prompts promptset.Renderer, store Searcher, agents Executor, cfg Config, log *zap.SugaredLogger) *Service {
	return &Service{
		prompts: prompts,
		store:   store,
		agents:  agents,
		defs:    cfg.Definitions,
		workers: cfg.Workers,
		log:     logging.OrNop(log),
	}
}

// ResultKind picks the output shape of a field: an explicit result_kind in
// the definition wins, otherwise quantitative fields are numeric and
// everything else is text.
func ResultKind(field *catalog.Definition, fieldType string) schema.Kind {
	if k := field.String(keyResultKind); k != "" {
		return schema.KindFor(k)
	}
	if fieldType == promptset.FieldQuantitative {
		return schema.KindNumeric
	}
	return schema.KindString
}

// RetrieveWithAnswer searches the index with the field's retrieval keywords,
// renders the extraction prompts around the k best chunks and runs the
// extract agent.
func (s *Service) RetrieveWithAnswer(ctx context.Context, field *catalog.Definition, fieldType string, k int) (*Answer, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: no field definition", promptset.ErrMissingSource)
	}
	if fieldType == "" {
		fieldType = field.FieldType()
	}
	if fieldType != promptset.FieldQuantitative && fieldType != promptset.FieldQualitative {
		return nil, fmt.Errorf("%w: %q", promptset.ErrInvalidFieldType, fieldType)
	}
	if k <= 0 {
		k = DefaultK
	}

	maxChars := quantitativeMaxChars
	if fieldType == promptset.FieldQualitative {
		maxChars = qualitativeMaxChars
	}
	vars := field.Vars()
	vars["output_language"] = defaultLanguage
	vars["max_characters"] = maxChars
	vars["include_source_guides"] = true
	system, err := s.prompts.GetPrompt(promptset.TemplateExtract, vars)
	if err != nil {
		return nil, err
	}

	query := field.RetrievalKeywords()
	if query == "" {
		query = field.DisplayName()
	}
	docs, err := s.store.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search for %s: %w", field.Name, err)
	}
	s.log.Debugw("retrieved chunks", "field", field.Name, "query", query, "chunks", len(docs))

	user, err := s.prompts.GetPrompt(promptset.TemplateUser, map[string]interface{}{
		"user_type": "extract",
		"chunks":    ChunkLines(docs),
	})
	if err != nil {
		return nil, err
	}

	options := map[string]interface{}{llm.OptResponseFormat: "json_object"}
	if js, err := schema.JSONSchema(schema.NewExtraction(ResultKind(field, fieldType))); err == nil {
		options[llm.OptJSONSchema] = js
		options[llm.OptSchemaName] = "extraction"
	}
	content, err := s.agents.ExecutePrompt(ctx, agent.RoleExtract, user, system, options)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", field.Name, err)
	}
	return &Answer{Content: content, SystemPrompt: system, UserPrompt: user, Chunks: docs}, nil
}

// Summarize condenses content with a closing judgment in at most 150 words.
func (s *Service) Summarize(ctx context.Context, content string) (*Answer, error) {
	system, err := s.prompts.GetPrompt(promptset.TemplateSummarize, map[string]interface{}{
		"include_judgment": true,
		"max_words":        DefaultSummaryWords,
	})
	if err != nil {
		return nil, err
	}
	user, err := s.prompts.GetPrompt(promptset.TemplateUser, map[string]interface{}{
		"user_type": "summarize",
		"content":   content,
	})
	if err != nil {
		return nil, err
	}
	out, err := s.agents.ExecutePrompt(ctx, agent.RoleSummarize, user, system, nil)
	if err != nil {
		return nil, fmt.Errorf("summarizing: %w", err)
	}
	return &Answer{Content: out, SystemPrompt: system, UserPrompt: user}, nil
}

// Extraction is the outcome for one field of ExtractMany.
type Extraction struct {
	Variable string  `json:"variable"`
	Value    string  `json:"value"`
	Answer   *Answer `json:"answer,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Batch is the result of ExtractMany.
type Batch struct {
	Items   []Extraction `json:"items"`
	Summary *Answer      `json:"summary,omitempty"`
}

// SummaryInput joins the extracted values as "### <variable>\n<value>"
// sections separated by blank lines. Failed extractions are left out.
func (b *Batch) SummaryInput() string {
	var parts []string
	for _, it := range b.Items {
		if it.Error != "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", it.Variable, it.Value))
	}
	return strings.Join(parts, "\n\n")
}

// ExtractMany extracts several fields concurrently, keeps the results in
// input order and summarizes the successful values together. A failing field
// is reported in its item; the batch fails only when none succeeded.
func (s *Service) ExtractMany(ctx context.Context, names []string, fieldType string, k int) (*Batch, error) {
	if s.defs == nil {
		return nil, fmt.Errorf("%w: no definition loader configured", promptset.ErrMissingSource)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no fields given", promptset.ErrMissingSource)
	}

	pool, err := workers.NewPool("rag.extract", s.workers, s.log)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	batch := &Batch{Items: make([]Extraction, len(names))}
	errs := pool.Run(ctx, len(names), func(ctx context.Context, i int) error {
		item := &batch.Items[i]
		item.Variable = names[i]

		def, err := s.defs.Field(names[i])
		if err != nil {
			return err
		}
		ans, err := s.RetrieveWithAnswer(ctx, def, fieldType, k)
		if err != nil {
			return err
		}
		item.Answer = ans
		item.Value = ans.Text()
		return nil
	})

	ok := 0
	for i, err := range errs {
		if err != nil {
			batch.Items[i].Variable = names[i]
			batch.Items[i].Error = err.Error()
			s.log.Warnw("field extraction failed", "field", names[i], "error", err)
			continue
		}
		ok++
	}
	if ok == 0 {
		return batch, fmt.Errorf("all %d extractions failed: %w", len(names), workers.FirstError(errs))
	}

	summary, err := s.Summarize(ctx, batch.SummaryInput())
	if err != nil {
		return batch, err
	}
	batch.Summary = summary
	return batch, nil
}
