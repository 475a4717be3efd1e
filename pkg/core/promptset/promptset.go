// Package promptset builds the prompt bundles of a field (extraction) or a
// question (evaluation) from the catalog definitions and the prompt templates.
package promptset

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/logging"
)

// Processes.
const (
	ProcessExtraction = "extraction"
	ProcessEvaluation = "evaluation"
)

// Field types accepted by the extraction process.
const (
	FieldQuantitative = "quantitative"
	FieldQualitative  = "qualitative"
)

// Bundle keys.
const (
	KeyExtractQuantitative     = "extract_quantitative"
	KeyAlternativeQuantitative = "alternative_quantitative"
	KeyCritiqueQuantitative    = "critique_quantitative"
	KeyExtractQualitative      = "extract_qualitative"
	KeyCritiqueQualitative     = "critique_qualitative"
	KeySummary                 = "summary_prompt"
	KeyPremiseEvaluations      = "premises_evaluation_prompts"
	KeyConsolidate             = "consolidate_prompt"
	userPromptPrefix           = "user_prompt_"
)

// Template names.
const (
	TemplateExtract     = "extraction/extract"
	TemplateCritique    = "extraction/critique"
	TemplateSummarize   = "extraction/summarize"
	TemplateEvaluate    = "evaluation/evaluate"
	TemplateConsolidate = "evaluation/consolidate"
	TemplateUser        = "common/user"
)

const defaultLanguage = "es"

var (
	ErrInvalidProcess   = errors.New("invalid process")
	ErrInvalidFieldType = errors.New("invalid field_type")
	ErrMissingSource    = errors.New("missing prompt source")
	ErrInvalidPremises  = errors.New("premises must be a mapping")
)

// Renderer renders a named template with variables.
type Renderer interface {
	GetPrompt(name string, vars map[string]interface{}) (string, error)
}

// Options selects what to build. For extraction either FieldName or FieldInfo
// is required; for evaluation either QuestionName or EvaluationInfo. Info takes
// precedence over the name.
type Options struct {
	Process        string
	FieldName      string
	QuestionName   string
	FieldInfo      *catalog.Definition
	EvaluationInfo *catalog.Definition
}

// Builder produces prompt sets.
type Builder struct {
	prompts Renderer
	defs    *catalog.Loader
	log     *zap.SugaredLogger
}

// NewBuilder returns a Builder. A nil defs reads definitions from the default
// directories.
func NewBuilder(prompts Renderer, defs *catalog.Loader, log *zap.SugaredLogger) *Builder {
	log = logging.OrNop(log)
	if defs == nil {
		defs, _ = catalog.NewLoader("", "", log)
	}
	return &Builder{prompts: prompts, defs: defs, log: log}
}

// Load renders the prompt bundle described by opts.
func (b *Builder) Load(opts Options) (*Set, error) {
	process := opts.Process
	if process == "" {
		process = ProcessExtraction
	}

	switch process {
	case ProcessExtraction:
		info := opts.FieldInfo
		if info == nil {
			if opts.FieldName == "" {
				return nil, fmt.Errorf("%w: for extraction, pass field name or field info", ErrMissingSource)
			}
			def, err := b.defs.Field(opts.FieldName)
			if err != nil {
				return nil, err
			}
			info = def
		}
		set, err := b.buildExtraction(info)
		if err != nil {
			return nil, err
		}
		b.log.Debugw("extraction prompts built", "field", info.Name, "prompts", len(set.Flatten()))
		return set, nil

	case ProcessEvaluation:
		info := opts.EvaluationInfo
		if info == nil {
			if opts.QuestionName == "" {
				return nil, fmt.Errorf("%w: for evaluation, pass question name or evaluation info", ErrMissingSource)
			}
			def, err := b.defs.Question(opts.QuestionName)
			if err != nil {
				return nil, err
			}
			info = def
		}
		set, err := b.buildEvaluation(info)
		if err != nil {
			return nil, err
		}
		b.log.Debugw("evaluation prompts built", "question", info.Name, "prompts", len(set.Flatten()))
		return set, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidProcess, process)
	}
}

func (b *Builder) buildExtraction(info *catalog.Definition) (*Set, error) {
	fieldType := info.FieldType()
	set := &Set{Process: ProcessExtraction, Source: info.Name}

	switch fieldType {
	case FieldQuantitative:
		base := flags{
			"output_language":       defaultLanguage,
			"max_characters":        1000,
			"include_normalization": true,
		}
		extract, err := b.render(TemplateExtract, info, base, flags{
			"include_source_guides":  true,
			"include_synonyms":       true,
			"include_specifications": true,
			"include_exclusions":     true,
		})
		if err != nil {
			return nil, err
		}
		alternative, err := b.render(TemplateExtract, info, base, flags{
			"include_source_guides":  false,
			"include_synonyms":       false,
			"include_specifications": false,
			"include_exclusions":     false,
		})
		if err != nil {
			return nil, err
		}
		critique, err := b.render(TemplateCritique, info, flags{
			"output_language":        defaultLanguage,
			"max_characters":         1000,
			"include_specifications": true,
			"include_exclusions":     true,
		})
		if err != nil {
			return nil, err
		}
		set.add(KeyExtractQuantitative, extract)
		set.add(KeyAlternativeQuantitative, alternative)
		set.add(KeyCritiqueQuantitative, critique)
		return set, b.addUserPrompts(set, "extract", "critique")

	case FieldQualitative:
		extract, err := b.render(TemplateExtract, info, flags{
			"output_language":             defaultLanguage,
			"max_characters":              5000,
			"include_source_guides":       true,
			"include_extraction_elements": true,
			"include_traceability_rule":   true,
			"include_coverage_rule":       true,
		})
		if err != nil {
			return nil, err
		}
		critique, err := b.render(TemplateCritique, info, flags{
			"output_language": defaultLanguage,
			"max_characters":  1000,
		})
		if err != nil {
			return nil, err
		}
		summary, err := b.render(TemplateSummarize, nil, flags{
			"include_judgment": true,
			"max_characters":   1000,
		})
		if err != nil {
			return nil, err
		}
		set.add(KeyExtractQualitative, extract)
		set.add(KeyCritiqueQualitative, critique)
		set.add(KeySummary, summary)
		return set, b.addUserPrompts(set, "extract", "critique", "summarize")

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFieldType, fieldType)
	}
}

func (b *Builder) buildEvaluation(info *catalog.Definition) (*Set, error) {
	if _, ok := info.Premises(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPremises, info.Name)
	}
	set := &Set{Process: ProcessEvaluation, Source: info.Name}

	premises := &Node{Key: KeyPremiseEvaluations, Children: []*Node{}}
	for _, id := range info.PremiseIDs() {
		text, err := b.render(TemplateEvaluate, info, flags{
			"premise_id":      id,
			"output_language": defaultLanguage,
			"max_characters":  1000,
		})
		if err != nil {
			return nil, err
		}
		premises.Children = append(premises.Children, &Node{Key: id, Text: text})
	}
	set.Nodes = append(set.Nodes, premises)

	consolidate, err := b.render(TemplateConsolidate, info, flags{
		"output_language": defaultLanguage,
		"max_characters":  2000,
	})
	if err != nil {
		return nil, err
	}
	set.add(KeyConsolidate, consolidate)
	return set, b.addUserPrompts(set, "evaluate", "consolidate")
}

// addUserPrompts renders common/user once per type. Only user_type is passed,
// so the template keeps its placeholders for the caller to fill.
func (b *Builder) addUserPrompts(set *Set, userTypes ...string) error {
	for _, t := range userTypes {
		text, err := b.prompts.GetPrompt(TemplateUser, map[string]interface{}{"user_type": t})
		if err != nil {
			return err
		}
		set.add(userPromptPrefix+t, text)
	}
	return nil
}

type flags map[string]interface{}

// render merges the definition variables with each flag set, later sets
// overriding earlier ones.
func (b *Builder) render(name string, info *catalog.Definition, sets ...flags) (string, error) {
	vars := map[string]interface{}{}
	if info != nil {
		vars = info.Vars()
	}
	for _, s := range sets {
		for k, v := range s {
			vars[k] = v
		}
	}
	return b.prompts.GetPrompt(name, vars)
}
