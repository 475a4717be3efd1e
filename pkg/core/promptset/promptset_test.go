package promptset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rating_calculator/pkg/core/catalog"
	"rating_calculator/pkg/core/prompt"
)

const quantitativeYAML = `field_name: Unhedged foreign currency debt
field_type: quantitative
description: Debt in foreign currency without hedging.
synonyms:
  - uncovered FX debt
source_guides:
  - Currency risk notes
specifications:
  - Use the consolidated figure
exclusions:
  - Debt hedged with swaps
`

const qualitativeYAML = `field_name: CFO and investor relations
field_type: qualitative
description: Profile of the CFO and the investor relations function.
source_guides:
  - Corporate governance report
extraction_elements:
  - Name and tenure of the CFO
`

const questionYAML = `question_id: question_17
subfactor: Strategy
question: Is there a published strategic plan?
premises:
  strategic_planning:
    statement: A multi-year plan is published.
  execution:
    statement: Previous targets were met.
`

type recordingRenderer struct {
	calls []recordedCall
}

type recordedCall struct {
	name string
	vars map[string]interface{}
}

func (r *recordingRenderer) GetPrompt(name string, vars map[string]interface{}) (string, error) {
	r.calls = append(r.calls, recordedCall{name: name, vars: vars})
	return name, nil
}

func (r *recordingRenderer) find(name string, pred func(map[string]interface{}) bool) (map[string]interface{}, bool) {
	for _, c := range r.calls {
		if c.name == name && pred(c.vars) {
			return c.vars, true
		}
	}
	return nil, false
}

func newLoader(t *testing.T) *catalog.Loader {
	t.Helper()
	fields := t.TempDir()
	questions := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fields, "027_unhedged_fx_debt.yaml"), []byte(quantitativeYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fields, "063_cfo_ir.yaml"), []byte(qualitativeYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fields, "bad_type.yaml"), []byte("field_type: other\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(questions, "question_17.yaml"), []byte(questionYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(questions, "bad_premises.yaml"), []byte("premises: [a, b]\n"), 0o644))

	l, err := catalog.NewLoader(fields, questions, nil)
	require.NoError(t, err)
	return l
}

func TestLoadQuantitativeFlags(t *testing.T) {
	r := &recordingRenderer{}
	b := NewBuilder(r, newLoader(t), nil)

	set, err := b.Load(Options{Process: ProcessExtraction, FieldName: "027_unhedged_fx_debt"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		KeyExtractQuantitative,
		KeyAlternativeQuantitative,
		KeyCritiqueQuantitative,
		"user_prompt_extract",
		"user_prompt_critique",
	}, set.Keys())

	extract, ok := r.find(TemplateExtract, func(v map[string]interface{}) bool { return v["include_synonyms"] == true })
	require.True(t, ok)
	assert.Equal(t, "es", extract["output_language"])
	assert.Equal(t, 1000, extract["max_characters"])
	assert.Equal(t, true, extract["include_normalization"])
	assert.Equal(t, true, extract["include_exclusions"])
	assert.Equal(t, "Unhedged foreign currency debt", extract["field_name"])

	alt, ok := r.find(TemplateExtract, func(v map[string]interface{}) bool { return v["include_synonyms"] == false })
	require.True(t, ok)
	assert.Equal(t, false, alt["include_source_guides"])
	assert.Equal(t, true, alt["include_normalization"])

	critique, ok := r.find(TemplateCritique, func(map[string]interface{}) bool { return true })
	require.True(t, ok)
	assert.Equal(t, true, critique["include_specifications"])

	user, ok := r.find(TemplateUser, func(v map[string]interface{}) bool { return v["user_type"] == "critique" })
	require.True(t, ok)
	assert.Len(t, user, 1)
}

func TestLoadQualitativeFlags(t *testing.T) {
	r := &recordingRenderer{}
	b := NewBuilder(r, newLoader(t), nil)

	set, err := b.Load(Options{FieldName: "063_cfo_ir"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		KeyExtractQualitative,
		KeyCritiqueQualitative,
		KeySummary,
		"user_prompt_extract",
		"user_prompt_critique",
		"user_prompt_summarize",
	}, set.Keys())

	extract, ok := r.find(TemplateExtract, func(map[string]interface{}) bool { return true })
	require.True(t, ok)
	assert.Equal(t, 5000, extract["max_characters"])
	assert.Equal(t, true, extract["include_coverage_rule"])
	_, hasSynonyms := extract["include_synonyms"]
	assert.False(t, hasSynonyms)

	summary, ok := r.find(TemplateSummarize, func(map[string]interface{}) bool { return true })
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"include_judgment": true, "max_characters": 1000}, summary)
}

func TestLoadEvaluationKeepsPremiseOrder(t *testing.T) {
	r := &recordingRenderer{}
	b := NewBuilder(r, newLoader(t), nil)

	set, err := b.Load(Options{Process: ProcessEvaluation, QuestionName: "question_17"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"premises_evaluation_prompts.strategic_planning",
		"premises_evaluation_prompts.execution",
		KeyConsolidate,
		"user_prompt_evaluate",
		"user_prompt_consolidate",
	}, set.Keys())

	consolidate, ok := r.find(TemplateConsolidate, func(map[string]interface{}) bool { return true })
	require.True(t, ok)
	assert.Equal(t, 2000, consolidate["max_characters"])

	evaluate, ok := r.find(TemplateEvaluate, func(v map[string]interface{}) bool { return v["premise_id"] == "execution" })
	require.True(t, ok)
	assert.Equal(t, 1000, evaluate["max_characters"])
}

func TestLoadErrors(t *testing.T) {
	b := NewBuilder(&recordingRenderer{}, newLoader(t), nil)

	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"invalid process", Options{Process: "scoring", FieldName: "063_cfo_ir"}, ErrInvalidProcess},
		{"extraction without source", Options{Process: ProcessExtraction}, ErrMissingSource},
		{"evaluation without source", Options{Process: ProcessEvaluation}, ErrMissingSource},
		{"invalid field type", Options{FieldName: "bad_type"}, ErrInvalidFieldType},
		{"premises not a mapping", Options{Process: ProcessEvaluation, QuestionName: "bad_premises"}, ErrInvalidPremises},
		{"missing definition", Options{FieldName: "absent"}, catalog.ErrDefinitionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Load(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}

	_, err := b.Load(Options{})
	assert.Contains(t, err.Error(), "for extraction, pass field name or field info")
}

func TestLoadWithInfoAndEmptyPremises(t *testing.T) {
	b := NewBuilder(&recordingRenderer{}, nil, nil)

	set, err := b.Load(Options{
		Process:        ProcessEvaluation,
		EvaluationInfo: catalog.NewDefinition("inline", map[string]interface{}{"question": "q"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{KeyConsolidate, "user_prompt_evaluate", "user_prompt_consolidate"}, set.Keys())
}

func TestLoadRendersEmbeddedTemplates(t *testing.T) {
	b := NewBuilder(prompt.New(prompt.EmbeddedTemplates()), newLoader(t), nil)

	set, err := b.Load(Options{FieldName: "027_unhedged_fx_debt"})
	require.NoError(t, err)

	extract, ok := set.Get(KeyExtractQuantitative)
	require.True(t, ok)
	assert.Contains(t, extract, "- uncovered FX debt")
	assert.Contains(t, extract, "## Normalization")

	alt, _ := set.Get(KeyAlternativeQuantitative)
	assert.NotContains(t, alt, "## Synonyms")

	user, _ := set.Get("user_prompt_extract")
	assert.Contains(t, user, "{chunks}")

	set, err = b.Load(Options{Process: ProcessEvaluation, QuestionName: "question_17"})
	require.NoError(t, err)
	text, ok := set.Get("premises_evaluation_prompts.execution")
	require.True(t, ok)
	assert.Contains(t, text, "Previous targets were met.")
	assert.False(t, strings.Contains(text, "<no value>"))
}

func TestSetFlattenAndJSON(t *testing.T) {
	set := &Set{Nodes: []*Node{
		{Key: "b", Text: "second"},
		{Key: "group", Children: []*Node{{Key: "x", Text: "1"}, {Key: "y", Text: "2"}}},
		{Key: "empty", Children: []*Node{}},
		{Key: "a", Text: "last"},
	}}

	assert.Equal(t, []Entry{
		{Key: "b", Text: "second"},
		{Key: "group.x", Text: "1"},
		{Key: "group.y", Text: "2"},
		{Key: "a", Text: "last"},
	}, set.Flatten())

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"second","group":{"x":"1","y":"2"},"empty":{},"a":"last"}`, string(data))

	_, ok := set.Get("group")
	assert.False(t, ok)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "execution", CleanLabel("premises_evaluation_prompts.execution"))
	assert.Equal(t, "", CleanLabel("premises_evaluation_prompts"))
	assert.Equal(t, "consolidate_prompt", CleanLabel("consolidate_prompt"))
	assert.Equal(t, "premises_evaluation_prompts", DisplayLabel("premises_evaluation_prompts"))

	assert.Equal(t, "short", ShortLabel("short", LabelWidth))
	long := strings.Repeat("á", 30)
	got := ShortLabel(long, CompactLabelWidth)
	assert.Equal(t, CompactLabelWidth, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))

	assert.Equal(t, "extraction_063_cfo_ir_user_prompt_extract", FileStub("extraction", "063_cfo_ir", "user_prompt_extract"))
	assert.Equal(t, "a_b_c_d_e", SafeFilename("  A / B:c|d.E "))
	assert.Equal(t, "evaluation_question_17_execution", FileStub("evaluation", "question_17", "premises_evaluation_prompts.execution"))
}
