package prompt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"greeting.tmpl": {Data: []byte(`---
description: Says hello
author: Research
defaults:
  punctuation: "!"
---
Hello {{ .name }}{{ .punctuation }}`)},
		"bare.tmpl": {Data: []byte(`{{ .a }} and {{ .b }}`)},
		"scoped.tmpl": {Data: []byte(`{{ $n := .count }}{{ range .items }}{{ .label }}{{ $.sep }}{{ end }}{{ with .owner }}{{ .name }}{{ end }}{{ if .flag }}{{ .when_flag }}{{ end }}{{ $n }}`)},
		"partials/footer.tmpl": {Data: []byte(`-- {{ .signature }}`)},
		"with_include.tmpl":    {Data: []byte(`Body{{ "\n" }}{{ include "partials/footer" . }}`)},
		"broken.tmpl":          {Data: []byte(`{{ if .x }}unterminated`)},
		"multiline.tmpl":       {Data: []byte("---\ndescription: Ends with a newline\n---\nLine {{ .n }}\n")},
		"names.tmpl":           {Data: []byte("---\ndefaults:\n  empty:\n  nested:\n    value: ~\n---\n{{ title .name }}|{{ .empty }}|{{ .nested.value }}")},
	}
}

func TestGetPromptRendersVariables(t *testing.T) {
	o := New(testFS())

	out, err := o.GetPrompt("bare", map[string]interface{}{"a": "x", "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "x and 2", out)
}

func TestGetPromptMissingVariableFails(t *testing.T) {
	o := New(testFS())

	_, err := o.GetPrompt("bare", map[string]interface{}{"a": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRender))
	assert.Contains(t, err.Error(), "error rendering template 'bare'")
}

func TestGetPromptUsesFrontmatterDefaults(t *testing.T) {
	o := New(testFS())

	out, err := o.GetPrompt("greeting", map[string]interface{}{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ana!", out)

	out, err = o.GetPrompt("greeting", map[string]interface{}{"name": "Ana", "punctuation": "."})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ana.", out)
}

func TestGetPromptDropsTrailingNewline(t *testing.T) {
	o := New(testFS())

	out, err := o.GetPrompt("multiline", map[string]interface{}{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "Line 1", out)
}

func TestTitleKeepsMultiByteRunes(t *testing.T) {
	tests := map[string]string{
		"émile":   "Émile",
		"ángel":   "Ángel",
		"ñ":       "Ñ",
		"analyst": "Analyst",
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, title(in))
	}

	o := New(testFS())
	out, err := o.GetPrompt("names", map[string]interface{}{"name": "émile"})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "Émile||", out)
}

func TestGetPromptTemplateNotFound(t *testing.T) {
	o := New(testFS())

	_, err := o.GetPrompt("missing/template", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.Contains(t, err.Error(), "'missing/template.tmpl'")

	_, err = o.GetPrompt("../escape", nil)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestGetPromptParseErrorIsRenderError(t *testing.T) {
	o := New(testFS())

	_, err := o.GetPrompt("broken", map[string]interface{}{"x": true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRender))
}

func TestIncludeRendersPartialWithSameData(t *testing.T) {
	o := New(testFS())

	out, err := o.GetPrompt("with_include", map[string]interface{}{"signature": "R"})
	require.NoError(t, err)
	assert.Equal(t, "Body\n-- R", out)

	_, err = o.GetPrompt("with_include", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRender))
}

func TestGetTemplateInfo(t *testing.T) {
	o := New(testFS())

	tests := []struct {
		name        string
		description string
		author      string
		variables   []string
	}{
		{"greeting", "Says hello", "Research", []string{"name", "punctuation"}},
		{"bare", "No description provided", "Unknown", []string{"a", "b"}},
		{"scoped", "No description provided", "Unknown", []string{"count", "flag", "items", "owner", "sep", "when_flag"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := o.GetTemplateInfo(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, info.Name)
			assert.Equal(t, tt.description, info.Description)
			assert.Equal(t, tt.author, info.Author)
			assert.Equal(t, tt.variables, info.Variables)
			assert.NotNil(t, info.Frontmatter)
		})
	}
}

func TestListAndReload(t *testing.T) {
	fsys := testFS()
	o := New(fsys)

	names, err := o.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"bare", "broken", "greeting", "multiline", "names", "partials/footer", "scoped", "with_include"}, names)

	out, err := o.GetPrompt("bare", map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "1 and 2", out)

	fsys["bare.tmpl"] = &fstest.MapFile{Data: []byte(`{{ .a }}+{{ .b }}`)}
	out, _ = o.GetPrompt("bare", map[string]interface{}{"a": 1, "b": 2})
	assert.Equal(t, "1 and 2", out, "cached template is reused")

	o.Reload()
	out, err = o.GetPrompt("bare", map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "1+2", out)
}

func TestConcurrentRendering(t *testing.T) {
	o := New(testFS())

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := o.GetPrompt("greeting", map[string]interface{}{"name": i})
			if err != nil {
				errs <- err
				return
			}
			if !strings.HasPrefix(out, "Hello ") {
				errs <- errors.New("unexpected output: " + out)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
