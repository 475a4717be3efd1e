// Package prompt renders the prompt templates used for field extraction,
// critique, summarization and evaluation.
//
// Templates are text/template files with the ".tmpl" extension and an optional
// YAML frontmatter block:
//
//	---
//	description: System prompt for field extraction
//	author: Data Research
//	defaults:
//	  include_synonyms: false
//	---
//	Extract {{ .field_name }} ...
//
// Rendering is strict: a variable referenced by the template that is neither
// passed by the caller nor declared under "defaults" fails the render.
package prompt

import "errors"

var (
	// ErrTemplateNotFound is returned when no "<name>.tmpl" exists in the templates FS.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrRender wraps every parse or execution failure of a template.
	ErrRender = errors.New("error rendering template")
	// ErrFrontmatter is returned for a malformed frontmatter block.
	ErrFrontmatter = errors.New("invalid frontmatter")
)

// Extension is appended to template names to locate the file.
const Extension = ".tmpl"

const (
	defaultDescription = "No description provided"
	defaultAuthor      = "Unknown"
)

// Post is a template file split into its frontmatter metadata and body.
type Post struct {
	Metadata map[string]interface{}
	Content  string
}

// Defaults returns the "defaults" mapping of the frontmatter, if any.
func (p *Post) Defaults() map[string]interface{} {
	raw, ok := p.Metadata["defaults"]
	if !ok {
		return nil
	}
	m, _ := raw.(map[string]interface{})
	return m
}

// TemplateInfo describes a template without rendering it.
type TemplateInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Author      string                 `json:"author"`
	Variables   []string               `json:"variables"`
	Frontmatter map[string]interface{} `json:"frontmatter"`
}
