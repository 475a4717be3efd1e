package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"

	"rating_calculator/pkg/core/logging"
)

//go:embed templates
var embedded embed.FS

// EmbeddedTemplates returns the templates compiled into the binary.
func EmbeddedTemplates() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Orchestrator loads, caches and renders templates from a filesystem.
// It is safe for concurrent use.
type Orchestrator struct {
	fsys fs.FS
	log  *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]*entry
}

type entry struct {
	post *Post
	tmpl *template.Template
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for cache and load events.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) { o.log = logging.OrNop(l) }
}

// New returns an Orchestrator reading "<name>.tmpl" files from fsys.
func New(fsys fs.FS, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fsys:  fsys,
		log:   zap.NewNop().Sugar(),
		cache: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromDir returns an Orchestrator over a templates directory on disk.
func NewFromDir(dir string, opts ...Option) (*Orchestrator, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("templates directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates directory %s is not a directory", dir)
	}
	return New(os.DirFS(dir), opts...), nil
}

var (
	defaultOrchestrator *Orchestrator
	defaultOnce         sync.Once
)

// Default returns the process-wide Orchestrator. It reads RATING_TEMPLATES_DIR
// when set and falls back to the embedded templates otherwise.
func Default() *Orchestrator {
	defaultOnce.Do(func() {
		log := logging.Named("prompt.Orchestrator")
		if dir := os.Getenv("RATING_TEMPLATES_DIR"); dir != "" {
			o, err := NewFromDir(dir, WithLogger(log))
			if err == nil {
				log.Infow("using templates directory", "dir", dir)
				defaultOrchestrator = o
				return
			}
			log.Warnw("templates directory unusable, using embedded templates", "dir", dir, "error", err)
		}
		defaultOrchestrator = New(EmbeddedTemplates(), WithLogger(log))
	})
	return defaultOrchestrator
}

// LoadPost reads and splits the template file for name (without extension).
func (o *Orchestrator) LoadPost(name string) (*Post, error) {
	e, err := o.load(name)
	if err != nil {
		return nil, err
	}
	return e.post, nil
}

// GetPrompt renders name with vars. Frontmatter defaults fill keys missing
// from vars; any other missing key fails with ErrRender.
func (o *Orchestrator) GetPrompt(name string, vars map[string]interface{}) (string, error) {
	return o.render(name, vars)
}

// GetTemplateInfo returns the frontmatter metadata and the sorted list of
// variables the template body reads.
func (o *Orchestrator) GetTemplateInfo(name string) (*TemplateInfo, error) {
	e, err := o.load(name)
	if err != nil {
		return nil, err
	}

	info := &TemplateInfo{
		Name:        name,
		Description: defaultDescription,
		Author:      defaultAuthor,
		Variables:   undeclaredVariables(e.tmpl),
		Frontmatter: e.post.Metadata,
	}
	if d, ok := e.post.Metadata["description"]; ok {
		info.Description = fmt.Sprint(d)
	}
	if a, ok := e.post.Metadata["author"]; ok {
		info.Author = fmt.Sprint(a)
	}
	return info, nil
}

// List returns every template name in the filesystem, sorted.
func (o *Orchestrator) List() ([]string, error) {
	var names []string
	err := fs.WalkDir(o.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != Extension {
			return nil
		}
		names = append(names, strings.TrimSuffix(p, Extension))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Reload drops every cached template so the next call re-reads the files.
func (o *Orchestrator) Reload() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache = make(map[string]*entry)
	o.log.Debugw("template cache cleared")
}

func (o *Orchestrator) render(name string, vars map[string]interface{}) (string, error) {
	e, err := o.load(name)
	if err != nil {
		return "", err
	}

	data := make(map[string]interface{}, len(vars)+8)
	for k, v := range e.post.Defaults() {
		data[k] = v
	}
	for k, v := range vars {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w '%s': %w", ErrRender, name, err)
	}
	return buf.String(), nil
}

func (o *Orchestrator) load(name string) (*entry, error) {
	o.mu.RLock()
	e, ok := o.cache[name]
	o.mu.RUnlock()
	if ok {
		return e, nil
	}

	file := name + Extension
	if !fs.ValidPath(file) {
		return nil, fmt.Errorf("%w: invalid template name '%s'", ErrTemplateNotFound, name)
	}
	data, err := fs.ReadFile(o.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s' in the configured templates directory", ErrTemplateNotFound, file)
		}
		return nil, fmt.Errorf("reading template '%s': %w", file, err)
	}

	post, err := ParseFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("%w '%s': %w", ErrRender, name, err)
	}

	tmpl, err := template.New(name).
		Funcs(o.funcMap()).
		Option("missingkey=error").
		Parse(post.Content)
	if err != nil {
		return nil, fmt.Errorf("%w '%s': %w", ErrRender, name, err)
	}

	e = &entry{post: post, tmpl: tmpl}
	o.mu.Lock()
	o.cache[name] = e
	o.mu.Unlock()
	o.log.Debugw("template loaded", "name", name, "bytes", len(data))
	return e, nil
}
