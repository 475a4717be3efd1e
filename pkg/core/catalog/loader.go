package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"rating_calculator/pkg/core/logging"
)

// ErrDefinitionNotFound is returned when a field or question YAML is missing.
var ErrDefinitionNotFound = errors.New("definition not found")

// Default locations of the definition files, relative to the working directory.
const (
	DefaultFieldsDir    = "prompts/fields"
	DefaultQuestionsDir = "prompts/subfactors"

	cacheSize = 256
)

// Loader reads field and question definitions and memoizes parsed files.
type Loader struct {
	FieldsDir    string
	QuestionsDir string

	cache *lru.Cache
	log   *zap.SugaredLogger
}

// NewLoader returns a Loader over the given directories. Empty values use the
// defaults.
func NewLoader(fieldsDir, questionsDir string, log *zap.SugaredLogger) (*Loader, error) {
	if fieldsDir == "" {
		fieldsDir = DefaultFieldsDir
	}
	if questionsDir == "" {
		questionsDir = DefaultQuestionsDir
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating definition cache: %w", err)
	}
	return &Loader{
		FieldsDir:    fieldsDir,
		QuestionsDir: questionsDir,
		cache:        cache,
		log:          logging.OrNop(log),
	}, nil
}

// LoadYAML parses the definition at path. Results are cached by path for the
// lifetime of the Loader.
func (l *Loader) LoadYAML(path string) (*Definition, error) {
	key := filepath.Clean(path)
	if v, ok := l.cache.Get(key); ok {
		return v.(*Definition), nil
	}

	data, err := os.ReadFile(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	name := strings.TrimSuffix(filepath.Base(key), filepath.Ext(key))
	def, err := ParseDefinition(name, data)
	if err != nil {
		return nil, err
	}

	l.cache.Add(key, def)
	l.log.Debugw("definition loaded", "path", key, "keys", len(def.Data))
	return def, nil
}

// Field loads "<FieldsDir>/<name>.yaml".
func (l *Loader) Field(name string) (*Definition, error) {
	return l.loadStem(l.FieldsDir, name)
}

// Question loads "<QuestionsDir>/<name>.yaml".
func (l *Loader) Question(name string) (*Definition, error) {
	return l.loadStem(l.QuestionsDir, name)
}

// loadStem only resolves plain file stems, so a name can never leave dir.
func (l *Loader) loadStem(dir, name string) (*Definition, error) {
	file := name + ".yaml"
	if name == "" || strings.ContainsAny(name, `/\`) || !filepath.IsLocal(file) {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, name)
	}
	return l.LoadYAML(filepath.Join(dir, file))
}

// ListFields returns the sorted stems of the field definitions.
func (l *Loader) ListFields() ([]string, error) {
	return ListYAMLStems(l.FieldsDir)
}

// ListQuestions returns the sorted stems of the question definitions.
func (l *Loader) ListQuestions() ([]string, error) {
	return ListYAMLStems(l.QuestionsDir)
}

// Purge empties the definition cache.
func (l *Loader) Purge() {
	l.cache.Purge()
}

// ListYAMLStems returns the sorted file names without extension of every
// "*.yaml" file in dir. A missing directory yields an empty list.
func ListYAMLStems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	stems := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(stems)
	return stems, nil
}
