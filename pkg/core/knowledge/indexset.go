package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/logging"
)

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// IndexSet opens named indexes lazily and keeps them open. With the sqlite
// backend each name is a directory under the base path; with postgres each
// name is a table.
type IndexSet struct {
	base     IndexConfig
	embedder llm.Embedder
	log      *zap.SugaredLogger

	mu     sync.Mutex
	stores map[string]*VectorStore
}

func NewIndexSet(base IndexConfig, embedder llm.Embedder, log *zap.SugaredLogger) *IndexSet {
	return &IndexSet{
		base:     base,
		embedder: embedder,
		log:      logging.OrNop(log),
		stores:   make(map[string]*VectorStore),
	}
}

// Get returns the store of an index that already exists, opening it on first
// use. It never creates one: an index that was not ingested yields
// ErrIndexNotFound.
func (s *IndexSet) Get(ctx context.Context, name string) (*VectorStore, error) {
	return s.open(ctx, name, false)
}

// Create returns the store of the named index, creating it when absent.
func (s *IndexSet) Create(ctx context.Context, name string) (*VectorStore, error) {
	return s.open(ctx, name, true)
}

func (s *IndexSet) open(ctx context.Context, name string, create bool) (*VectorStore, error) {
	if !indexNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("invalid index name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if vs, ok := s.stores[name]; ok {
		return vs, nil
	}

	cfg := s.base
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		cfg.Path = filepath.Join(cfg.Path, name)
	case BackendPostgres:
		cfg.Table = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	}
	opener := OpenExisting
	if create {
		opener = Open
	}
	vs, err := opener(ctx, cfg, s.embedder, s.log)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", name, err)
	}
	s.log.Debugw("index opened", "index", name, "backend", cfg.Backend, "create", create)
	s.stores[name] = vs
	return vs, nil
}

// Close closes every opened index.
func (s *IndexSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, vs := range s.stores {
		if err := vs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(s.stores, name)
	}
	return errors.Join(errs...)
}
