package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rating_calculator/pkg/core/llm"
	"rating_calculator/pkg/core/logging"
)

// Index backends accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ErrIndexNotFound is returned when reading an index that was never ingested.
var ErrIndexNotFound = errors.New("index not found")

// DefaultEmbedBatch is the number of texts sent per embedding request.
const DefaultEmbedBatch = 64

// IndexConfig selects and locates the index backend.
type IndexConfig struct {
	Backend    string `mapstructure:"backend"`    // sqlite (default), postgres or memory
	Path       string `mapstructure:"path"`       // index directory for sqlite
	DSN        string `mapstructure:"dsn"`        // postgres connection string
	Table      string `mapstructure:"table"`      // postgres chunk table
	Dimensions int    `mapstructure:"dimensions"` // embedding width for the pgvector column
}

// VectorStore couples an Index with the embedder that produced its vectors.
type VectorStore struct {
	index     Index
	embedder  llm.Embedder
	batchSize int
	log       *zap.SugaredLogger
}

// NewVectorStore wraps an index.
func NewVectorStore(index Index, embedder llm.Embedder, log *zap.SugaredLogger) *VectorStore {
	return &VectorStore{
		index:     index,
		embedder:  embedder,
		batchSize: DefaultEmbedBatch,
		log:       logging.OrNop(log),
	}
}

// Open builds the configured backend. A sqlite index is loaded from
// <Path>/index.db when present and created otherwise.
func Open(ctx context.Context, cfg IndexConfig, embedder llm.Embedder, log *zap.SugaredLogger) (*VectorStore, error) {
	var (
		index Index
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite index needs a directory")
		}
		index, err = OpenSQLiteDir(cfg.Path)
	case BackendPostgres:
		index, err = OpenPG(ctx, cfg.DSN, cfg.Table, cfg.Dimensions)
	case BackendMemory:
		index = NewMemoryIndex()
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewVectorStore(index, embedder, log), nil
}

// OpenExisting is Open for readers. It never creates an index: a missing
// sqlite file or postgres table is ErrIndexNotFound, and so is any memory
// index since those only live as long as the set that created them.
func OpenExisting(ctx context.Context, cfg IndexConfig, embedder llm.Embedder, log *zap.SugaredLogger) (*VectorStore, error) {
	var (
		index Index
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite index needs a directory")
		}
		index, err = OpenSQLiteExisting(cfg.Path)
	case BackendPostgres:
		index, err = OpenPGExisting(ctx, cfg.DSN, cfg.Table, cfg.Dimensions)
	case BackendMemory:
		return nil, fmt.Errorf("%w: memory index", ErrIndexNotFound)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewVectorStore(index, embedder, log), nil
}

// Index returns the underlying index.
func (v *VectorStore) Index() Index { return v.index }

// AddDocuments embeds the documents in batches and stores them. It returns
// the chunk ids in input order.
func (v *VectorStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	chunks := make([]Chunk, len(docs))
	for i, d := range docs {
		chunks[i] = ChunkFromDocument(d)
	}
	if err := v.AddChunks(ctx, chunks); err != nil {
		return nil, err
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}

// AddChunks embeds chunks that have no vector yet and stores all of them.
func (v *VectorStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	for start := 0; start < len(chunks); start += v.batchSize {
		end := start + v.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		var texts []string
		var pending []int
		for i, c := range batch {
			if len(c.Embedding) == 0 {
				texts = append(texts, c.Content)
				pending = append(pending, i)
			}
		}
		if len(texts) > 0 {
			vecs, err := v.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
			}
			for j, i := range pending {
				batch[i].Embedding = vecs[j]
			}
		}
		if err := v.index.Add(ctx, batch); err != nil {
			return err
		}
		v.log.Debugw("stored chunk batch", "from", start, "to", end)
	}
	return nil
}

// SimilaritySearchWithScore returns the k chunks closest to the query.
func (v *VectorStore) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	vec, err := v.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return v.index.Search(ctx, vec, k)
}

// SimilaritySearch returns the k closest documents, best first.
func (v *VectorStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	hits, err := v.SimilaritySearchWithScore(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.ToDocument()
	}
	return docs, nil
}

// Count returns the number of stored chunks.
func (v *VectorStore) Count(ctx context.Context) (int, error) {
	return v.index.Count(ctx)
}

func (v *VectorStore) Close() error {
	return v.index.Close()
}
