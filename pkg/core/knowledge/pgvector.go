package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPGTable is the chunk table used when none is configured.
const DefaultPGTable = "rag_chunks"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGIndex stores chunks in Postgres with the pgvector extension and lets the
// database order by cosine distance (<=>).
type PGIndex struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

var _ Index = (*PGIndex)(nil)

// OpenPG connects to dsn and prepares the chunk table for vectors of the
// given dimension.
func OpenPG(ctx context.Context, dsn, table string, dimensions int) (*PGIndex, error) {
	return openPG(ctx, dsn, table, dimensions, false)
}

// OpenPGExisting is OpenPG for readers: a missing chunk table is
// ErrIndexNotFound instead of being created.
func OpenPGExisting(ctx context.Context, dsn, table string, dimensions int) (*PGIndex, error) {
	return openPG(ctx, dsn, table, dimensions, true)
}

func openPG(ctx context.Context, dsn, table string, dimensions int, mustExist bool) (*PGIndex, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index database: %w", err)
	}
	if mustExist {
		if table == "" {
			table = DefaultPGTable
		}
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to look up chunk table: %w", err)
		}
		if !exists {
			pool.Close()
			return nil, fmt.Errorf("%w: table %s", ErrIndexNotFound, table)
		}
	}
	idx, err := NewPGIndex(ctx, pool, table, dimensions)
	if err != nil {
		pool.Close()
		return nil, err
	}
	idx.owned = true
	return idx, nil
}

// NewPGIndex uses an existing pool, which the caller keeps ownership of.
func NewPGIndex(ctx context.Context, pool *pgxpool.Pool, table string, dimensions int) (*PGIndex, error) {
	if table == "" {
		table = DefaultPGTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("pgvector index needs a positive dimension, got %d", dimensions)
	}

	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			asset_id   TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			page       INTEGER NOT NULL DEFAULT 0,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%[2]d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_source_idx ON %[1]s (source);`, table, dimensions)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create chunk table: %w", err)
	}
	return &PGIndex{pool: pool, table: table}, nil
}

func (p *PGIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, asset_id, content, source, page, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			page = EXCLUDED.page,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding;`, p.table)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk '%s' has no embedding", c.ID)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata of chunk '%s': %w", c.ID, err)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		batch.Queue(query, c.ID, c.AssetID, c.Content, c.Source, c.Page, meta, VectorLiteral(c.Embedding), created)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return nil
}

func (p *PGIndex) Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, asset_id, content, source, page, metadata, created_at,
		       1 - (embedding <=> $1::vector) AS score
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, p.table)

	rows, err := p.pool.Query(ctx, query, VectorLiteral(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var (
			sc   ScoredChunk
			meta []byte
		)
		if err := rows.Scan(&sc.ID, &sc.AssetID, &sc.Content, &sc.Source, &sc.Page, &meta, &sc.CreatedAt, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &sc.Metadata); err != nil {
				return nil, fmt.Errorf("corrupt metadata for chunk '%s': %w", sc.ID, err)
			}
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (p *PGIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Close releases the pool when the index opened it.
func (p *PGIndex) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}

// VectorLiteral formats v in pgvector's text input format, e.g. "[1,0.5,-2]".
func VectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v) * 8)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
