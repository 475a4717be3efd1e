package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// IndexFileName is the database file inside an index directory.
const IndexFileName = "index.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	asset_id   TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	page       INTEGER NOT NULL DEFAULT 0,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// SQLiteIndex persists chunks in a single SQLite file. Search is a full scan
// with cosine similarity, which is adequate for a few documents per company.
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

var _ Index = (*SQLiteIndex)(nil)

// OpenSQLiteDir opens <dir>/index.db, creating the directory and the
// database when they do not exist and reusing them otherwise.
func OpenSQLiteDir(dir string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return OpenSQLite(filepath.Join(dir, IndexFileName))
}

// OpenSQLiteExisting opens <dir>/index.db for reading. Unlike OpenSQLiteDir
// it fails with ErrIndexNotFound when the file was never created.
func OpenSQLiteExisting(dir string) (*SQLiteIndex, error) {
	path := filepath.Join(dir, IndexFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat index database: %w", err)
	}
	return OpenSQLite(path)
}

// OpenSQLite opens the database at path (":memory:" for a throwaway index).
func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return &SQLiteIndex{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteIndex) Path() string { return s.path }

func (s *SQLiteIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, asset_id, content, source, page, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			asset_id = excluded.asset_id,
			content = excluded.content,
			source = excluded.source,
			page = excluded.page,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

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
		if _, err := stmt.ExecContext(ctx, c.ID, c.AssetID, c.Content, c.Source, c.Page,
			string(meta), encodeVector(c.Embedding), created.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk '%s': %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, asset_id, content, source, page, metadata, embedding, created_at FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c       Chunk
			meta    string
			blob    []byte
			created int64
		)
		if err := rows.Scan(&c.ID, &c.AssetID, &c.Content, &c.Source, &c.Page, &meta, &blob, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
				return nil, fmt.Errorf("corrupt metadata for chunk '%s': %w", c.ID, err)
			}
		}
		c.Embedding = decodeVector(blob)
		c.CreatedAt = time.Unix(created, 0)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankTopK(chunks, embedding, k), nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// DeleteSource removes every chunk of one source file, so a document can be
// re-ingested without duplicates.
func (s *SQLiteIndex) DeleteSource(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks of %s: %w", source, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
