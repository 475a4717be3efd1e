// Package knowledge holds the chunked documents used for retrieval and the
// vector indexes that store them (in memory, SQLite or Postgres/pgvector).
package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ASSET TYPES
// =============================================================================

// AssetType identifies the loader used for a source file.
type AssetType string

const (
	AssetPDF  AssetType = "PDF"
	AssetWeb  AssetType = "WEB"  // saved HTML pages
	AssetText AssetType = "TEXT" // .txt and .md
)

// AssetStatus tracks the ingestion state of an asset
type AssetStatus string

const (
	StatusPending AssetStatus = "PENDING"
	StatusIndexed AssetStatus = "INDEXED"
	StatusError   AssetStatus = "ERROR"
)

// Metadata keys carried by chunks and documents.
const (
	MetaChunkID   = "chunk_id"
	MetaSource    = "source"
	MetaPage      = "page"
	MetaPageLabel = "page_label"
	MetaLanguage  = "language"
	MetaAssetID   = "asset_id"
)

// =============================================================================
// ASSET
// =============================================================================

// Asset is one ingested source document.
type Asset struct {
	ID     string      `json:"id"`
	Type   AssetType   `json:"type"`
	Name   string      `json:"name"`   // base name, e.g. "Repsol_2024_annual_report.pdf"
	Source string      `json:"source"` // path as given to the workflow
	Status AssetStatus `json:"status"`

	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Language string `json:"language,omitempty"`

	UploadedAt  time.Time  `json:"uploaded_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewAsset creates a pending asset with a fresh id.
func NewAsset(name string, assetType AssetType, source string) *Asset {
	return &Asset{
		ID:         uuid.NewString(),
		Type:       assetType,
		Name:       name,
		Source:     source,
		Status:     StatusPending,
		UploadedAt: time.Now(),
		Metadata:   make(map[string]interface{}),
	}
}

// MarkAsProcessed records a successful ingestion of n chunks.
func (a *Asset) MarkAsProcessed(chunks int) {
	now := time.Now()
	a.Status = StatusIndexed
	a.Chunks = chunks
	a.ProcessedAt = &now
}

// MarkAsError updates asset status after an ingestion failure
func (a *Asset) MarkAsError(errMsg string) {
	a.Status = StatusError
	if a.Metadata == nil {
		a.Metadata = make(map[string]interface{})
	}
	a.Metadata["error"] = errMsg
}

// =============================================================================
// DOCUMENTS AND CHUNKS
// =============================================================================

// Document is a piece of text with free-form metadata, as produced by the
// loaders and returned by similarity search.
type Document struct {
	ID       string                 `json:"id,omitempty"`
	Content  string                 `json:"page_content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Chunk is the stored unit of an index.
type Chunk struct {
	ID      string `json:"id"`
	AssetID string `json:"asset_id,omitempty"`
	Content string `json:"content"`

	// Position in the source document; Page is 1-based, 0 when unknown.
	Source string `json:"source"`
	Page   int    `json:"page"`

	Metadata map[string]string `json:"metadata,omitempty"`

	Embedding []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// ScoredChunk is a search hit; Score is the cosine similarity to the query.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// ToDocument exposes the chunk with its position folded into the metadata.
func (c Chunk) ToDocument() Document {
	meta := make(map[string]interface{}, len(c.Metadata)+3)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[MetaChunkID] = c.ID
	if c.Source != "" {
		meta[MetaSource] = c.Source
	}
	if c.Page > 0 {
		meta[MetaPage] = c.Page
	}
	return Document{ID: c.ID, Content: c.Content, Metadata: meta}
}

// ChunkFromDocument is the inverse of ToDocument. A missing id gets a new uuid.
func ChunkFromDocument(doc Document) Chunk {
	c := Chunk{
		ID:        doc.ID,
		Content:   doc.Content,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}
	for k, v := range doc.Metadata {
		switch k {
		case MetaSource:
			c.Source = fmt.Sprint(v)
		case MetaPage:
			c.Page = toInt(v)
		case MetaChunkID:
			if c.ID == "" {
				c.ID = fmt.Sprint(v)
			}
		case MetaAssetID:
			c.AssetID = fmt.Sprint(v)
		default:
			c.Metadata[k] = fmt.Sprint(v)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

// =============================================================================
// INDEX INTERFACE
// =============================================================================

// Index stores embedded chunks and answers nearest-neighbour queries.
// Chunks added to an index must already carry their embedding.
type Index interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
