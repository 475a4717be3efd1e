package knowledge

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// IN-MEMORY INDEX (tests and one-off runs)
// =============================================================================

// MemoryIndex keeps chunks in a slice and scans them on every search.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []Chunk
	byID   map[string]int
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byID: make(map[string]int)}
}

var _ Index = (*MemoryIndex)(nil)

// Add stores the chunks; a chunk whose id is already present replaces it.
func (m *MemoryIndex) Add(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk '%s' has no embedding", c.ID)
		}
		if i, ok := m.byID[c.ID]; ok {
			m.chunks[i] = c
			continue
		}
		m.byID[c.ID] = len(m.chunks)
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rankTopK(m.chunks, embedding, k), nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Get returns a chunk by id.
func (m *MemoryIndex) Get(id string) (Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return Chunk{}, false
	}
	return m.chunks[i], true
}

func (m *MemoryIndex) Close() error { return nil }
