package dedup

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"docpipe/internal/domain"
	"docpipe/internal/port"
)

type memoryEntry struct {
	documentID uuid.UUID
	hash       string
	embedding  []float32
	result     *domain.ValidatedResult
}

// MemoryIndex is an in-process DuplicateIndex for single-node runs and
// tests. Exact hash matches win; with embeddings present it also matches by
// cosine similarity against the configured threshold.
type MemoryIndex struct {
	mu      sync.RWMutex
	byHash  map[string]*memoryEntry
	entries []*memoryEntry
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byHash: make(map[string]*memoryEntry)}
}

func (m *MemoryIndex) LookupSimilar(_ context.Context, contentHash string, embedding []float32, threshold float64) (*port.ExistingResultRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entry, ok := m.byHash[contentHash]; ok {
		return refOf(entry, 1.0), nil
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	var best *memoryEntry
	bestScore := threshold
	for _, entry := range m.entries {
		if len(entry.embedding) == 0 {
			continue
		}
		score := cosine(embedding, entry.embedding)
		if score >= bestScore {
			best = entry
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil
	}
	return refOf(best, bestScore), nil
}

func (m *MemoryIndex) Register(_ context.Context, contentHash string, embedding []float32, documentID uuid.UUID, result *domain.ValidatedResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry{
		documentID: documentID,
		hash:       contentHash,
		embedding:  embedding,
		result:     result,
	}
	m.byHash[contentHash] = entry
	m.entries = append(m.entries, entry)
	return nil
}

func refOf(entry *memoryEntry, score float64) *port.ExistingResultRef {
	return &port.ExistingResultRef{
		DocumentID:  entry.documentID,
		ContentHash: entry.hash,
		Score:       score,
		Result:      entry.result,
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
