// Package vector implements VectorIndex: an optional dense-vector
// nearest-neighbor store over Message/Summary embeddings. With
// enableVectorIndex off no index is built and search runs FTS-only; with
// it on, an unconfigured or unreachable Qdrant backend falls back to the
// InMemory index.
package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	cmerrors "github.com/convomem/convomem/pkg/errors"
)

// Result is one nearest-neighbor match.
type Result struct {
	ID         string
	Similarity float64 // cosine similarity in [-1,1]
}

// VectorIndex is implemented by the in-memory default and the optional
// qdrant-backed store.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)
	Available() bool
	Close() error
}

// InMemory is a process-local VectorIndex backed by a flat slice scan. It is
// the zero-dependency fallback: adequate for the dataset sizes a single
// SQLite file targets, and always "available" once constructed.
type InMemory struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewInMemory builds an empty in-memory vector index.
func NewInMemory() *InMemory {
	return &InMemory{vectors: make(map[string][]float32)}
}

// Upsert stores or replaces the vector for id.
func (m *InMemory) Upsert(_ context.Context, id string, vector []float32) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.vectors[id] = cp
	m.mu.Unlock()
	return nil
}

// Delete removes id's vector, if present.
func (m *InMemory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.vectors, id)
	m.mu.Unlock()
	return nil
}

// Search returns the k nearest vectors by cosine similarity, descending.
// filter is accepted for interface parity with the qdrant backend but is
// unused: InMemory has no payload store to filter against.
func (m *InMemory) Search(_ context.Context, query []float32, k int, _ map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.vectors))
	for id, v := range m.vectors {
		results = append(results, Result{ID: id, Similarity: cosineSimilarity(query, v)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Available always reports true for the in-memory backend.
func (m *InMemory) Available() bool { return true }

// Close is a no-op for the in-memory backend.
func (m *InMemory) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
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

// errUnavailable is returned by a configured-but-unreachable backend so
// SearchEngine can fall back and attribute the reason.
func errUnavailable(cause error) error {
	return cmerrors.Wrap(cmerrors.ExternalProviderUnavailable, cause, "vector index unavailable")
}
