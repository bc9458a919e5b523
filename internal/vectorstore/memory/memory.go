// Package memory is an append-only, brute-force inner-product index.
//
// Vectors and their metadata live in two positionally aligned slices: entry i
// of one always describes entry i of the other. Add validates a whole batch
// before touching either slice, so a failed call leaves the index unchanged.
//
// The mutex only serialises goroutines of one process. A snapshot written by
// Save is not safe for concurrent writers across processes; deployments that
// share one snapshot need an external lock or a single writer.
package memory

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"rentbot/internal/domain"
	"rentbot/internal/vectorstore"
)

const defaultTopK = 5

var _ vectorstore.Index = (*Index)(nil)

// Index is an in-memory vector index using inner product over unit vectors.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	metas     []domain.Metadata
}

// NewIndex creates an empty index accepting vectors of the given length.
func NewIndex(dimension int) *Index { return &Index{dimension: dimension} }

// Dimension returns the configured vector length.
func (s *Index) Dimension() int { return s.dimension }

// Len returns the number of entries.
func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Add appends normalised copies of vectors together with their metadata.
func (s *Index) Add(vectors [][]float32, metas []domain.Metadata) error {
	if len(vectors) != len(metas) {
		return fmt.Errorf("vectors and metadata length mismatch: %d != %d", len(vectors), len(metas))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("entry %d has length %d, index expects %d: %w", i, len(v), s.dimension, domain.ErrDimensionMismatch)
		}
		if metas[i].SourceID == "" {
			return fmt.Errorf("entry %d has no source id: %w", i, domain.ErrInvalidInput)
		}
		normalized[i] = normalize(v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = append(s.vectors, normalized...)
	s.metas = append(s.metas, metas...)
	return nil
}

// Search returns up to topK entries by descending inner product with the
// normalised query. Equal scores keep insertion order.
func (s *Index) Search(query []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query has length %d, index expects %d: %w", len(query), s.dimension, domain.ErrDimensionMismatch)
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	q := normalize(query)
	scores := make([]float64, len(s.vectors))
	idxs := make([]int, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], q)
		idxs[i] = i
	}
	slices.SortStableFunc(idxs, func(a, b int) int { return cmp.Compare(scores[b], scores[a]) })

	topK = min(topK, len(idxs))
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Metadata: s.metas[j], Score: scores[j]})
	}
	return results, nil
}

// normalize returns a unit-length copy of v; the zero vector stays zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
