// Package vectorstore defines the nearest-neighbour index used by retrieval scopes.
package vectorstore

import "rentbot/internal/domain"

// Index stores normalised vectors with aligned metadata and supports similarity search.
type Index interface {
	Dimension() int
	Len() int
	Add(vectors [][]float32, metas []domain.Metadata) error
	Search(query []float32, topK int) ([]domain.SearchResult, error)
}
