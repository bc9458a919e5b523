package service

import (
	"fmt"
	"sync"

	"rentbot/internal/domain"
	"rentbot/internal/vectorstore/memory"
)

// Scope is one knowledge base: an index plus the set of documents already
// ingested into it.
type Scope struct {
	ID string

	mu    sync.Mutex
	index *memory.Index
	seen  map[string]struct{}
}

// NewScope creates an empty scope whose index accepts vectors of dimension.
func NewScope(id string, dimension int) *Scope {
	return &Scope{ID: id, index: memory.NewIndex(dimension), seen: map[string]struct{}{}}
}

// Len returns the number of indexed chunks.
func (s *Scope) Len() int { return s.index.Len() }

// Empty reports whether nothing has been indexed yet.
func (s *Scope) Empty() bool { return s.index.Len() == 0 }

// Search queries the scope's index.
func (s *Scope) Search(query []float32, topK int) ([]domain.SearchResult, error) {
	return s.index.Search(query, topK)
}

// Documents returns the number of distinct documents ingested.
func (s *Scope) Documents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *Scope) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// add indexes a batch and records key only when the batch was accepted.
func (s *Scope) add(key string, vectors [][]float32, metas []domain.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return nil
	}
	if err := s.index.Add(vectors, metas); err != nil {
		return err
	}
	s.seen[key] = struct{}{}
	return nil
}

type scopeSnapshot struct {
	ID    string
	Index memory.Snapshot
	Keys  []string
}

// Save writes the scope to path as a single gob snapshot.
func (s *Scope) Save(path string) error {
	s.mu.Lock()
	snap := scopeSnapshot{ID: s.ID, Index: s.index.Snapshot()}
	for k := range s.seen {
		snap.Keys = append(snap.Keys, k)
	}
	s.mu.Unlock()
	if err := memory.WriteFile(path, snap); err != nil {
		return fmt.Errorf("saving scope %s: %w", s.ID, err)
	}
	return nil
}

// LoadScope reads a scope written by Save.
func LoadScope(path string, dimension int) (*Scope, error) {
	var snap scopeSnapshot
	if err := memory.ReadFile(path, &snap); err != nil {
		return nil, fmt.Errorf("loading scope: %w", err)
	}
	s := NewScope(snap.ID, dimension)
	if err := s.index.Restore(snap.Index); err != nil {
		return nil, fmt.Errorf("loading scope %s: %w", snap.ID, err)
	}
	for _, k := range snap.Keys {
		s.seen[k] = struct{}{}
	}
	return s, nil
}
