// Package chunker splits extracted document text into overlapping passages.
package chunker

import (
	"strings"

	"rentbot/internal/domain"
)

const (
	// DefaultChunkSize is the default number of characters per chunk.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the default number of characters shared with the previous chunk.
	DefaultChunkOverlap = 100
)

var _ domain.Chunker = (*WindowChunker)(nil)

// WindowChunker splits text into fixed-size character windows with overlap.
// It has no notion of sentence or paragraph boundaries.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a chunker producing windows of size runes advancing by size-overlap.
func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	// Ensure overlap doesn't exceed chunk size
	if overlap >= size {
		overlap = size / 4
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// Size returns the window size in characters.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the number of characters shared between neighbouring windows.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk returns up to ceil((N-overlap)/(size-overlap)) windows for a text of N
// characters. Windows holding only whitespace are dropped and indexes stay
// contiguous.
func (c *WindowChunker) Chunk(sourceID, text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	step := c.size - c.overlap

	chunks := make([]domain.Chunk, 0, n/step+1)
	for start := 0; ; {
		end := min(start+c.size, n)
		if window := string(runes[start:end]); strings.TrimSpace(window) != "" {
			chunks = append(chunks, domain.Chunk{
				SourceID: sourceID,
				Index:    len(chunks),
				Text:     window,
			})
		}
		if end == n {
			break
		}
		start += step
	}
	return chunks
}
