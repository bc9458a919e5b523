// Package service is the retrieval pipeline: it turns uploads into indexed
// chunks and answers questions from the chunks most similar to them.
package service

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"rentbot/internal/domain"
	"rentbot/internal/llm"
	"rentbot/internal/logger"
)

const (
	// DefaultTopK is the number of chunks forwarded to the completer.
	DefaultTopK = 3
	// DefaultMaxTokens bounds the completion length.
	DefaultMaxTokens = 512
)

// RAGService wires the chunker, vectorizer, extractor and completer.
type RAGService struct {
	chunker    domain.Chunker
	vectorizer domain.Vectorizer
	extractor  domain.Extractor
	completer  domain.Completer
	summarizer domain.Summarizer
	maxTokens  int
}

// Option customises a RAGService.
type Option func(*RAGService)

// WithMaxTokens sets the completion token budget.
func WithMaxTokens(n int) Option {
	return func(s *RAGService) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithSummarizer enables Summarize.
func WithSummarizer(sum domain.Summarizer) Option {
	return func(s *RAGService) { s.summarizer = sum }
}

// NewRAGService creates a pipeline. The same vectorizer serves ingestion and
// queries, so every scope created through NewScope shares its dimension.
func NewRAGService(chunker domain.Chunker, vectorizer domain.Vectorizer, extractor domain.Extractor, completer domain.Completer, opts ...Option) *RAGService {
	s := &RAGService{
		chunker:    chunker,
		vectorizer: vectorizer,
		extractor:  extractor,
		completer:  completer,
		maxTokens:  DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewScope creates an empty scope sized for this pipeline's vectorizer.
func (s *RAGService) NewScope(id string) *Scope {
	return NewScope(id, s.vectorizer.Dimension())
}

// Dimension returns the vectorizer dimension.
func (s *RAGService) Dimension() int { return s.vectorizer.Dimension() }

// Ingest extracts, chunks and indexes doc into scope and returns the number
// of chunks added. A document already present in scope (same content and
// path) is skipped and reports zero chunks.
func (s *RAGService) Ingest(ctx context.Context, scope *Scope, doc domain.Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := documentKey(doc)
	if scope.has(key) {
		logger.Debug("scope %s: %s already ingested, skipping", scope.ID, doc.SourceID)
		return 0, nil
	}

	text, err := s.extract(ctx, doc)
	if err != nil {
		return 0, err
	}
	chunks := s.chunker.Chunk(doc.SourceID, text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%s: %w", doc.SourceID, domain.ErrEmptyDocument)
	}

	texts := make([]string, len(chunks))
	metas := make([]domain.Metadata, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		metas[i] = domain.Metadata{SourceID: ch.SourceID, ChunkText: ch.Text}
	}
	vectors := s.vectorizer.Vectorize(texts)
	if err := scope.add(key, vectors, metas); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", doc.SourceID, err)
	}
	logger.Info("scope %s: indexed %d chunks from %s", scope.ID, len(chunks), doc.SourceID)
	return len(chunks), nil
}

// extract reduces every extractor failure to ErrEmptyDocument.
func (s *RAGService) extract(ctx context.Context, doc domain.Document) (string, error) {
	text, err := s.extractor.Extract(ctx, doc.Raw, doc.Kind)
	if err != nil {
		logger.Warn("extracting %s: %v", doc.SourceID, err)
		return "", fmt.Errorf("%s: %w", doc.SourceID, domain.ErrEmptyDocument)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", doc.SourceID, domain.ErrEmptyDocument)
	}
	return text, nil
}

// Summarize returns an extractive summary of doc's text.
func (s *RAGService) Summarize(ctx context.Context, doc domain.Document, maxSentences int) (string, error) {
	if s.summarizer == nil {
		return "", nil
	}
	text, err := s.extract(ctx, doc)
	if err != nil {
		return "", err
	}
	return s.summarizer.Summarize(text, maxSentences)
}

// Retrieve searches every scope and merges the hits by descending score.
// Equal scores keep scope order, then insertion order within a scope.
func (s *RAGService) Retrieve(ctx context.Context, question string, topK int, scopes ...*Scope) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	indexed := slices.DeleteFunc(slices.Clone(scopes), func(sc *Scope) bool { return sc == nil || sc.Empty() })
	if len(indexed) == 0 {
		return nil, domain.ErrNotIndexed
	}

	query := s.vectorizer.Vectorize([]string{question})[0]
	var merged []domain.SearchResult
	for _, sc := range indexed {
		res, err := sc.Search(query, topK)
		if err != nil {
			return nil, fmt.Errorf("searching scope %s: %w", sc.ID, err)
		}
		merged = append(merged, res...)
	}
	slices.SortStableFunc(merged, func(a, b domain.SearchResult) int { return cmp.Compare(b.Score, a.Score) })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// BuildPrompt assembles the fixed instruction, the retrieved chunks in the
// given order and the question.
func BuildPrompt(question string, results []domain.SearchResult) domain.Prompt {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Metadata.ChunkText)
	}
	return domain.Prompt{
		Instruction: llm.Instruction,
		Context:     strings.Join(parts, "\n\n"),
		Question:    question,
	}
}

// Generate asks the completer to answer question from already retrieved
// results. The model text is returned verbatim.
func (s *RAGService) Generate(ctx context.Context, question string, results []domain.SearchResult) (string, error) {
	answer, err := s.completer.Complete(ctx, BuildPrompt(question, results), s.maxTokens)
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			return "", err
		}
		return "", &domain.GenerationError{Err: err}
	}
	return answer, nil
}

// Answer retrieves the topK chunks for question across scopes and returns
// the completer's answer.
func (s *RAGService) Answer(ctx context.Context, question string, topK int, scopes ...*Scope) (string, error) {
	results, err := s.Retrieve(ctx, question, topK, scopes...)
	if err != nil {
		return "", err
	}
	return s.Generate(ctx, question, results)
}

// documentKey identifies a document by content and origin.
func documentKey(doc domain.Document) string {
	origin := doc.Path
	if origin == "" {
		origin = doc.SourceID
	}
	return ContentHash(doc.Raw) + "|" + origin
}

// ContentHash returns the hex SHA-256 of raw.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
