package chunker

import (
	"regexp"
	"strings"

	"rentbot/internal/domain"
)

var _ domain.Chunker = (*SentenceChunker)(nil)

// SentenceChunker groups sentences into chunks with an overlap counted in sentences.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(sourceID, text string) []domain.Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	var sentences []string
	last := 0
	for _, loc := range c.splitter.FindAllStringIndex(trimmed, -1) {
		sentences = append(sentences, strings.TrimSpace(trimmed[loc[0]:loc[1]]))
		last = loc[1]
	}
	// Trailing text without terminal punctuation would otherwise be dropped.
	if tail := strings.TrimSpace(trimmed[last:]); tail != "" {
		sentences = append(sentences, tail)
	}

	var chunks []domain.Chunk
	for i, idx := 0, 0; i < len(sentences); idx++ {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, domain.Chunk{
			SourceID: sourceID,
			Index:    idx,
			Text:     strings.Join(sentences[i:end], " "),
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
