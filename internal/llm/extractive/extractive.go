// Package extractive is an offline completion collaborator. Instead of
// generating text it quotes the context sentences that best overlap the
// question, which keeps the CLI and the evaluation command usable without
// network access or an API key.
package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"rentbot/internal/domain"
)

// NotFound is returned when no context sentence shares a word with the question.
const NotFound = "I could not find that in the document."

var (
	_ domain.Completer = (*Completer)(nil)

	unicodeWordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentenceRe    = regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`)
)

// Completer answers with the highest-scoring context sentences.
type Completer struct {
	maxSentences int
}

// New creates an extractive completer quoting up to maxSentences sentences.
func New(maxSentences int) *Completer {
	if maxSentences <= 0 {
		maxSentences = 2
	}
	return &Completer{maxSentences: maxSentences}
}

// Name returns the identifier of this completer implementation.
func (c *Completer) Name() string { return "extractive" }

// Complete ranks context sentences by Ochiai overlap with the question. The
// token budget is approximated as four characters per token.
func (c *Completer) Complete(ctx context.Context, prompt domain.Prompt, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &domain.GenerationError{Model: c.Name(), Err: err}
	}
	qset := toTokenSet(prompt.Question)
	sentences := splitSentences(prompt.Context)

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, 0, len(sentences))
	for i, s := range sentences {
		if score := overlapOchiai(qset, s); score > 0 {
			scores = append(scores, pair{i, score})
		}
	}
	if len(scores) == 0 {
		return NotFound, nil
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(c.maxSentences, len(scores))
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, p := range scores {
		if len(out) == n {
			break
		}
		s := sentences[p.idx]
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	answer := strings.Join(out, " ")
	if limit := maxTokens * 4; maxTokens > 0 && len(answer) > limit {
		answer = strings.TrimSpace(answer[:limit])
	}
	return answer, nil
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := stopwords[t]; stop {
			continue
		}
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := toTokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "it", "this", "that", "from", "what", "which", "who", "when", "where", "how", "do", "does", "i", "my", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
