// Package hashing implements a stateless feature-hashing vectorizer.
//
// Every surviving unigram is hashed into one of a fixed number of buckets and
// counted; the resulting vector is L2-normalised so that inner product equals
// cosine similarity. Distinct words may collide in a bucket, which is accepted
// as an approximation. No corpus fit is needed, so documents can be indexed
// incrementally and queries are always comparable with earlier ingests made
// under the same dimensionality.
package hashing

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"rentbot/internal/domain"
)

// DefaultDimension is the default number of hash buckets.
const DefaultDimension = 1024

var _ domain.Vectorizer = (*Vectorizer)(nil)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Vectorizer is a feature-hashing text vectorizer over word unigrams.
type Vectorizer struct {
	dimension int
	stopwords map[string]struct{}
}

// New creates a vectorizer with the given number of buckets.
func New(dimension int) *Vectorizer {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Vectorizer{
		dimension: dimension,
		stopwords: defaultStopwords(),
	}
}

// Name returns the identifier of this vectorizer implementation.
func (v *Vectorizer) Name() string { return "hashing" }

// Dimension returns the length of every produced vector.
func (v *Vectorizer) Dimension() int { return v.dimension }

// Vectorize returns one unit-length vector per text. Texts without any
// surviving token map to the zero vector.
func (v *Vectorizer) Vectorize(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = v.vectorize(text)
	}
	return out
}

func (v *Vectorizer) vectorize(text string) []float32 {
	counts := make([]float64, v.dimension)
	for _, tok := range v.Tokenize(text) {
		counts[v.bucket(tok)]++
	}
	norm := 0.0
	for _, c := range counts {
		norm += c * c
	}
	vec := make([]float32, v.dimension)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, c := range counts {
		vec[i] = float32(c / norm)
	}
	return vec
}

func (v *Vectorizer) bucket(token string) int {
	return int(xxhash.Sum64String(token) % uint64(v.dimension))
}

// Tokenize lowercases text and returns its word tokens of two or more
// characters with stop words removed.
func (v *Vectorizer) Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if utf8.RuneCountInString(t) < 2 {
			continue
		}
		if _, isStop := v.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "whose", "when", "where", "why", "how", "do", "does", "did", "doing", "has", "have", "had", "having", "i", "me", "my", "we", "our", "you", "your", "he", "him", "his", "she", "her", "they", "them", "their", "not", "no", "nor", "any", "all", "each", "some", "there", "here", "am", "would", "could", "may", "might", "must", "shall",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
