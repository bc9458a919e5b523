// Package eval scores the question answering pipeline against a set of
// reference answers.
package eval

import (
	"regexp"
	"strings"

	"rentbot/internal/domain"
)

// Weights of the final score.
const (
	WeightRougeL = 0.4
	WeightExact  = 0.3
	WeightHit    = 0.3
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func words(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// RougeL returns the ROUGE-L F1 between reference and prediction, computed
// from the longest common subsequence of their lowercase words.
func RougeL(reference, prediction string) float64 {
	ref, pred := words(reference), words(prediction)
	if len(ref) == 0 || len(pred) == 0 {
		return 0
	}
	lcs := lcsLength(ref, pred)
	if lcs == 0 {
		return 0
	}
	precision := float64(lcs) / float64(len(pred))
	recall := float64(lcs) / float64(len(ref))
	return 2 * precision * recall / (precision + recall)
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// ExactMatch is 1 when the trimmed reference occurs in the prediction,
// ignoring case.
func ExactMatch(reference, prediction string) float64 {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(prediction), ref) {
		return 1
	}
	return 0
}

// RetrievalHit is the share of distinct reference words present in the
// retrieved context.
func RetrievalHit(reference string, results []domain.SearchResult) float64 {
	ref := map[string]struct{}{}
	for _, w := range words(reference) {
		ref[w] = struct{}{}
	}
	if len(ref) == 0 {
		return 0
	}
	ctx := map[string]struct{}{}
	for _, r := range results {
		for _, w := range words(r.Metadata.ChunkText) {
			ctx[w] = struct{}{}
		}
	}
	covered := 0
	for w := range ref {
		if _, ok := ctx[w]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(ref))
}

// FinalScore combines the three metrics.
func FinalScore(rougeL, exact, hit float64) float64 {
	return WeightRougeL*rougeL + WeightExact*exact + WeightHit*hit
}
