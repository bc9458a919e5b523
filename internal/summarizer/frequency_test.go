package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lease = "The tenant pays rent monthly. Rent is due on the first day. " +
	"The garden is shared. Late rent incurs a rent penalty."

func TestSummarize_KeepsDocumentOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize(lease, 2)
	require.NoError(t, err)

	parts := strings.SplitAfter(got, ".")
	require.GreaterOrEqual(t, len(parts), 2)
	assert.NotContains(t, got, "garden")
	first := strings.Index(lease, strings.TrimSpace(parts[0]))
	second := strings.Index(lease, strings.TrimSpace(parts[1]))
	assert.Less(t, first, second)
}

func TestSummarize_NoSentenceBoundary(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("  just a fragment without punctuation ", 3)
	require.NoError(t, err)
	assert.Equal(t, "just a fragment without punctuation", got)
}

func TestSummarize_FewerSentencesThanRequested(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("Only one sentence here.", 0)
	require.NoError(t, err)
	assert.Equal(t, "Only one sentence here.", got)
}

func TestTokens_DropsStopwords(t *testing.T) {
	s := NewFrequencySummarizer()
	assert.Equal(t, []string{"tenant", "pays", "rent"}, s.tokens("The tenant pays the rent"))
}
