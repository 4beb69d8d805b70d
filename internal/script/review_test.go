package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewBalancedDialogue(t *testing.T) {
	seg := Segment("Host: What did they find?\nExpert: A faster method.\nHost: How much faster?\nExpert: About ten times.")
	assert.Empty(t, Review(seg))
}

func TestReviewFallbackTierWarns(t *testing.T) {
	seg := Segment("One paragraph.\n\nAnother paragraph.")
	issues := Review(seg)
	require.Len(t, issues, 1)
	assert.Equal(t, "speakers", issues[0].Category)
}

func TestReviewUnbalanced(t *testing.T) {
	var b strings.Builder
	b.WriteString("Host: Welcome.\n")
	for i := 0; i < 9; i++ {
		b.WriteString("Expert: Another long explanation.\n")
	}

	issues := Review(Segment(b.String()))

	require.Len(t, issues, 1)
	assert.Equal(t, "balance", issues[0].Category)
	assert.Contains(t, issues[0].Message, "Host")
}

func TestReviewLongTurnAndFiller(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteString("Host: Great question, tell me more.\nExpert: That's a great point, and here is why.\n")
	}
	b.WriteString("Expert: " + strings.Repeat("word ", maxUtteranceWords+1))

	issues := Review(Segment(b.String()))

	var cats []string
	for _, is := range issues {
		cats = append(cats, is.Category)
	}
	assert.ElementsMatch(t, []string{"length", "filler"}, cats)
}

func TestReviewEmpty(t *testing.T) {
	assert.Nil(t, Review(Segmentation{Tier: ChunkFallback}))
}
