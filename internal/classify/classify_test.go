package classify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(cfg Config) *Classifier {
	return NewClassifier(cfg, zerolog.Nop())
}

func TestScoreEmptyPage(t *testing.T) {
	c := newTestClassifier(Config{})
	assert.Equal(t, 0.0, c.Score(nil, 0, true))
	assert.Equal(t, 0.0, c.Score([]string{"", "   ", "\t"}, 12, true))
}

func TestScoreCoverPage(t *testing.T) {
	c := newTestClassifier(Config{})
	lines := []string{
		"FINAL EXAMINATION",
		"Student Name: ______",
		"Student ID: ______",
		"Signature: ______",
		"Date: ______",
	}

	// Four distinct keyword hits in the first five lines saturate the keyword
	// signal, the title matches, and twelve structural lines cap the layout
	// signal: 0.4*1 + 0.3*1 + 0.3*1.
	assert.InDelta(t, 1.0, c.Score(lines, 12, true), 1e-9)
}

func TestScoreAnswerPage(t *testing.T) {
	c := newTestClassifier(Config{})
	lines := []string{
		"The volume of the cylinder was measured",
		"and the density computed from the mass.",
	}
	score := c.Score(lines, 0, true)
	assert.Less(t, score, c.Threshold())
}

func TestScoreRenormalisesWithoutLayout(t *testing.T) {
	c := newTestClassifier(Config{})
	lines := []string{
		"FINAL EXAMINATION",
		"Student Name: ______",
		"Student ID: ______",
		"Signature: ______",
		"Date: ______",
	}

	// Keyword and title both saturate; with the layout weight redistributed
	// the score must still reach 1.0 rather than topping out at 0.7.
	assert.InDelta(t, 1.0, c.Score(lines, 0, false), 1e-9)
}

func TestScoreLateKeywordsHalfWeight(t *testing.T) {
	c := newTestClassifier(Config{LayoutWeight: 0, KeywordWeight: 1, TitleWeight: 0})
	early := []string{"name", "id", "student", "signature"}
	late := []string{"x", "x", "x", "x", "x", "name", "id", "student", "signature"}

	require.InDelta(t, 1.0, c.Score(early, 0, true), 1e-9)
	assert.InDelta(t, 0.5, c.Score(late, 0, true), 1e-9)
}

func TestClassifyThreshold(t *testing.T) {
	c := newTestClassifier(Config{Threshold: 0.6})
	cover := []string{"EXAMINATION", "Name:", "ID:", "Signature:"}

	record := c.Classify(3, cover, 10, true)
	assert.Equal(t, 3, record.Index)
	assert.True(t, record.FrontPage)

	body := c.Classify(4, []string{"question two continued"}, 0, true)
	assert.False(t, body.FrontPage)
}
