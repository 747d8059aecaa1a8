package scoring

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abadealex/scriptmark/pkg/similarity"
)

func fixedProvider(score float64) similarity.Provider {
	return similarity.Func(func(ctx context.Context, a, b string) (float64, error) {
		return score, nil
	})
}

func newTestEngine(t *testing.T, cfg Config, provider similarity.Provider) *Engine {
	t.Helper()
	eng, err := NewEngine(cfg, provider, zerolog.Nop())
	require.NoError(t, err)
	return eng
}

func TestLoadKey(t *testing.T) {
	raw := `[
		{
			"id": "q1",
			"question": "Define density.",
			"answers": ["Mass per unit volume."],
			"rubric": [
				{"keyword": "mass", "weight": 1.0},
				{"keyword": "volume"}
			],
			"max_marks": 3
		}
	]`

	key, err := LoadKey(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, key.Questions, 1)

	q := key.Questions[0]
	assert.Equal(t, "q1", q.ID)
	assert.Equal(t, 3.0, q.MaxScore)
	require.Len(t, q.Keywords, 2)
	assert.Equal(t, 1.0, q.Keywords[1].Weight, "weight should default to 1")
	assert.Equal(t, 3.0, key.MaxTotal())
}

func TestLoadKeyRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty array", `[]`},
		{"missing id", `[{"max_marks": 2}]`},
		{"negative marks", `[{"id": "q1", "max_marks": -1}]`},
		{"not json", `nope`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadKey(strings.NewReader(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestKeywordPolicy(t *testing.T) {
	eng := newTestEngine(t, Config{Policy: PolicyKeyword}, nil)
	key := Key{Questions: []Question{{
		ID: "q1",
		Keywords: []Keyword{
			{Text: "density", Weight: 1},
			{Text: "mass", Weight: 1},
			{Text: "volume", Weight: 1},
		},
		MaxScore: 3,
	}}}

	res, err := eng.ScoreSubmission(context.Background(), []string{"Density is found by dividing by volume."}, key)
	require.NoError(t, err)
	require.Len(t, res.Questions, 1)

	q := res.Questions[0]
	assert.InDelta(t, 2.0, q.Score, 1e-9)
	assert.Equal(t, "Matched keywords: density, volume.", q.Feedback)
	assert.InDelta(t, 2.0, res.Total, 1e-9)
	assert.InDelta(t, 66.67, res.Percentage, 1e-9)
}

func TestKeywordPolicyNoMatches(t *testing.T) {
	eng := newTestEngine(t, Config{Policy: PolicyKeyword}, nil)
	key := Key{Questions: []Question{{
		ID:       "q1",
		Keywords: []Keyword{{Text: "osmosis", Weight: 1, Explanation: "Water moves across the membrane by osmosis."}},
		MaxScore: 2,
	}}}

	res, err := eng.ScoreSubmission(context.Background(), []string{"Something else entirely."}, key)
	require.NoError(t, err)
	assert.Zero(t, res.Questions[0].Score)
	assert.Equal(t, "Matched keywords: None.", res.Questions[0].Feedback)
	require.Len(t, res.Questions[0].Explanations, 1)
	assert.Contains(t, res.Questions[0].Explanations[0], "osmosis")
}

func TestSimilarityPolicyBands(t *testing.T) {
	key := Key{Questions: []Question{{
		ID:       "q1",
		Answers:  []string{"Mass per unit volume."},
		MaxScore: 5,
	}}}

	cases := []struct {
		name     string
		sim      float64
		score    float64
		feedback string
	}{
		{"full credit", 0.97, 5.0, "Near-exact match."},
		{"partial credit", 0.82, 4.1, "Partial match (82%)."},
		{"no credit", 0.4, 0.0, "Answer does not match the expected response."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := newTestEngine(t, DefaultConfig(), fixedProvider(tc.sim))
			res, err := eng.ScoreSubmission(context.Background(), []string{"some answer"}, key)
			require.NoError(t, err)
			q := res.Questions[0]
			assert.InDelta(t, tc.score, q.Score, 1e-9)
			assert.Equal(t, tc.feedback, q.Feedback)
			assert.InDelta(t, tc.sim, q.Similarity, 1e-9)
			assert.Equal(t, tc.score == 5.0, q.Correct)
		})
	}
}

func TestBlendedPolicy(t *testing.T) {
	eng := newTestEngine(t, Config{Policy: PolicyBlended}, fixedProvider(0.8))
	key := Key{Questions: []Question{{
		ID:       "q1",
		Answers:  []string{"Mass per unit volume."},
		Keywords: []Keyword{{Text: "mass", Weight: 1}, {Text: "volume", Weight: 1}},
		MaxScore: 4,
	}}}

	res, err := eng.ScoreSubmission(context.Background(), []string{"It involves mass."}, key)
	require.NoError(t, err)

	// keyword signal 0.5, similarity 0.8: (0.5*0.5 + 0.5*0.8) * 4 = 2.6
	q := res.Questions[0]
	assert.InDelta(t, 2.6, q.Score, 1e-9)
	assert.Contains(t, q.Feedback, "Matched keywords: mass.")
	assert.Contains(t, q.Feedback, "Similarity 80%.")
}

func TestMissingAnswerSkipsProvider(t *testing.T) {
	calls := 0
	provider := similarity.Func(func(ctx context.Context, a, b string) (float64, error) {
		calls++
		return 1, nil
	})
	eng := newTestEngine(t, DefaultConfig(), provider)
	key := Key{Questions: []Question{
		{ID: "q1", Answers: []string{"first"}, MaxScore: 2},
		{ID: "q2", Answers: []string{"second"}, MaxScore: 2},
	}}

	res, err := eng.ScoreSubmission(context.Background(), []string{"an answer", "  "}, key)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "blank answer should not reach the provider")
	assert.Zero(t, res.Questions[1].Score)
	assert.Equal(t, "No answer provided.", res.Questions[1].Feedback)
}

func TestSummaryNamesEveryBucket(t *testing.T) {
	key := Key{Questions: []Question{
		{ID: "q1", Answers: []string{"a"}, MaxScore: 5},
		{ID: "q2", Answers: []string{"b"}, MaxScore: 5},
		{ID: "q3", Answers: []string{"c"}, MaxScore: 5},
	}}
	sims := map[string]float64{"one": 0.99, "two": 0.96, "three": 0.1}
	provider := similarity.Func(func(ctx context.Context, a, b string) (float64, error) {
		return sims[a], nil
	})
	eng := newTestEngine(t, DefaultConfig(), provider)

	res, err := eng.ScoreSubmission(context.Background(), []string{"one", "two", "three"}, key)
	require.NoError(t, err)

	assert.Equal(t, "You got: 2 correct, 0 partial, 1 incorrect.", res.Summary)
	assert.InDelta(t, 10.0, res.Total, 1e-9)
	assert.InDelta(t, 66.67, res.Percentage, 1e-9)
}

func TestEmptySubmission(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), fixedProvider(1))
	key := Key{Questions: []Question{{ID: "q1", Answers: []string{"a"}, MaxScore: 5}}}

	res, err := eng.ScoreSubmission(context.Background(), nil, key)
	require.NoError(t, err)
	assert.Equal(t, "No answers provided.", res.Summary)
	assert.Zero(t, res.Total)
}

func TestZeroMaxTotalWarnsInsteadOfFailing(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), fixedProvider(1))
	key := Key{Questions: []Question{{ID: "q1", Answers: []string{"a"}, MaxScore: 0}}}

	res, err := eng.ScoreSubmission(context.Background(), []string{"whatever"}, key)
	require.NoError(t, err)
	assert.Zero(t, res.Percentage)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "max total is zero")
}

func TestScoreSubmissionEmptyKey(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), fixedProvider(1))
	_, err := eng.ScoreSubmission(context.Background(), []string{"a"}, Key{})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Config{Policy: "magic"}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = NewEngine(Config{Policy: PolicySimilarity}, nil, zerolog.Nop())
	assert.Error(t, err, "similarity policy needs a provider")

	_, err = NewEngine(Config{Policy: PolicyKeyword}, nil, zerolog.Nop())
	assert.NoError(t, err)
}

func TestAlignAnswers(t *testing.T) {
	key := Key{Questions: []Question{
		{ID: "q1", Prompt: "Define density"},
		{ID: "q2", Prompt: "State the unit of force"},
	}}
	blocks := []string{"State the unit of force", "Define density"}

	aligned, err := AlignAnswers(context.Background(), similarity.Local{}, blocks, key, 0.7)
	require.NoError(t, err)
	require.Len(t, aligned, 2)
	assert.Equal(t, "Define density", aligned[0])
	assert.Equal(t, "State the unit of force", aligned[1])
}

func TestAlignAnswersLeavesUnmatchedEmpty(t *testing.T) {
	key := Key{Questions: []Question{{ID: "q1", Prompt: "Explain photosynthesis"}}}
	blocks := []string{"completely unrelated scribble"}

	aligned, err := AlignAnswers(context.Background(), similarity.Local{}, blocks, key, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "", aligned[0])
}
