package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/abadealex/scriptmark/internal/textutil"
	"github.com/abadealex/scriptmark/pkg/similarity"
)

// Policy selects how a free-text answer is turned into marks.
type Policy string

const (
	// PolicyKeyword awards marks from the weighted keyword rubric alone.
	PolicyKeyword Policy = "keyword"
	// PolicySimilarity bands the best semantic similarity into full,
	// proportional or zero marks.
	PolicySimilarity Policy = "similarity"
	// PolicyBlended averages the keyword and similarity signals.
	PolicyBlended Policy = "blended"
)

// ErrInvalidPolicy is returned when the configured scoring policy is not one
// of the supported values.
var ErrInvalidPolicy = errors.New("invalid scoring policy")

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyKeyword:
		return PolicyKeyword, nil
	case PolicySimilarity:
		return PolicySimilarity, nil
	case PolicyBlended:
		return PolicyBlended, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Config tunes the scoring engine.
type Config struct {
	Policy Policy
	// SimilarityThreshold is the lower band edge for proportional credit.
	SimilarityThreshold float64
	// FullCreditThreshold is the band edge above which the answer earns
	// full marks under the similarity policy.
	FullCreditThreshold float64
}

// DefaultConfig returns the banded similarity policy with its standard edges.
func DefaultConfig() Config {
	return Config{
		Policy:              PolicySimilarity,
		SimilarityThreshold: 0.75,
		FullCreditThreshold: 0.95,
	}
}

// QuestionResult is the outcome for a single question.
type QuestionResult struct {
	QuestionID string   `json:"question_id"`
	Answer     string   `json:"answer"`
	Score      float64  `json:"score"`
	MaxScore   float64  `json:"max_score"`
	Similarity float64  `json:"similarity,omitempty"`
	Matched    []string `json:"matched_keywords,omitempty"`
	Correct    bool     `json:"correct"`
	Feedback   string   `json:"feedback"`
	// Explanations carries the rubric explanations for keywords the answer
	// missed, so lost marks can be justified to the student.
	Explanations []string `json:"explanations,omitempty"`
}

// Result aggregates a scored submission.
type Result struct {
	Questions  []QuestionResult `json:"questions"`
	Total      float64          `json:"total"`
	MaxTotal   float64          `json:"max_total"`
	Percentage float64          `json:"percentage"`
	Summary    string           `json:"summary"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Engine scores free-text answer blocks against a grading key.
type Engine struct {
	cfg      Config
	provider similarity.Provider
	logger   zerolog.Logger
}

// NewEngine validates the configuration and builds a scoring engine. The
// similarity provider may be nil only under the keyword policy.
func NewEngine(cfg Config, provider similarity.Provider, logger zerolog.Logger) (*Engine, error) {
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.FullCreditThreshold <= 0 {
		cfg.FullCreditThreshold = 0.95
	}
	if cfg.SimilarityThreshold > 1 || cfg.FullCreditThreshold > 1 {
		return nil, fmt.Errorf("scoring thresholds must be in (0, 1]")
	}
	if cfg.Policy != PolicyKeyword && provider == nil {
		return nil, fmt.Errorf("policy %q requires a similarity provider", cfg.Policy)
	}
	return &Engine{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With().Str("component", "scoring").Logger(),
	}, nil
}

// ScoreSubmission scores one submission's answer blocks against the key.
// Answers align to questions by position; a missing or blank answer earns
// zero marks without consulting the similarity provider.
func (e *Engine) ScoreSubmission(ctx context.Context, answers []string, key Key) (Result, error) {
	tracer := otel.Tracer("scriptmark.scoring")
	ctx, span := tracer.Start(ctx, "scoring.ScoreSubmission")
	defer span.End()

	if len(key.Questions) == 0 {
		span.SetStatus(codes.Error, ErrEmptyKey.Error())
		return Result{}, ErrEmptyKey
	}
	if len(answers) > len(key.Questions) {
		e.logger.Warn().
			Int("answers", len(answers)).
			Int("questions", len(key.Questions)).
			Msg("more answer blocks than questions; extras ignored")
	}

	res := Result{Questions: make([]QuestionResult, 0, len(key.Questions))}
	for qi, q := range key.Questions {
		answer := ""
		if qi < len(answers) {
			answer = strings.TrimSpace(answers[qi])
		}
		qr, err := e.scoreQuestion(ctx, answer, q)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, fmt.Errorf("score question %q: %w", q.ID, err)
		}
		res.Questions = append(res.Questions, qr)
		res.Total += qr.Score
		res.MaxTotal += qr.MaxScore
	}

	res.Total = round2(res.Total)
	res.MaxTotal = round2(res.MaxTotal)
	if res.MaxTotal > 0 {
		res.Percentage = round2(res.Total / res.MaxTotal * 100)
	} else {
		warning := "max total is zero; percentage degraded to 0"
		res.Warnings = append(res.Warnings, warning)
		e.logger.Warn().Msg(warning)
	}
	res.Summary = e.summarize(res.Questions, len(answers))

	span.SetAttributes(
		attribute.Int("scoring.questions", len(res.Questions)),
		attribute.Float64("scoring.total", res.Total),
		attribute.Float64("scoring.percentage", res.Percentage),
	)
	return res, nil
}

func (e *Engine) scoreQuestion(ctx context.Context, answer string, q Question) (QuestionResult, error) {
	qr := QuestionResult{QuestionID: q.ID, Answer: answer, MaxScore: q.MaxScore}
	if answer == "" {
		qr.Feedback = "No answer provided."
		return qr, nil
	}

	kwScore, matched := keywordSignal(answer, q.Keywords)
	qr.Matched = matched
	if e.cfg.Policy != PolicySimilarity {
		qr.Explanations = missedExplanations(q.Keywords, matched)
	}

	switch e.cfg.Policy {
	case PolicyKeyword:
		qr.Score = round2(math.Min(q.MaxScore, kwScore*q.MaxScore))
		qr.Feedback = keywordFeedback(matched)
	case PolicySimilarity:
		sim, err := e.bestSimilarity(ctx, answer, q.Answers)
		if err != nil {
			return QuestionResult{}, err
		}
		qr.Similarity = sim
		switch {
		case sim >= e.cfg.FullCreditThreshold:
			qr.Score = q.MaxScore
			qr.Feedback = "Near-exact match."
		case sim >= e.cfg.SimilarityThreshold:
			qr.Score = round2(q.MaxScore * sim)
			qr.Feedback = fmt.Sprintf("Partial match (%d%%).", int(sim*100))
		default:
			qr.Score = 0
			qr.Feedback = "Answer does not match the expected response."
		}
	case PolicyBlended:
		sim, err := e.bestSimilarity(ctx, answer, q.Answers)
		if err != nil {
			return QuestionResult{}, err
		}
		qr.Similarity = sim
		qr.Score = round2((0.5*kwScore + 0.5*sim) * q.MaxScore)
		qr.Feedback = fmt.Sprintf("%s Similarity %d%%.", keywordFeedback(matched), int(sim*100))
	}
	qr.Correct = q.MaxScore > 0 && qr.Score >= q.MaxScore
	return qr, nil
}

// bestSimilarity compares the answer against every model answer and keeps
// the highest score.
func (e *Engine) bestSimilarity(ctx context.Context, answer string, expected []string) (float64, error) {
	best := 0.0
	cleaned := textutil.CleanText(answer)
	for _, want := range expected {
		score, err := e.provider.Compare(ctx, cleaned, textutil.CleanText(want))
		if err != nil {
			return 0, err
		}
		if score > best {
			best = score
		}
	}
	return best, nil
}

// keywordSignal returns the matched-weight fraction of the rubric and the
// rubric terms found in the answer.
func keywordSignal(answer string, keywords []Keyword) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}
	lower := strings.ToLower(answer)
	totalWeight := 0.0
	matchedWeight := 0.0
	var matched []string
	for _, kw := range keywords {
		totalWeight += kw.Weight
		if strings.Contains(lower, strings.ToLower(kw.Text)) {
			matchedWeight += kw.Weight
			matched = append(matched, kw.Text)
		}
	}
	if totalWeight == 0 {
		return 0, matched
	}
	return matchedWeight / totalWeight, matched
}

// missedExplanations collects the rubric explanations of keywords absent
// from the answer.
func missedExplanations(keywords []Keyword, matched []string) []string {
	found := make(map[string]struct{}, len(matched))
	for _, m := range matched {
		found[m] = struct{}{}
	}
	var explanations []string
	for _, kw := range keywords {
		if _, ok := found[kw.Text]; ok {
			continue
		}
		if kw.Explanation != "" {
			explanations = append(explanations, kw.Explanation)
		}
	}
	return explanations
}

func keywordFeedback(matched []string) string {
	if len(matched) == 0 {
		return "Matched keywords: None."
	}
	sorted := append([]string(nil), matched...)
	sort.Strings(sorted)
	return fmt.Sprintf("Matched keywords: %s.", strings.Join(sorted, ", "))
}

// summarize buckets question outcomes. Every bucket is named even when its
// count is zero.
func (e *Engine) summarize(questions []QuestionResult, answered int) string {
	if answered == 0 {
		return "No answers provided."
	}
	correct, partial, incorrect := 0, 0, 0
	for _, q := range questions {
		switch {
		case q.Correct:
			correct++
		case q.Score > 0:
			partial++
		default:
			incorrect++
		}
	}
	return fmt.Sprintf("You got: %d correct, %d partial, %d incorrect.", correct, partial, incorrect)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
