package classify

import (
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abadealex/scriptmark/internal/textutil"
)

// DefaultKeywords are terms that commonly appear on a script's cover page.
var DefaultKeywords = []string{"name", "id", "student", "signature", "date", "index", "admission", "reg"}

var titlePattern = regexp.MustCompile(`(?i)\b(examination|exam)\b`)

// PageRecord is the classification outcome for a single rasterised page.
type PageRecord struct {
	Index     int
	Lines     []string
	Score     float64
	FrontPage bool
}

// Config tunes the front-page score. Weights apply to the keyword, layout and
// title signals; when no layout signal is available the keyword and title
// weights are renormalised to sum to one.
type Config struct {
	KeywordWeight float64
	LayoutWeight  float64
	TitleWeight   float64
	Threshold     float64
	// KeywordTarget is the raw keyword-hit mass treated as a full score.
	KeywordTarget float64
	// LayoutTarget is the structural-line count treated as a full score.
	LayoutTarget int
	Keywords     []string
}

// DefaultConfig returns the weights and threshold used in production.
func DefaultConfig() Config {
	return Config{
		KeywordWeight: 0.4,
		LayoutWeight:  0.3,
		TitleWeight:   0.3,
		Threshold:     0.5,
		KeywordTarget: 4,
		LayoutTarget:  10,
		Keywords:      DefaultKeywords,
	}
}

// Classifier scores pages by how likely they open a new student script.
type Classifier struct {
	cfg    Config
	logger zerolog.Logger
}

// NewClassifier builds a classifier, filling zero-valued config fields with
// the defaults.
func NewClassifier(cfg Config, logger zerolog.Logger) *Classifier {
	def := DefaultConfig()
	if cfg.KeywordWeight <= 0 && cfg.LayoutWeight <= 0 && cfg.TitleWeight <= 0 {
		cfg.KeywordWeight = def.KeywordWeight
		cfg.LayoutWeight = def.LayoutWeight
		cfg.TitleWeight = def.TitleWeight
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.KeywordTarget <= 0 {
		cfg.KeywordTarget = def.KeywordTarget
	}
	if cfg.LayoutTarget <= 0 {
		cfg.LayoutTarget = def.LayoutTarget
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = def.Keywords
	}

	return &Classifier{
		cfg:    cfg,
		logger: logger.With().Str("component", "front_page_classifier").Logger(),
	}
}

// Threshold exposes the configured decision threshold.
func (c *Classifier) Threshold() float64 { return c.cfg.Threshold }

// Score computes the front-page score in [0,1] for one page's recognised
// lines. layoutLines is the count of detected structural lines; pass
// hasLayout=false when the layout signal is unavailable, which renormalises
// the remaining weights instead of silently treating the count as zero.
func (c *Classifier) Score(lines []string, layoutLines int, hasLayout bool) float64 {
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := textutil.CleanText(l); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return 0
	}

	keywordScore := c.keywordScore(cleaned)

	titleScore := 0.0
	if titlePattern.MatchString(strings.Join(cleaned, "\n")) {
		titleScore = 1.0
	}

	kw, lay, title := c.cfg.KeywordWeight, c.cfg.LayoutWeight, c.cfg.TitleWeight
	layoutScore := 0.0
	if hasLayout {
		layoutScore = math.Min(float64(layoutLines)/float64(c.cfg.LayoutTarget), 1.0)
	} else {
		// Renormalise so the remaining two signals still sum to weight one.
		rest := kw + title
		if rest > 0 {
			kw /= rest
			title /= rest
		}
		lay = 0
	}

	score := kw*keywordScore + lay*layoutScore + title*titleScore
	return math.Round(score*1000) / 1000
}

// keywordScore counts vocabulary hits in the first min(10,N) lines. A hit in
// the first five lines carries full weight, one in lines six to ten half
// weight; the mass is normalised by KeywordTarget and capped at one.
func (c *Classifier) keywordScore(lines []string) float64 {
	limit := len(lines)
	if limit > 10 {
		limit = 10
	}

	hits := 0.0
	for _, kw := range c.cfg.Keywords {
		kw = strings.ToLower(kw)
		for i := 0; i < limit; i++ {
			if strings.Contains(strings.ToLower(lines[i]), kw) {
				if i < 5 {
					hits += 1.0
				} else {
					hits += 0.5
				}
				break
			}
		}
	}

	return math.Min(hits/c.cfg.KeywordTarget, 1.0)
}

// Classify scores a page and applies the decision threshold.
func (c *Classifier) Classify(index int, lines []string, layoutLines int, hasLayout bool) PageRecord {
	score := c.Score(lines, layoutLines, hasLayout)
	record := PageRecord{
		Index:     index,
		Lines:     lines,
		Score:     score,
		FrontPage: score >= c.cfg.Threshold,
	}
	c.logger.Debug().
		Int("page", index).
		Float64("score", score).
		Bool("front_page", record.FrontPage).
		Msg("page classified")
	return record
}
