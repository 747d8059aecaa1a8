package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abadealex/scriptmark/internal/roster"
	"github.com/abadealex/scriptmark/internal/textutil"
)

// ErrAmbiguous marks a segment whose best candidates tie: the match is routed
// to manual review instead of guessing.
var ErrAmbiguous = errors.New("unresolved: ambiguous match")

// PolicyKind selects the matching cascade used for a whole session.
type PolicyKind int

const (
	// PolicyIDOnly matches on the recognised student ID alone.
	PolicyIDOnly PolicyKind = iota
	// PolicyNameFallback tries the ID first, then falls back to the name.
	PolicyNameFallback
	// PolicyCombined additionally blends both scores when neither clears its
	// own threshold.
	PolicyCombined
)

// Policy is the explicit per-session matching mode. NameWeight only applies
// to the combined stage.
type Policy struct {
	Kind       PolicyKind
	NameWeight float64
}

// IDOnlyPolicy matches on student IDs only.
func IDOnlyPolicy() Policy { return Policy{Kind: PolicyIDOnly} }

// NameFallbackPolicy matches on IDs with a fuzzy-name fallback.
func NameFallbackPolicy() Policy { return Policy{Kind: PolicyNameFallback} }

// CombinedPolicy blends ID and name similarity with the given name weight.
func CombinedPolicy(nameWeight float64) Policy {
	return Policy{Kind: PolicyCombined, NameWeight: nameWeight}
}

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(s string, nameWeight float64) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id":
		return IDOnlyPolicy(), nil
	case "name", "name-fallback":
		return NameFallbackPolicy(), nil
	case "combined":
		return CombinedPolicy(nameWeight), nil
	default:
		return Policy{}, fmt.Errorf("unknown match policy %q", s)
	}
}

// Thresholds are the minimum similarity ratios for an automatic match.
type Thresholds struct {
	ID   float64
	Name float64
}

// DefaultThresholds returns the production acceptance thresholds.
func DefaultThresholds() Thresholds { return Thresholds{ID: 0.85, Name: 0.8} }

// combined returns the acceptance threshold for the blended stage.
func (t Thresholds) combined() float64 { return (t.ID + t.Name) / 2 }

// Method tags how a candidate was matched.
type Method string

const (
	MethodNone      Method = ""
	MethodIDExact   Method = "id-exact"
	MethodIDFuzzy   Method = "id-fuzzy"
	MethodNameFuzzy Method = "name-fuzzy"
	MethodCombined  Method = "combined"
)

// Candidate pairs a roster entry with the similarity evidence that admitted
// it under the session policy.
type Candidate struct {
	Entry     roster.Entry
	Score     float64
	Method    Method
	IDScore   float64
	NameScore float64
}

// Resolved reports whether the candidate carries an actual match.
func (c Candidate) Resolved() bool { return c.Method != MethodNone }

// Exact reports whether the admitted similarity was a perfect ratio.
func (c Candidate) Exact() bool { return c.Score >= 1.0 }

// Matcher scores extracted tokens against a fixed roster under one policy.
type Matcher struct {
	entries    []roster.Entry
	policy     Policy
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewMatcher validates the policy and builds a matcher for the session.
func NewMatcher(entries []roster.Entry, policy Policy, thresholds Thresholds, logger zerolog.Logger) (*Matcher, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	if thresholds.ID <= 0 || thresholds.ID > 1 || thresholds.Name <= 0 || thresholds.Name > 1 {
		return nil, fmt.Errorf("thresholds must be in (0,1]: %+v", thresholds)
	}
	if policy.Kind == PolicyCombined && (policy.NameWeight < 0 || policy.NameWeight > 1) {
		return nil, fmt.Errorf("combined name weight must be in [0,1], got %v", policy.NameWeight)
	}

	return &Matcher{
		entries:    entries,
		policy:     policy,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "identity_matcher").Logger(),
	}, nil
}

// Candidates scores ex against every roster entry and returns the entries
// admitted by the session policy, each tagged with the stage that admitted
// it. bestScore is the highest score observed even when nothing was admitted,
// for manual-review reporting.
func (m *Matcher) Candidates(ex Extracted) (admitted []Candidate, bestScore float64) {
	for _, entry := range m.entries {
		idScore := 0.0
		if ex.ID != "" {
			idScore = textutil.Ratio(ex.ID, entry.ID)
		}
		nameScore := 0.0
		if ex.Name != "" {
			nameScore = textutil.FoldRatio(ex.Name, entry.Name)
		}

		cand := Candidate{Entry: entry, IDScore: idScore, NameScore: nameScore}
		switch {
		case ex.ID != "" && idScore >= m.thresholds.ID:
			cand.Score = idScore
			cand.Method = MethodIDFuzzy
			if idScore >= 1.0 {
				cand.Method = MethodIDExact
			}
		case m.policy.Kind != PolicyIDOnly && ex.Name != "" && nameScore >= m.thresholds.Name:
			cand.Score = nameScore
			cand.Method = MethodNameFuzzy
		case m.policy.Kind == PolicyCombined && (ex.ID != "" || ex.Name != ""):
			w := m.policy.NameWeight
			blended := (1-w)*idScore + w*nameScore
			if blended >= m.thresholds.combined() {
				cand.Score = blended
				cand.Method = MethodCombined
			}
		}

		if score := maxSignal(cand); score > bestScore {
			bestScore = score
		}
		if cand.Resolved() {
			admitted = append(admitted, cand)
		}
	}
	return admitted, bestScore
}

// Match resolves a single segment against the roster without the global
// assignment pass. It returns the best admitted candidate, an unresolved
// zero candidate when nothing clears the thresholds, or ErrAmbiguous when
// the top candidates tie on distinct entries.
func (m *Matcher) Match(ex Extracted) (Candidate, error) {
	admitted, bestScore := m.Candidates(ex)
	if len(admitted) == 0 {
		return Candidate{Score: bestScore}, nil
	}

	best := admitted[0]
	tied := false
	for _, cand := range admitted[1:] {
		switch {
		case cand.Score > best.Score:
			best = cand
			tied = false
		case cand.Score == best.Score && cand.Entry.ID != best.Entry.ID:
			// Exact beats fuzzy; two exacts (or two equal fuzzies) stay tied.
			tied = true
		}
	}
	if tied {
		return Candidate{}, fmt.Errorf("%w: %q/%q", ErrAmbiguous, ex.ID, ex.Name)
	}

	m.logger.Debug().
		Str("method", string(best.Method)).
		Str("matched_id", best.Entry.ID).
		Float64("score", best.Score).
		Msg("segment matched")
	return best, nil
}

func maxSignal(c Candidate) float64 {
	s := c.IDScore
	if c.NameScore > s {
		s = c.NameScore
	}
	if c.Score > s {
		s = c.Score
	}
	return s
}
