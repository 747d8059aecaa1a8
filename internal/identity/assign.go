package identity

import (
	"sort"

	"github.com/rs/zerolog"
)

// Resolution is the identity outcome for one segment after the global
// assignment pass.
type Resolution struct {
	SegmentIndex int
	Extracted    Extracted
	Candidate    Candidate // zero candidate when unresolved
	Ambiguous    bool
	BestScore    float64
}

// Resolved reports whether the segment was assigned a roster entry.
func (r Resolution) Resolved() bool { return r.Candidate.Resolved() }

// Resolver runs per-segment candidate scoring plus the session-wide greedy
// assignment that keeps every roster entry claimed at most once.
type Resolver struct {
	matcher *Matcher
	logger  zerolog.Logger
}

// NewResolver wraps a matcher for whole-session resolution.
func NewResolver(matcher *Matcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		matcher: matcher,
		logger:  logger.With().Str("component", "identity_resolver").Logger(),
	}
}

// Matcher exposes the underlying per-segment matcher.
func (r *Resolver) Matcher() *Matcher { return r.matcher }

// segmentScores is one row of the session score matrix.
type segmentScores struct {
	index     int
	extracted Extracted
	admitted  []Candidate
	ambiguous bool
	best      float64
}

// Resolve scores every segment and then runs the single-threaded greedy
// assignment over one sorted score matrix. The i-th element of firstPages
// holds the recognised lines of segment i's first page. The output is
// index-aligned with the input and deterministic for identical inputs.
func (r *Resolver) Resolve(firstPages [][]string) []Resolution {
	rows := make([]segmentScores, len(firstPages))
	for i, lines := range firstPages {
		ex := Extract(lines)
		admitted, best := r.matcher.Candidates(ex)
		rows[i] = segmentScores{
			index:     i,
			extracted: ex,
			admitted:  admitted,
			ambiguous: topTie(admitted),
			best:      best,
		}
		if rows[i].ambiguous {
			r.logger.Warn().
				Int("segment", i).
				Str("detected_id", ex.ID).
				Str("detected_name", ex.Name).
				Msg("ambiguous identity, needs manual review")
		}
	}
	return r.assign(rows)
}

// scoredPair is one cell of the flattened score matrix.
type scoredPair struct {
	segment   int
	candidate Candidate
}

// claims is the accumulator threaded through the greedy fold: the set of
// segments and roster entries consumed so far plus the assignments made.
type claims struct {
	segments map[int]struct{}
	entries  map[string]struct{}
	winners  map[int]Candidate
}

// assign flattens eligible (segment, entry) pairs, sorts them once, and folds
// over the sorted list consuming matches from the top. Accepting a pair
// removes both sides from the pool, so this step is deliberately sequential
// and deterministic; it is a greedy approximation, not an optimal bipartite
// matching.
func (r *Resolver) assign(rows []segmentScores) []Resolution {
	var pairs []scoredPair
	for _, row := range rows {
		if row.ambiguous {
			continue
		}
		for _, cand := range row.admitted {
			pairs = append(pairs, scoredPair{segment: row.index, candidate: cand})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.candidate.Score != b.candidate.Score {
			return a.candidate.Score > b.candidate.Score
		}
		if a.candidate.Exact() != b.candidate.Exact() {
			return a.candidate.Exact()
		}
		if a.segment != b.segment {
			return a.segment < b.segment
		}
		return a.candidate.Entry.ID < b.candidate.Entry.ID
	})

	acc := claims{
		segments: make(map[int]struct{}),
		entries:  make(map[string]struct{}),
		winners:  make(map[int]Candidate),
	}
	for _, pair := range pairs {
		acc = claim(acc, pair)
	}

	out := make([]Resolution, len(rows))
	for i, row := range rows {
		out[i] = Resolution{
			SegmentIndex: row.index,
			Extracted:    row.extracted,
			Ambiguous:    row.ambiguous,
			BestScore:    row.best,
		}
		if winner, ok := acc.winners[row.index]; ok {
			out[i].Candidate = winner
		}
	}
	return out
}

// claim is the fold step: it returns the accumulator extended with the pair
// when neither side has been consumed, and unchanged otherwise.
func claim(acc claims, pair scoredPair) claims {
	if _, taken := acc.segments[pair.segment]; taken {
		return acc
	}
	if _, taken := acc.entries[pair.candidate.Entry.ID]; taken {
		return acc
	}
	acc.segments[pair.segment] = struct{}{}
	acc.entries[pair.candidate.Entry.ID] = struct{}{}
	acc.winners[pair.segment] = pair.candidate
	return acc
}

// topTie reports whether the two best admitted candidates tie on distinct
// entries, which makes the segment ambiguous.
func topTie(admitted []Candidate) bool {
	if len(admitted) < 2 {
		return false
	}
	best, second := admitted[0], Candidate{Score: -1}
	for _, cand := range admitted[1:] {
		switch {
		case cand.Score > best.Score:
			second = best
			best = cand
		case cand.Score > second.Score:
			second = cand
		}
	}
	return second.Score == best.Score && second.Entry.ID != best.Entry.ID
}
