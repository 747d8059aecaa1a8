package scoring

import (
	"context"

	"github.com/abadealex/scriptmark/internal/textutil"
	"github.com/abadealex/scriptmark/pkg/similarity"
)

// AlignAnswers reorders extracted text blocks so each question receives its
// most similar unclaimed block. Blocks are compared against the question
// prompt; a block below the threshold leaves the question unanswered. The
// positional order of the key drives the output, so the result feeds
// directly into Engine.ScoreSubmission.
func AlignAnswers(ctx context.Context, provider similarity.Provider, blocks []string, key Key, threshold float64) ([]string, error) {
	if threshold <= 0 {
		threshold = 0.7
	}
	if provider == nil {
		provider = similarity.Local{}
	}

	aligned := make([]string, len(key.Questions))
	claimed := make([]bool, len(blocks))
	for qi, q := range key.Questions {
		prompt := textutil.CleanText(q.Prompt)
		if prompt == "" {
			if qi < len(blocks) && !claimed[qi] {
				aligned[qi] = blocks[qi]
				claimed[qi] = true
			}
			continue
		}
		bestScore := 0.0
		bestIdx := -1
		for bi, block := range blocks {
			if claimed[bi] {
				continue
			}
			score, err := provider.Compare(ctx, prompt, textutil.CleanText(block))
			if err != nil {
				return nil, err
			}
			if score > bestScore {
				bestScore = score
				bestIdx = bi
			}
		}
		if bestIdx >= 0 && bestScore >= threshold {
			aligned[qi] = blocks[bestIdx]
			claimed[bestIdx] = true
		}
	}
	return aligned, nil
}
