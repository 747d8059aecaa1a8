package similarity

import (
	"context"

	"github.com/abadealex/scriptmark/internal/textutil"
)

// Local is an offline Provider using normalised edit distance. It never
// fails and serves as the fallback when no model endpoint is configured.
type Local struct{}

// Compare implements Provider.
func (Local) Compare(_ context.Context, a, b string) (float64, error) {
	return textutil.FoldRatio(textutil.CleanText(a), textutil.CleanText(b)), nil
}
