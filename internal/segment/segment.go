package segment

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/abadealex/scriptmark/internal/roster"
)

// Range is a half-open page range [Start,End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages returns the number of pages covered by the range.
func (r Range) Pages() int { return r.End - r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Segment is one student's presumed submission: a page range plus the handle
// of the physical sub-document produced for it. Matched and Confidence are
// filled by identity resolution.
type Segment struct {
	ID         string
	Range      Range
	Document   string
	Matched    *roster.Entry
	Confidence float64
}

// Splitter extracts page ranges of a source document into standalone
// sub-documents, returning their handles in range order.
type Splitter interface {
	Split(ctx context.Context, document string, ranges []Range) ([]string, error)
}

// Ranges converts detected front-page indices into contiguous half-open
// ranges partitioning [0,totalPages). Each range runs from one front page to
// the next; the last extends to the end of the document. When no front page
// was detected the whole document becomes a single segment rather than being
// dropped.
func Ranges(frontPages []int, totalPages int) ([]Range, error) {
	if totalPages <= 0 {
		return nil, fmt.Errorf("total pages must be positive, got %d", totalPages)
	}

	indices := make([]int, 0, len(frontPages))
	for _, idx := range frontPages {
		if idx < 0 || idx >= totalPages {
			return nil, fmt.Errorf("front page index %d out of range [0,%d)", idx, totalPages)
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	if len(indices) == 0 {
		return []Range{{Start: 0, End: totalPages}}, nil
	}

	// Pages before the first detected front page belong to the first segment;
	// a leading partial script must not be lost.
	indices[0] = 0

	ranges := make([]Range, 0, len(indices))
	for i, start := range indices {
		end := totalPages
		if i+1 < len(indices) {
			end = indices[i+1]
		}
		if end <= start {
			continue
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges, nil
}

// FrontPageIndices filters classification flags into the ascending index list
// Ranges expects.
func FrontPageIndices(flags []bool) []int {
	var indices []int
	for i, front := range flags {
		if front {
			indices = append(indices, i)
		}
	}
	return indices
}

// Build splits the source document along the given ranges and wraps each
// sub-document handle in a Segment, preserving page order.
func Build(ctx context.Context, splitter Splitter, document string, ranges []Range) ([]Segment, error) {
	if splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}

	handles, err := splitter.Split(ctx, document, ranges)
	if err != nil {
		return nil, fmt.Errorf("split document: %w", err)
	}
	if len(handles) != len(ranges) {
		return nil, fmt.Errorf("splitter returned %d sub-documents for %d ranges", len(handles), len(ranges))
	}

	segments := make([]Segment, len(ranges))
	for i, r := range ranges {
		segments[i] = Segment{
			ID:       uuid.NewString(),
			Range:    r,
			Document: handles[i],
		}
	}
	return segments, nil
}
