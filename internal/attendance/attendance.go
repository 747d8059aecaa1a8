package attendance

import (
	"github.com/abadealex/scriptmark/internal/identity"
	"github.com/abadealex/scriptmark/internal/roster"
)

// Status values for the exported presence table.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// Record is the presence outcome for one roster entry.
type Record struct {
	Entry        roster.Entry
	Present      bool
	SegmentIndex int // -1 when absent
	DetectedID   string
	DetectedName string
	MatchedBy    identity.Method
	Confidence   float64
}

// Status renders the presence boolean for reports.
func (r Record) Status() string {
	if r.Present {
		return StatusPresent
	}
	return StatusAbsent
}

// Unclaimed describes a segment no roster entry claimed, carrying whatever
// was recognised so a human can reconcile it.
type Unclaimed struct {
	SegmentIndex int
	DetectedID   string
	DetectedName string
	BestScore    float64
	Ambiguous    bool
}

// Reconcile derives one Record per roster entry (present iff matched to
// exactly one segment) and lists unmatched segments for manual review. It is
// a pure function of its inputs: re-running on the same resolutions yields
// identical output, and ordering follows the roster and segment order.
func Reconcile(entries []roster.Entry, resolutions []identity.Resolution) ([]Record, []Unclaimed) {
	bySegment := make(map[string]identity.Resolution, len(resolutions))
	for _, res := range resolutions {
		if res.Resolved() {
			bySegment[res.Candidate.Entry.ID] = res
		}
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		record := Record{Entry: entry, SegmentIndex: -1}
		if res, ok := bySegment[entry.ID]; ok {
			record.Present = true
			record.SegmentIndex = res.SegmentIndex
			record.DetectedID = res.Extracted.ID
			record.DetectedName = res.Extracted.Name
			record.MatchedBy = res.Candidate.Method
			record.Confidence = res.Candidate.Score
		}
		records = append(records, record)
	}

	var unclaimed []Unclaimed
	for _, res := range resolutions {
		if res.Resolved() {
			continue
		}
		unclaimed = append(unclaimed, Unclaimed{
			SegmentIndex: res.SegmentIndex,
			DetectedID:   res.Extracted.ID,
			DetectedName: res.Extracted.Name,
			BestScore:    res.BestScore,
			Ambiguous:    res.Ambiguous,
		})
	}
	return records, unclaimed
}
