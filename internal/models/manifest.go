package models

import "time"

// ManifestStatus enumerates terminal unit states recorded in the manifest.
const (
	ManifestStatusOK               = "ok"
	ManifestStatusNeedsReview      = "needs-review"
	ManifestStatusExtractionFailed = "extraction-failed"
	ManifestStatusCancelled        = "cancelled"
)

// ScriptManifest records the outcome of processing one script segment within
// a marking session: who it was attributed to, how confidently, and the
// marks awarded.
type ScriptManifest struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"size:64;not null;uniqueIndex:idx_manifest_session_student" json:"session_id"`
	StudentID    string    `gorm:"size:64;not null;uniqueIndex:idx_manifest_session_student" json:"student_id"`
	StudentName  string    `gorm:"size:255" json:"student_name"`
	Document     string    `gorm:"size:512" json:"document"`
	SegmentIndex int       `gorm:"default:-1" json:"segment_index"`
	Matched      bool      `gorm:"not null;default:false" json:"matched"`
	Present      bool      `gorm:"not null;default:false" json:"present"`
	MatchedBy    string    `gorm:"size:32" json:"matched_by"`
	Confidence   float64   `gorm:"default:0" json:"confidence"`
	Status       string    `gorm:"size:32;not null" json:"status"`
	Score        float64   `gorm:"default:0" json:"score"`
	MaxScore     float64   `gorm:"default:0" json:"max_score"`
	Percentage   float64   `gorm:"default:0" json:"percentage"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NeedsReview reports whether the entry requires manual attention before
// results can be released.
func (m ScriptManifest) NeedsReview() bool {
	return m.Status != ManifestStatusOK
}
