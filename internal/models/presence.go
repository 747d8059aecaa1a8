package models

import "time"

// PresenceRecord stores one row of the reconciled attendance register for a
// marking session.
type PresenceRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"size:64;not null;uniqueIndex:idx_presence_session_student" json:"session_id"`
	StudentID    string    `gorm:"size:64;not null;uniqueIndex:idx_presence_session_student" json:"student_id"`
	Name         string    `gorm:"size:255" json:"name"`
	Present      bool      `gorm:"not null;default:false" json:"present"`
	MatchedBy    string    `gorm:"size:32" json:"matched_by"`
	Confidence   float64   `gorm:"default:0" json:"confidence"`
	SegmentIndex int       `gorm:"default:-1" json:"segment_index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status renders the register status label for exports.
func (p PresenceRecord) Status() string {
	if p.Present {
		return "present"
	}
	return "absent"
}
