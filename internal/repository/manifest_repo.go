package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abadealex/scriptmark/internal/models"
)

// ManifestRepository persists per-segment processing outcomes for a session.
type ManifestRepository interface {
	Upsert(ctx context.Context, entry models.ScriptManifest) (models.ScriptManifest, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.ScriptManifest, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type manifestRepository struct {
	db *gorm.DB
}

// NewManifestRepository constructs a manifest repository.
func NewManifestRepository(db *gorm.DB) ManifestRepository {
	return &manifestRepository{db: db}
}

// Upsert writes the entry, replacing any previous outcome recorded for the
// same session and student.
func (r *manifestRepository) Upsert(ctx context.Context, entry models.ScriptManifest) (models.ScriptManifest, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"student_name", "document", "segment_index", "matched", "present", "matched_by",
			"confidence", "status", "score", "max_score", "percentage", "updated_at",
		}),
	}).Create(&entry).Error
	if err != nil {
		return models.ScriptManifest{}, err
	}

	return entry, nil
}

func (r *manifestRepository) ListBySession(ctx context.Context, sessionID string) ([]models.ScriptManifest, error) {
	var entries []models.ScriptManifest
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("student_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *manifestRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.ScriptManifest{}).Error
}
