package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/abadealex/scriptmark/internal/models"
)

// PresenceRepository persists the reconciled attendance register.
type PresenceRepository interface {
	// ReplaceSession atomically swaps the register for a session with the
	// given records.
	ReplaceSession(ctx context.Context, sessionID string, records []models.PresenceRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]models.PresenceRecord, error)
}

type presenceRepository struct {
	db *gorm.DB
}

// NewPresenceRepository constructs a presence repository.
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

func (r *presenceRepository) ReplaceSession(ctx context.Context, sessionID string, records []models.PresenceRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.PresenceRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		for i := range records {
			records[i].SessionID = sessionID
		}
		return tx.Create(&records).Error
	})
}

func (r *presenceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.PresenceRecord, error) {
	var records []models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("student_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}
