package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/abadealex/scriptmark/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ScriptManifest{}, &models.PresenceRecord{}))
	return db
}

func TestManifestRepositoryUpsertReplacesOutcome(t *testing.T) {
	db := setupTestDB(t)
	repo := NewManifestRepository(db)
	ctx := context.Background()

	first := models.ScriptManifest{
		SessionID:    "phy-2026",
		StudentID:    "S00123",
		StudentName:  "Alice Johnson",
		SegmentIndex: 0,
		Matched:      true,
		MatchedBy:    "id-exact",
		Confidence:   1.0,
		Status:       models.ManifestStatusOK,
	}
	_, err := repo.Upsert(ctx, first)
	require.NoError(t, err)

	revised := first
	revised.Score = 7.5
	revised.MaxScore = 10
	revised.Percentage = 75
	_, err = repo.Upsert(ctx, revised)
	require.NoError(t, err)

	entries, err := repo.ListBySession(ctx, "phy-2026")
	require.NoError(t, err)
	require.Len(t, entries, 1, "second upsert should replace, not duplicate")
	require.Equal(t, 7.5, entries[0].Score)
	require.Equal(t, 75.0, entries[0].Percentage)
}

func TestManifestRepositoryRecordsAbsentees(t *testing.T) {
	db := setupTestDB(t)
	repo := NewManifestRepository(db)
	ctx := context.Background()

	absent := models.ScriptManifest{
		SessionID:    "phy-2026",
		StudentID:    "S00126",
		StudentName:  "Dan Pratt",
		SegmentIndex: -1,
		Status:       models.ManifestStatusOK,
	}
	_, err := repo.Upsert(ctx, absent)
	require.NoError(t, err)

	entries, err := repo.ListBySession(ctx, "phy-2026")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Matched)
	require.False(t, entries[0].Present)

	// A rerun that matches the student flips the same row.
	matched := absent
	matched.SegmentIndex = 2
	matched.Matched = true
	matched.Present = true
	matched.MatchedBy = "name-fuzzy"
	_, err = repo.Upsert(ctx, matched)
	require.NoError(t, err)

	entries, err = repo.ListBySession(ctx, "phy-2026")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Present)
	require.Equal(t, 2, entries[0].SegmentIndex)
}

func TestManifestRepositoryListOrdersAndScopesBySession(t *testing.T) {
	db := setupTestDB(t)
	repo := NewManifestRepository(db)
	ctx := context.Background()

	for _, m := range []models.ScriptManifest{
		{SessionID: "phy-2026", StudentID: "S00125", Status: models.ManifestStatusNeedsReview},
		{SessionID: "phy-2026", StudentID: "S00123", Status: models.ManifestStatusOK},
		{SessionID: "chem-2026", StudentID: "S00123", Status: models.ManifestStatusOK},
	} {
		_, err := repo.Upsert(ctx, m)
		require.NoError(t, err)
	}

	entries, err := repo.ListBySession(ctx, "phy-2026")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "S00123", entries[0].StudentID)
	require.Equal(t, "S00125", entries[1].StudentID)
	require.True(t, entries[1].NeedsReview())
}

func TestPresenceRepositoryReplaceSession(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPresenceRepository(db)
	ctx := context.Background()

	initial := []models.PresenceRecord{
		{StudentID: "S00123", Name: "Alice Johnson", Present: true, MatchedBy: "id-exact", Confidence: 1, SegmentIndex: 0},
		{StudentID: "S00124", Name: "Bob Stone", Present: false, SegmentIndex: -1},
	}
	require.NoError(t, repo.ReplaceSession(ctx, "phy-2026", initial))

	rerun := []models.PresenceRecord{
		{StudentID: "S00123", Name: "Alice Johnson", Present: true, MatchedBy: "id-exact", Confidence: 1, SegmentIndex: 0},
		{StudentID: "S00124", Name: "Bob Stone", Present: true, MatchedBy: "name-fuzzy", Confidence: 0.92, SegmentIndex: 1},
	}
	require.NoError(t, repo.ReplaceSession(ctx, "phy-2026", rerun))

	records, err := repo.ListBySession(ctx, "phy-2026")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[1].Present)
	require.Equal(t, "present", records[1].Status())
	require.Equal(t, "name-fuzzy", records[1].MatchedBy)
}
