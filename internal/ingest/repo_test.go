package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/pkg/db/models"
	"github.com/tracehq/trace-backend/pkg/enums"
	"github.com/tracehq/trace-backend/pkg/types"
)

func setupMomentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	moments := `
CREATE TABLE IF NOT EXISTS moments (
  id TEXT PRIMARY KEY,
  activity_id TEXT NOT NULL,
  name TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  class TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  storage_key TEXT NOT NULL UNIQUE,
  thumbnail_key TEXT,
  occurred_at DATETIME,
  geom TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(moments).Error)

	dedup := `
CREATE UNIQUE INDEX IF NOT EXISTS idx_moments_dedup
  ON moments (activity_id, name, size_bytes)
  WHERE status IN ('processing', 'active');`
	require.NoError(t, db.Exec(dedup).Error)
	return db
}

func seedMoment(t *testing.T, db *gorm.DB, activityID uuid.UUID, name string, size int64, status enums.MediaStatus) *models.Moment {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	moment := &models.Moment{
		ID:         id,
		ActivityID: activityID,
		Name:       name,
		SizeBytes:  size,
		Class:      enums.MediaClassImage,
		MimeType:   "image/jpeg",
		Status:     status,
		StorageKey: buildStorageKey(activityID, enums.MediaClassImage, id, name),
	}
	require.NoError(t, db.Create(moment).Error)
	return moment
}

func TestFindDuplicateHonorsOccupancy(t *testing.T) {
	db := setupMomentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	activityID := uuid.New()

	seedMoment(t, db, activityID, "photo.jpg", 1_000_000, enums.MediaStatusProcessing)

	dup, err := repo.FindDuplicate(ctx, activityID, "photo.jpg", 1_000_000)
	require.NoError(t, err)
	require.NotNil(t, dup, "processing record occupies the dedup key")

	// failed and pending records do not block retries
	otherActivity := uuid.New()
	seedMoment(t, db, otherActivity, "crash.jpg", 500, enums.MediaStatusFailed)
	dup, err = repo.FindDuplicate(ctx, otherActivity, "crash.jpg", 500)
	require.NoError(t, err)
	assert.Nil(t, dup)

	dup, err = repo.FindDuplicate(ctx, activityID, "photo.jpg", 999)
	require.NoError(t, err)
	assert.Nil(t, dup, "size participates in the dedup key")
}

func TestDedupIndexAllowsResignOverAbandonedPending(t *testing.T) {
	db := setupMomentsTestDB(t)
	activityID := uuid.New()

	seedMoment(t, db, activityID, "photo.jpg", 1_000_000, enums.MediaStatusPending)

	// a fresh signing intent for the same asset must not trip the unique
	// index while the first record sits abandoned in pending
	seedMoment(t, db, activityID, "photo.jpg", 1_000_000, enums.MediaStatusPending)

	var count int64
	require.NoError(t, db.Model(&models.Moment{}).
		Where("activity_id = ? AND name = ? AND size_bytes = ?", activityID, "photo.jpg", int64(1_000_000)).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)

	// once a record occupies the key, a second occupant is rejected
	seedMoment(t, db, activityID, "clip.mp4", 2_000, enums.MediaStatusProcessing)
	id, err := uuid.NewV7()
	require.NoError(t, err)
	err = db.Create(&models.Moment{
		ID:         id,
		ActivityID: activityID,
		Name:       "clip.mp4",
		SizeBytes:  2_000,
		Class:      enums.MediaClassVideo,
		MimeType:   "video/mp4",
		Status:     enums.MediaStatusProcessing,
		StorageKey: buildStorageKey(activityID, enums.MediaClassVideo, id, "clip.mp4"),
	}).Error
	require.Error(t, err, "dedup index rejects a second occupant")
}

func TestConfirmBatchTransitionsOnlyPendingRows(t *testing.T) {
	db := setupMomentsTestDB(t)
	repo := NewRepository(db)
	activityID := uuid.New()

	pending := seedMoment(t, db, activityID, "a.jpg", 100, enums.MediaStatusPending)
	already := seedMoment(t, db, activityID, "b.jpg", 200, enums.MediaStatusProcessing)
	foreign := seedMoment(t, db, uuid.New(), "c.jpg", 300, enums.MediaStatusPending)

	ids := []uuid.UUID{pending.ID, already.ID, foreign.ID, uuid.New()}
	rows, err := repo.ConfirmBatch(db, activityID, ids)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)
	assert.Equal(t, enums.MediaStatusProcessing, rows[0].Status)

	var stored models.Moment
	require.NoError(t, db.First(&stored, "id = ?", pending.ID).Error)
	assert.Equal(t, enums.MediaStatusProcessing, stored.Status)

	// second confirm transitions nothing
	rows, err = repo.ConfirmBatch(db, activityID, ids)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkActiveIsMonotonic(t *testing.T) {
	db := setupMomentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	activityID := uuid.New()

	moment := seedMoment(t, db, activityID, "d.jpg", 100, enums.MediaStatusProcessing)

	thumbKey := "activities/x/thumbnails/d.jpg"
	occurredAt := time.Date(2026, 7, 14, 9, 30, 0, 0, time.UTC)
	updated, err := repo.MarkActive(ctx, moment.StorageKey, ActivationUpdate{
		ThumbnailKey: &thumbKey,
		OccurredAt:   occurredAt,
		Geom:         &types.GeographyPoint{Lat: 46.5, Lng: 7.25, Alt: 1200},
	})
	require.NoError(t, err)
	require.True(t, updated)

	var stored models.Moment
	require.NoError(t, db.First(&stored, "id = ?", moment.ID).Error)
	assert.Equal(t, enums.MediaStatusActive, stored.Status)
	require.NotNil(t, stored.ThumbnailKey)
	assert.Equal(t, thumbKey, *stored.ThumbnailKey)
	require.NotNil(t, stored.Geom)
	assert.InDelta(t, 46.5, stored.Geom.Lat, 1e-9)

	// re-delivered job must not touch the terminal record
	updated, err = repo.MarkActive(ctx, moment.StorageKey, ActivationUpdate{OccurredAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestMarkFailedLeavesTerminalRecords(t *testing.T) {
	db := setupMomentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	activityID := uuid.New()

	processing := seedMoment(t, db, activityID, "e.jpg", 100, enums.MediaStatusProcessing)
	active := seedMoment(t, db, activityID, "f.jpg", 200, enums.MediaStatusActive)
	pending := seedMoment(t, db, activityID, "g.jpg", 300, enums.MediaStatusPending)

	updated, err := repo.MarkFailed(ctx, processing.StorageKey)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.MarkFailed(ctx, active.StorageKey)
	require.NoError(t, err)
	assert.False(t, updated)

	var stored models.Moment
	require.NoError(t, db.First(&stored, "id = ?", active.ID).Error)
	assert.Equal(t, enums.MediaStatusActive, stored.Status)

	// a pending record never saw an upload, so it stays pending
	updated, err = repo.MarkFailed(ctx, pending.StorageKey)
	require.NoError(t, err)
	assert.False(t, updated)
	var storedPending models.Moment
	require.NoError(t, db.First(&storedPending, "id = ?", pending.ID).Error)
	assert.Equal(t, enums.MediaStatusPending, storedPending.Status)
}

func TestListByIDsOmitsUnknown(t *testing.T) {
	db := setupMomentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	activityID := uuid.New()

	known := seedMoment(t, db, activityID, "g.jpg", 100, enums.MediaStatusActive)
	rows, err := repo.ListByIDs(ctx, []uuid.UUID{known.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, known.ID, rows[0].ID)
}
