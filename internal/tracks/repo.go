package tracks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/pkg/db/models"
	"github.com/tracehq/trace-backend/pkg/enums"
	"github.com/tracehq/trace-backend/pkg/types"
)

// Repository persists tracks and their polylines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a track repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a track and its initial polyline inside the given
// transaction. The polyline starts without geometry; the streamer fills it
// in after the file arrives.
func (r *Repository) Create(tx *gorm.DB, track *models.Track, polyline *models.Polyline) error {
	if err := tx.Create(track).Error; err != nil {
		return err
	}
	return tx.Create(polyline).Error
}

// DeletePair rolls back a placeholder whose upload credential could not be
// issued.
func (r *Repository) DeletePair(ctx context.Context, trackID, polylineID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", polylineID).Delete(&models.Polyline{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", trackID).Delete(&models.Track{}).Error
}

// ConfirmTrack transitions one pending track to processing and returns it
// with its newest polyline. A track that is not pending (already confirmed,
// terminal, or unknown) yields nil without error so confirm stays idempotent.
func (r *Repository) ConfirmTrack(tx *gorm.DB, activityID, trackID uuid.UUID) (*models.Track, *models.Polyline, error) {
	result := tx.Model(&models.Track{}).
		Where("id = ? AND activity_id = ? AND status = ?", trackID, activityID, enums.TrackStatusPending).
		Update("status", enums.TrackStatusProcessing)
	if result.Error != nil {
		return nil, nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil, nil
	}

	var track models.Track
	if err := tx.First(&track, "id = ?", trackID).Error; err != nil {
		return nil, nil, err
	}
	var polyline models.Polyline
	err := tx.Where("track_id = ?", trackID).Order("created_at DESC").First(&polyline).Error
	if err != nil {
		return nil, nil, err
	}
	return &track, &polyline, nil
}

// FindPolylineByStorageKey resolves the polyline owning an uploaded track
// file. Jobs match by storage key, never by id.
func (r *Repository) FindPolylineByStorageKey(ctx context.Context, storageKey string) (*models.Polyline, error) {
	var polyline models.Polyline
	if err := r.db.WithContext(ctx).First(&polyline, "storage_key = ?", storageKey).Error; err != nil {
		return nil, err
	}
	return &polyline, nil
}

// ActivateTrack applies the streamer's output inside the given transaction:
// the polyline gets its geometry and the owning track flips to active
// pointing at it. Only a processing track activates; redelivered jobs
// cannot regress a terminal one.
func (r *Repository) ActivateTrack(tx *gorm.DB, polyline *models.Polyline, geom *types.LineStringZ) (bool, error) {
	err := tx.Model(&models.Polyline{}).
		Where("id = ?", polyline.ID).
		Update("geom", geom).Error
	if err != nil {
		return false, err
	}

	result := tx.Model(&models.Track{}).
		Where("id = ? AND status = ?", polyline.TrackID, enums.TrackStatusProcessing).
		Updates(map[string]any{
			"status":             enums.TrackStatusActive,
			"active_polyline_id": polyline.ID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed converges the processing track owning a storage key to failed.
// Used by the consumer once a job is out of attempts or permanently broken.
// Pending tracks never reach a job, so failed is only reachable from
// processing.
func (r *Repository) MarkFailed(ctx context.Context, storageKey string) (bool, error) {
	polyline, err := r.FindPolylineByStorageKey(ctx, storageKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	result := r.db.WithContext(ctx).Model(&models.Track{}).
		Where("id = ? AND status = ?", polyline.TrackID, enums.TrackStatusProcessing).
		Update("status", enums.TrackStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeletePendingBefore removes pending tracks (and their placeholder
// polylines) last touched before the cutoff, inside the given transaction.
func (r *Repository) DeletePendingBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	var ids []uuid.UUID
	err := tx.Model(&models.Track{}).
		Where("status = ? AND updated_at < ?", enums.TrackStatusPending, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := tx.Where("track_id IN ?", ids).Delete(&models.Polyline{}).Error; err != nil {
		return 0, err
	}
	result := tx.Where("id IN ?", ids).Delete(&models.Track{})
	return result.RowsAffected, result.Error
}

// FailStuckProcessingBefore converges tracks stuck in processing past the
// cutoff to failed.
func (r *Repository) FailStuckProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Track{}).
		Where("status = ? AND updated_at < ?", enums.TrackStatusProcessing, cutoff).
		Update("status", enums.TrackStatusFailed)
	return result.RowsAffected, result.Error
}

// ListByIDs loads tracks for a status poll. Unknown ids are omitted.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Track
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
