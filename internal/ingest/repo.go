package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tracehq/trace-backend/pkg/db/models"
	"github.com/tracehq/trace-backend/pkg/enums"
	"github.com/tracehq/trace-backend/pkg/types"
)

// Repository persists moment records.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a moment repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a moment record.
func (r *Repository) Create(ctx context.Context, moment *models.Moment) (*models.Moment, error) {
	if err := r.db.WithContext(ctx).Create(moment).Error; err != nil {
		return nil, err
	}
	return moment, nil
}

// Delete removes a moment record. Used to roll back a placeholder whose
// upload credential could not be issued.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Moment{}).Error
}

// FindDuplicate looks for a record in the same activity with identical
// declared name and size whose status occupies the dedup key (processing or
// active). Abandoned pending and failed records do not block retries.
func (r *Repository) FindDuplicate(ctx context.Context, activityID uuid.UUID, name string, sizeBytes int64) (*models.Moment, error) {
	var m models.Moment
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND name = ? AND size_bytes = ?", activityID, name, sizeBytes).
		Where("status IN ?", []enums.MediaStatus{enums.MediaStatusProcessing, enums.MediaStatusActive}).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ConfirmBatch transitions the records matching (id ∈ ids, activity,
// status pending) to processing inside tx and returns the rows that actually
// moved. The status guard lives in the UPDATE itself, so two concurrent
// confirms of the same record race on the row lock and only one gets it back.
// Re-confirming transitions nothing, which makes confirm idempotent.
func (r *Repository) ConfirmBatch(tx *gorm.DB, activityID uuid.UUID, ids []uuid.UUID) ([]models.Moment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []models.Moment
	result := tx.Model(&rows).
		Clauses(clause.Returning{}).
		Where("activity_id = ? AND status = ? AND id IN ?", activityID, enums.MediaStatusPending, ids).
		Update("status", enums.MediaStatusProcessing)
	if result.Error != nil {
		return nil, result.Error
	}
	return rows, nil
}

// FindByStorageKey retrieves the record owning a storage key.
func (r *Repository) FindByStorageKey(ctx context.Context, storageKey string) (*models.Moment, error) {
	var m models.Moment
	if err := r.db.WithContext(ctx).First(&m, "storage_key = ?", storageKey).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ActivationUpdate carries the enrichment output applied when a record
// converges to active.
type ActivationUpdate struct {
	ThumbnailKey *string
	OccurredAt   time.Time
	Geom         *types.GeographyPoint
	Metadata     types.JSONMap
}

// MarkActive finalizes the record owning storageKey. Only a processing
// record is eligible: the status transition is monotonic, so re-delivered
// jobs and out-of-order retries cannot regress a terminal record.
func (r *Repository) MarkActive(ctx context.Context, storageKey string, update ActivationUpdate) (bool, error) {
	fields := map[string]any{
		"status":      enums.MediaStatusActive,
		"occurred_at": update.OccurredAt,
	}
	if update.ThumbnailKey != nil {
		fields["thumbnail_key"] = *update.ThumbnailKey
	}
	if update.Geom != nil {
		fields["geom"] = *update.Geom
	}
	if len(update.Metadata) > 0 {
		fields["metadata"] = update.Metadata
	}

	result := r.db.WithContext(ctx).Model(&models.Moment{}).
		Where("storage_key = ? AND status = ?", storageKey, enums.MediaStatusProcessing).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed moves the record owning storageKey from processing to failed.
// Pending and terminal records are left untouched: failed is only reachable
// from processing, and a pending record never saw an upload to fail.
func (r *Repository) MarkFailed(ctx context.Context, storageKey string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Moment{}).
		Where("storage_key = ? AND status = ?", storageKey, enums.MediaStatusProcessing).
		Update("status", enums.MediaStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeletePendingBefore removes pending moments last touched before the
// cutoff. Abandoned intents hold no bytes, only a row; deleting them frees
// the dedup key for a fresh signing attempt.
func (r *Repository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.MediaStatusPending, cutoff).
		Delete(&models.Moment{})
	return result.RowsAffected, result.Error
}

// FailStuckProcessingBefore converges moments stuck in processing past the
// cutoff to failed. A job lost between the confirm commit and the enqueue
// would otherwise stay processing forever.
func (r *Repository) FailStuckProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Moment{}).
		Where("status = ? AND updated_at < ?", enums.MediaStatusProcessing, cutoff).
		Update("status", enums.MediaStatusFailed)
	return result.RowsAffected, result.Error
}

// ListByIDs returns the current state of the given records for status polls.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Moment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Moment
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
