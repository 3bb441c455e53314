package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tracehq/trace-backend/pkg/enums"
	"github.com/tracehq/trace-backend/pkg/types"
)

// Moment captures one user-supplied asset (photo, video, audio, note)
// attached to an activity. IDs are UUIDv7 so they sort by creation time.
type Moment struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID   uuid.UUID             `gorm:"column:activity_id;type:uuid;not null;index:idx_moments_dedup,priority:1"`
	Name         string                `gorm:"column:name;not null;index:idx_moments_dedup,priority:2"`
	SizeBytes    int64                 `gorm:"column:size_bytes;not null;index:idx_moments_dedup,priority:3"`
	Class        enums.MediaClass      `gorm:"column:class;not null"`
	MimeType     string                `gorm:"column:mime_type;not null"`
	Status       enums.MediaStatus     `gorm:"column:status;not null;default:pending"`
	StorageKey   string                `gorm:"column:storage_key;not null;unique"`
	ThumbnailKey *string               `gorm:"column:thumbnail_key"`
	OccurredAt   *time.Time            `gorm:"column:occurred_at"`
	Geom         *types.GeographyPoint `gorm:"column:geom;type:geometry(PointZ,4326)"`
	Metadata     types.JSONMap         `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Moment) TableName() string {
	return "moments"
}
