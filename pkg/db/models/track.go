package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tracehq/trace-backend/pkg/enums"
)

// Track represents one uploaded GPS track belonging to an activity. A track
// may accumulate several polylines over its life (reprocessing) but points at
// exactly one as active.
type Track struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID       uuid.UUID         `gorm:"column:activity_id;type:uuid;not null;index"`
	Name             string            `gorm:"column:name;not null"`
	Description      *string           `gorm:"column:description"`
	Status           enums.TrackStatus `gorm:"column:status;not null;default:pending"`
	ActivePolylineID *uuid.UUID        `gorm:"column:active_polyline_id;type:uuid"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Track) TableName() string {
	return "tracks"
}
