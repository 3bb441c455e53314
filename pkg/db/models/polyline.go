package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tracehq/trace-backend/pkg/types"
)

// Polyline holds the line geometry built from one source track file. It is
// owned by exactly one track.
type Polyline struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TrackID    uuid.UUID          `gorm:"column:track_id;type:uuid;not null;index"`
	SourceType string             `gorm:"column:source_type;not null;default:gpx"`
	StorageKey string             `gorm:"column:storage_key;not null;unique"`
	SizeBytes  int64              `gorm:"column:size_bytes;not null"`
	MimeType   string             `gorm:"column:mime_type;not null"`
	Geom       *types.LineStringZ `gorm:"column:geom;type:geometry(LineStringZ,4326)"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Polyline) TableName() string {
	return "polylines"
}
