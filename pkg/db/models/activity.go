package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity is the trip container owning tracks and moments. Its CRUD surface
// lives outside the ingestion pipeline; the pipeline only checks existence.
type Activity struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Activity) TableName() string {
	return "activities"
}
