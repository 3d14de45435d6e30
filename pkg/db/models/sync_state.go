package models

import (
	"time"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// SyncState is the per-entity push state embedded on orders and users with a
// column prefix per integration (pos_, loyalty_).
type SyncState struct {
	Status     enums.SyncStatus `gorm:"column:status;type:varchar(16);not null"`
	Attempts   int              `gorm:"column:attempts;not null"`
	Error      *string          `gorm:"column:error;type:text"`
	ExternalID *string          `gorm:"column:external_id;type:varchar(255)"`
	SyncedAt   *time.Time       `gorm:"column:synced_at"`
}

// Linked reports whether the external system already acknowledged the entity.
func (s SyncState) Linked() bool {
	return s.ExternalID != nil && *s.ExternalID != ""
}
