package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DeliveryZone struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	BranchID        *int64          `gorm:"column:branch_id;index"`
	Name            string          `gorm:"column:name;not null"`
	ExternalID      *string         `gorm:"column:external_id;type:varchar(160);uniqueIndex:ux_delivery_zones_external_id"`
	Polygon         datatypes.JSON  `gorm:"column:polygon"`
	MinOrderSum     decimal.Decimal `gorm:"column:min_order_sum;type:numeric(12,2);not null"`
	DeliveryMinutes int             `gorm:"column:delivery_minutes;not null"`
	IsActive        bool            `gorm:"column:is_active;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeliveryZone) TableName() string { return "delivery_zones" }
