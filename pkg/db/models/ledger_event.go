package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// LedgerEvent records a bonus movement for an order. (order_id, type) is unique.
type LedgerEvent struct {
	ID        int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   int64                 `gorm:"column:order_id;not null;uniqueIndex:ux_ledger_events_order_type,priority:1"`
	UserID    *int64                `gorm:"column:user_id"`
	Type      enums.LedgerEventType `gorm:"column:type;type:varchar(16);not null;uniqueIndex:ux_ledger_events_order_type,priority:2"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Metadata  datatypes.JSON        `gorm:"column:metadata"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }
