package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// Order carries two independent sync states: the POS delivery push and the
// loyalty purchase push.
type Order struct {
	ID              int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          *int64                `gorm:"column:user_id;index"`
	CityID          int64                 `gorm:"column:city_id;not null"`
	BranchID        *int64                `gorm:"column:branch_id"`
	Status          enums.OrderStatus     `gorm:"column:status;type:varchar(16);not null"`
	FulfillmentType enums.FulfillmentType `gorm:"column:fulfillment_type;type:varchar(16);not null"`
	CustomerName    string                `gorm:"column:customer_name;not null"`
	Phone           *string               `gorm:"column:phone;type:varchar(32)"`
	Address         *string               `gorm:"column:address;type:text"`
	Comment         *string               `gorm:"column:comment;type:text"`
	Total           decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null"`
	POS             SyncState             `gorm:"embedded;embeddedPrefix:pos_"`
	Loyalty         SyncState             `gorm:"embedded;embeddedPrefix:loyalty_"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   int64           `gorm:"column:order_id;not null;index"`
	ItemID    int64           `gorm:"column:item_id;not null"`
	VariantID *int64          `gorm:"column:variant_id"`
	Name      string          `gorm:"column:name;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Modifiers datatypes.JSON  `gorm:"column:modifiers"`
}

func (OrderItem) TableName() string { return "order_items" }

// OrderItemModifier is one element of OrderItem.Modifiers.
type OrderItemModifier struct {
	ModifierID int64 `json:"modifier_id"`
	Quantity   int   `json:"quantity"`
}

// OrderStatusTransition is the webhook transition log. (order_id, to_status)
// is unique so a replayed event cannot apply twice.
type OrderStatusTransition struct {
	ID             int64             `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID        int64             `gorm:"column:order_id;not null;uniqueIndex:ux_order_status_transitions,priority:1"`
	FromStatus     enums.OrderStatus `gorm:"column:from_status;type:varchar(16);not null"`
	ToStatus       enums.OrderStatus `gorm:"column:to_status;type:varchar(16);not null"`
	EventKey       string            `gorm:"column:event_key;type:varchar(160);not null;uniqueIndex:ux_order_status_transitions,priority:2"`
	ExternalStatus string            `gorm:"column:external_status;type:varchar(64);not null"`
	Source         string            `gorm:"column:source;type:varchar(32);not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusTransition) TableName() string { return "order_status_transitions" }
