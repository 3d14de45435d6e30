package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

type MenuCategory struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description;type:text"`
	ExternalID  *string   `gorm:"column:external_id;type:varchar(64);uniqueIndex:ux_menu_categories_external_id"`
	SortOrder   int       `gorm:"column:sort_order;not null"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuCategory) TableName() string { return "menu_categories" }

type MenuItem struct {
	ID          int64            `gorm:"column:id;primaryKey;autoIncrement"`
	CategoryID  int64            `gorm:"column:category_id;not null;index"`
	Name        string           `gorm:"column:name;not null"`
	Description *string          `gorm:"column:description;type:text"`
	Weight      *decimal.Decimal `gorm:"column:weight;type:numeric(10,3)"`
	Price       decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	ExternalID  *string          `gorm:"column:external_id;type:varchar(64);uniqueIndex:ux_menu_items_external_id"`
	SortOrder   int              `gorm:"column:sort_order;not null"`
	IsActive    bool             `gorm:"column:is_active;not null"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuItem) TableName() string { return "menu_items" }

// ItemVariant is a sized/priced form of an item. External ids are either the
// POS product id or "<productId>_<sizeId>".
type ItemVariant struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID     int64           `gorm:"column:item_id;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	ExternalID *string         `gorm:"column:external_id;type:varchar(160);uniqueIndex:ux_item_variants_external_id"`
	SortOrder  int             `gorm:"column:sort_order;not null"`
	IsActive   bool            `gorm:"column:is_active;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ItemVariant) TableName() string { return "item_variants" }

type ModifierGroup struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string    `gorm:"column:name;not null"`
	ExternalID *string   `gorm:"column:external_id;type:varchar(64);uniqueIndex:ux_modifier_groups_external_id"`
	SortOrder  int       `gorm:"column:sort_order;not null"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ModifierGroup) TableName() string { return "modifier_groups" }

// Modifier external ids are "<groupId>_<modifierProductId>" because the same
// POS product may appear in several groups.
type Modifier struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID    int64           `gorm:"column:group_id;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	ExternalID *string         `gorm:"column:external_id;type:varchar(160);uniqueIndex:ux_modifiers_external_id"`
	SortOrder  int             `gorm:"column:sort_order;not null"`
	IsActive   bool            `gorm:"column:is_active;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Modifier) TableName() string { return "modifiers" }

type MenuCategoryCity struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CategoryID int64     `gorm:"column:category_id;not null;uniqueIndex:ux_menu_category_cities,priority:1"`
	CityID     int64     `gorm:"column:city_id;not null;uniqueIndex:ux_menu_category_cities,priority:2"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuCategoryCity) TableName() string { return "menu_category_cities" }

type MenuItemCity struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID    int64     `gorm:"column:item_id;not null;uniqueIndex:ux_menu_item_cities,priority:1"`
	CityID    int64     `gorm:"column:city_id;not null;uniqueIndex:ux_menu_item_cities,priority:2"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuItemCity) TableName() string { return "menu_item_cities" }

type ItemPrice struct {
	ID              int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	VariantID       int64                 `gorm:"column:variant_id;not null;uniqueIndex:ux_item_prices,priority:1"`
	CityID          int64                 `gorm:"column:city_id;not null;uniqueIndex:ux_item_prices,priority:2"`
	FulfillmentType enums.FulfillmentType `gorm:"column:fulfillment_type;type:varchar(16);not null;uniqueIndex:ux_item_prices,priority:3"`
	Price           decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (ItemPrice) TableName() string { return "item_prices" }

type ItemModifierGroup struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID    int64 `gorm:"column:item_id;not null;uniqueIndex:ux_item_modifier_groups,priority:1"`
	GroupID   int64 `gorm:"column:group_id;not null;uniqueIndex:ux_item_modifier_groups,priority:2"`
	MinAmount int   `gorm:"column:min_amount;not null"`
	MaxAmount int   `gorm:"column:max_amount;not null"`
}

func (ItemModifierGroup) TableName() string { return "item_modifier_groups" }

type Tag struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string    `gorm:"column:name;not null"`
	ExternalID *string   `gorm:"column:external_id;type:varchar(128);uniqueIndex:ux_tags_external_id"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Tag) TableName() string { return "tags" }

type MenuItemTag struct {
	ID     int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID int64 `gorm:"column:item_id;not null;uniqueIndex:ux_menu_item_tags,priority:1"`
	TagID  int64 `gorm:"column:tag_id;not null;uniqueIndex:ux_menu_item_tags,priority:2"`
}

func (MenuItemTag) TableName() string { return "menu_item_tags" }

// StopListEntry marks an item, variant or modifier as unavailable at a branch.
type StopListEntry struct {
	ID         int64                `gorm:"column:id;primaryKey;autoIncrement"`
	BranchID   int64                `gorm:"column:branch_id;not null;index"`
	ItemID     *int64               `gorm:"column:item_id;index"`
	VariantID  *int64               `gorm:"column:variant_id;index"`
	ModifierID *int64               `gorm:"column:modifier_id;index"`
	Balance    decimal.Decimal      `gorm:"column:balance;type:numeric(12,3);not null"`
	Source     enums.StopListSource `gorm:"column:source;type:varchar(16);not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (StopListEntry) TableName() string { return "stop_list_entries" }
