package models

import "time"

// City scopes menu activation and prices; each maps to one POS organization.
type City struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string    `gorm:"column:name;not null"`
	OrganizationID *string   `gorm:"column:organization_id;type:varchar(64)"`
	IsActive       bool      `gorm:"column:is_active;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (City) TableName() string { return "cities" }

// Branch is a pickup/kitchen location, linked to a POS terminal group.
type Branch struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CityID     int64     `gorm:"column:city_id;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	ExternalID *string   `gorm:"column:external_id;type:varchar(64);uniqueIndex:ux_branches_external_id"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Branch) TableName() string { return "branches" }
