package models

import "time"

// User is a storefront customer; Loyalty tracks registration with the loyalty platform.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;not null"`
	Phone     *string   `gorm:"column:phone;type:varchar(32)"`
	Email     *string   `gorm:"column:email;type:varchar(255)"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	Loyalty   SyncState `gorm:"embedded;embeddedPrefix:loyalty_"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
