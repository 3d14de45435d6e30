package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// SyncLog is an audit row for one sync attempt; immutable once closed.
type SyncLog struct {
	ID          int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Integration enums.Integration   `gorm:"column:integration;type:varchar(32);not null;index:idx_sync_logs_lookup,priority:1"`
	Module      enums.SyncModule    `gorm:"column:module;type:varchar(32);not null;index:idx_sync_logs_lookup,priority:2"`
	Action      string              `gorm:"column:action;type:varchar(64);not null"`
	Status      enums.SyncLogStatus `gorm:"column:status;type:varchar(16);not null;index"`
	Reason      *string             `gorm:"column:reason;type:varchar(32)"`
	EntityType  *string             `gorm:"column:entity_type;type:varchar(32)"`
	EntityID    *string             `gorm:"column:entity_id;type:varchar(64)"`
	Request     datatypes.JSON      `gorm:"column:request"`
	Response    datatypes.JSON      `gorm:"column:response"`
	Error       *string             `gorm:"column:error;type:text"`
	Attempts    int                 `gorm:"column:attempts;not null"`
	DurationMs  *int64              `gorm:"column:duration_ms"`
	StartedAt   time.Time           `gorm:"column:started_at;not null"`
	FinishedAt  *time.Time          `gorm:"column:finished_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime;index"`
}

func (SyncLog) TableName() string { return "integration_sync_logs" }

// ReadinessRecord is fully replaced on every refresh.
type ReadinessRecord struct {
	ID              int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	Provider        enums.Integration     `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:ux_integration_readiness,priority:1"`
	Module          enums.SyncModule      `gorm:"column:module;type:varchar(32);not null;uniqueIndex:ux_integration_readiness,priority:2"`
	Status          enums.ReadinessStatus `gorm:"column:status;type:varchar(32);not null"`
	TotalCount      int64                 `gorm:"column:total_count;not null"`
	LinkedCount     int64                 `gorm:"column:linked_count;not null"`
	UnlinkedCount   int64                 `gorm:"column:unlinked_count;not null"`
	UnlinkedPercent float64               `gorm:"column:unlinked_percent;not null"`
	Stats           datatypes.JSON        `gorm:"column:stats"`
	Policy          datatypes.JSON        `gorm:"column:policy"`
	ComputedAt      time.Time             `gorm:"column:computed_at;not null"`
}

func (ReadinessRecord) TableName() string { return "integration_readiness" }

type MappingCandidate struct {
	ID               int64                `gorm:"column:id;primaryKey;autoIncrement"`
	Provider         enums.Integration    `gorm:"column:provider;type:varchar(32);not null;index:idx_mapping_candidates_scope,priority:1"`
	Module           enums.SyncModule     `gorm:"column:module;type:varchar(32);not null;index:idx_mapping_candidates_scope,priority:2"`
	EntityType       enums.EntityType     `gorm:"column:entity_type;type:varchar(32);not null"`
	LocalEntityID    *int64               `gorm:"column:local_entity_id"`
	ExternalEntityID *string              `gorm:"column:external_entity_id;type:varchar(160)"`
	TargetLocalID    *int64               `gorm:"column:target_local_id"`
	Score            *int                 `gorm:"column:score"`
	State            enums.CandidateState `gorm:"column:state;type:varchar(32);not null;index:idx_mapping_candidates_scope,priority:3"`
	Details          datatypes.JSON       `gorm:"column:details"`
	ResolvedBy       *string              `gorm:"column:resolved_by;type:varchar(128)"`
	ResolvedAt       *time.Time           `gorm:"column:resolved_at"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (MappingCandidate) TableName() string { return "integration_mapping_candidates" }

// Setting is a runtime key/value consumed through the settings provider.
type Setting struct {
	Key       string         `gorm:"column:key;primaryKey;type:varchar(128)"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }
