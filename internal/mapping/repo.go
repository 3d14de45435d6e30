package mapping

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// CandidateFilter narrows ListCandidates; zero values match everything.
type CandidateFilter struct {
	Provider enums.Integration
	Module   enums.SyncModule
	State    enums.CandidateState
}

var openStates = []enums.CandidateState{enums.CandidateSuggested, enums.CandidateRequiresReview}

// Repository reads link coverage and persists candidates and readiness.
// Every call runs on the handle it is given.
type Repository interface {
	Count(ctx context.Context, tx *gorm.DB, def entityDef) (total, linked int64, err error)
	Entities(ctx context.Context, tx *gorm.DB, def entityDef, linked bool) ([]Entity, error)
	DeleteOpenCandidates(ctx context.Context, tx *gorm.DB, provider enums.Integration, module enums.SyncModule) (int64, error)
	ClosedLocalIDs(ctx context.Context, tx *gorm.DB, provider enums.Integration, module enums.SyncModule) (map[enums.EntityType]map[int64]bool, error)
	CreateCandidates(ctx context.Context, tx *gorm.DB, rows []models.MappingCandidate) error
	FindCandidate(ctx context.Context, tx *gorm.DB, id int64) (*models.MappingCandidate, error)
	CloseCandidate(ctx context.Context, tx *gorm.DB, id int64, updates map[string]any) (bool, error)
	ListCandidates(ctx context.Context, tx *gorm.DB, filter CandidateFilter, afterID int64, limit int) ([]models.MappingCandidate, error)
	SuggestedAtLeast(ctx context.Context, tx *gorm.DB, provider enums.Integration, module enums.SyncModule, score int) ([]models.MappingCandidate, error)
	UpsertReadiness(ctx context.Context, tx *gorm.DB, row *models.ReadinessRecord) error
	ListReadiness(ctx context.Context, tx *gorm.DB) ([]models.ReadinessRecord, error)
	Merge(ctx context.Context, tx *gorm.DB, entity enums.EntityType, source, target int64) error
	DeactivateUnlinked(ctx context.Context, tx *gorm.DB, def entityDef) (int64, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

func (repository) Count(ctx context.Context, tx *gorm.DB, def entityDef) (int64, int64, error) {
	var total, linked int64
	base := tx.WithContext(ctx).Table(def.Table).Where("is_active = ?", true)
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count %s: %w", def.Table, err)
	}
	if err := base.Session(&gorm.Session{}).Where(def.linkedCond()).Count(&linked).Error; err != nil {
		return 0, 0, fmt.Errorf("count linked %s: %w", def.Table, err)
	}
	return total, linked, nil
}

type entityRow struct {
	ID         int64
	Name       string
	ExternalID *string
	Price      *decimal.Decimal
}

func (repository) Entities(ctx context.Context, tx *gorm.DB, def entityDef, linked bool) ([]Entity, error) {
	columns := "id, name, " + def.ExternalCol + " AS external_id"
	if def.PriceCol != "" {
		columns += ", " + def.PriceCol + " AS price"
	}
	query := tx.WithContext(ctx).Table(def.Table).Select(columns).Where("is_active = ?", true)
	if linked {
		query = query.Where(def.linkedCond())
	} else {
		query = query.Where(def.unlinkedCond())
	}
	var rows []entityRow
	if err := query.Order("id ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", def.Table, err)
	}
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		var ext string
		if row.ExternalID != nil {
			ext = *row.ExternalID
		}
		out = append(out, newEntity(row.ID, row.Name, row.Price, ext))
	}
	return out, nil
}

func (repository) DeleteOpenCandidates(ctx context.Context, tx *gorm.DB, provider enums.Integration, module enums.SyncModule) (int64, error) {
	res := tx.WithContext(ctx).
		Where("provider = ? AND module = ? AND state IN ?", provider, module, openStates).
		Delete(&models.MappingCandidate{})
	return res.RowsAffected, res.Error
}

// ClosedLocalIDs returns the local entities an admin already decided on.
func (repository) ClosedLocalIDs(ctx context.Context, tx *gorm.DB, provider enums.Integration, module enums.SyncModule) (map[enums.EntityType]map[int64]bool, error) {
	var rows []models.MappingCandidate
	err := tx.WithContext(ctx).
		Select("entity_type", "local_entity_id").
		Where("provider = ? AND module = ? AND state NOT IN ? AND local_entity_id IS NOT NULL", provider, module, openStates).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[enums.EntityType]map[int64]bool{}
	for _, row := range rows {
		if out[row.EntityType] == nil {
			out[row.EntityType] = map[int64]bool{}
		}
		out[row.EntityType][*row.LocalEntityID] = true
	}
	return out, nil
}

func (repository) CreateCandidates(ctx context.Context, tx *gorm.DB, rows []models.MappingCandidate) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (repository) FindCandidate(ctx context.Context, tx *gorm.DB, id int64) (*models.MappingCandidate, error) {
	var row models.MappingCandidate
	if err := tx.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CloseCandidate only moves candidates that are still open.
func (repository) CloseCandidate(ctx context.Context, tx *gorm.DB, id int64, updates map[string]any) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.MappingCandidate{}).
		Where("id = ? AND state IN ?", id, openStates).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (repository) ListCandidates(ctx context.Context, tx *gorm.DB, filter CandidateFilter, afterID int64, limit int) ([]models.MappingCandidate, error) {
	query := tx.WithContext(ctx).Model(&models.MappingCandidate{})
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Module != "" {
		query = query.Where("module = ?", filter.Module)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if afterID > 0 {
		query = query.Where("id > ?", afterID)
	}
	var rows []models.MappingCandidate
	if err := query.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (repository) SuggestedAtLeast(ctx context.Context, tx *gorm.DB, provider enums.Integration, module enums.SyncModule, score int) ([]models.MappingCandidate, error) {
	var rows []models.MappingCandidate
	err := tx.WithContext(ctx).
		Where("provider = ? AND module = ? AND state = ? AND score >= ?", provider, module, enums.CandidateSuggested, score).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (repository) UpsertReadiness(ctx context.Context, tx *gorm.DB, row *models.ReadinessRecord) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "module"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "total_count", "linked_count", "unlinked_count",
			"unlinked_percent", "stats", "policy", "computed_at",
		}),
	}).Create(row).Error
}

func (repository) ListReadiness(ctx context.Context, tx *gorm.DB) ([]models.ReadinessRecord, error) {
	var rows []models.ReadinessRecord
	err := tx.WithContext(ctx).Order("provider ASC, module ASC").Find(&rows).Error
	return rows, err
}

func (repository) DeactivateUnlinked(ctx context.Context, tx *gorm.DB, def entityDef) (int64, error) {
	res := tx.WithContext(ctx).
		Table(def.Table).
		Where("is_active = ?", true).
		Where(def.unlinkedCond()).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
