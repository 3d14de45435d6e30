package stoplist

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// Repository reads the link tables and rewrites stop-list entries.
type Repository interface {
	Branches(ctx context.Context, tx *gorm.DB, branchID *int64) ([]models.Branch, error)
	Items(ctx context.Context, tx *gorm.DB, externalIDs []string) ([]models.MenuItem, error)
	Variants(ctx context.Context, tx *gorm.DB, externalIDs []string) ([]models.ItemVariant, error)
	LinkedModifiers(ctx context.Context, tx *gorm.DB) ([]models.Modifier, error)
	ReplaceExternal(ctx context.Context, tx *gorm.DB, branchIDs []int64, entries []models.StopListEntry) (int64, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

// Branches returns active branches linked to a terminal group.
func (repository) Branches(ctx context.Context, tx *gorm.DB, branchID *int64) ([]models.Branch, error) {
	query := tx.WithContext(ctx).
		Where("is_active = ? AND external_id IS NOT NULL AND external_id <> ''", true)
	if branchID != nil {
		query = query.Where("id = ?", *branchID)
	}
	var rows []models.Branch
	err := query.Order("id ASC").Find(&rows).Error
	return rows, err
}

func (repository) Items(ctx context.Context, tx *gorm.DB, externalIDs []string) ([]models.MenuItem, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	var rows []models.MenuItem
	err := tx.WithContext(ctx).Select("id", "external_id").Where("external_id IN ?", externalIDs).Find(&rows).Error
	return rows, err
}

func (repository) Variants(ctx context.Context, tx *gorm.DB, externalIDs []string) ([]models.ItemVariant, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	var rows []models.ItemVariant
	err := tx.WithContext(ctx).Select("id", "item_id", "external_id").Where("external_id IN ?", externalIDs).Find(&rows).Error
	return rows, err
}

func (repository) LinkedModifiers(ctx context.Context, tx *gorm.DB) ([]models.Modifier, error) {
	var rows []models.Modifier
	err := tx.WithContext(ctx).
		Select("id", "external_id").
		Where("external_id IS NOT NULL AND external_id <> ''").
		Find(&rows).Error
	return rows, err
}

// ReplaceExternal swaps the externally sourced entries of the given branches.
// Local entries are never touched.
func (repository) ReplaceExternal(ctx context.Context, tx *gorm.DB, branchIDs []int64, entries []models.StopListEntry) (int64, error) {
	if len(branchIDs) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Where("branch_id IN ? AND source = ?", branchIDs, enums.StopListSourceExternal).
		Delete(&models.StopListEntry{})
	if res.Error != nil {
		return 0, res.Error
	}
	if len(entries) > 0 {
		if err := tx.WithContext(ctx).CreateInBatches(entries, 500).Error; err != nil {
			return res.RowsAffected, err
		}
	}
	return res.RowsAffected, nil
}
