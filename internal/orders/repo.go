package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
)

// ModifierRef is a modifier's external id split into its group and product.
type ModifierRef struct {
	GroupExternalID   string
	ProductExternalID string
}

// Repository loads order aggregates and the catalog ids needed to push them.
type Repository interface {
	FindOrder(ctx context.Context, tx *gorm.DB, id int64) (*models.Order, error)
	FindUser(ctx context.Context, tx *gorm.DB, id int64) (*models.User, error)
	FindCity(ctx context.Context, tx *gorm.DB, id int64) (*models.City, error)
	FindBranch(ctx context.Context, tx *gorm.DB, id int64) (*models.Branch, error)
	ItemExternalIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]string, error)
	VariantExternalIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]string, error)
	ModifierExternalIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]string, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

func (repository) FindOrder(ctx context.Context, tx *gorm.DB, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (repository) FindUser(ctx context.Context, tx *gorm.DB, id int64) (*models.User, error) {
	var user models.User
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (repository) FindCity(ctx context.Context, tx *gorm.DB, id int64) (*models.City, error) {
	var city models.City
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&city).Error; err != nil {
		return nil, err
	}
	return &city, nil
}

func (repository) FindBranch(ctx context.Context, tx *gorm.DB, id int64) (*models.Branch, error) {
	var branch models.Branch
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (repository) ItemExternalIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]string, error) {
	return externalIDs(ctx, tx, &models.MenuItem{}, ids)
}

func (repository) VariantExternalIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]string, error) {
	return externalIDs(ctx, tx, &models.ItemVariant{}, ids)
}

func (repository) ModifierExternalIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]string, error) {
	return externalIDs(ctx, tx, &models.Modifier{}, ids)
}

// externalIDs maps local ids to non-empty external ids; unlinked rows are absent.
func externalIDs(ctx context.Context, tx *gorm.DB, model any, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID         int64
		ExternalID *string
	}
	err := tx.WithContext(ctx).Model(model).
		Select("id, external_id").
		Where("id IN ? AND external_id IS NOT NULL AND external_id <> ''", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = *row.ExternalID
	}
	return out, nil
}
