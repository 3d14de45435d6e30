package deliveryzones

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
)

type Repository interface {
	BranchesByTerminal(ctx context.Context, tx *gorm.DB) (map[string]int64, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *models.DeliveryZone) error
	DeleteMissing(ctx context.Context, tx *gorm.DB, keep []string) (int64, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

func (repository) BranchesByTerminal(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	var rows []models.Branch
	err := tx.WithContext(ctx).
		Select("id", "external_id").
		Where("external_id IS NOT NULL AND external_id <> ''").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[*row.ExternalID] = row.ID
	}
	return out, nil
}

func (repository) Upsert(ctx context.Context, tx *gorm.DB, row *models.DeliveryZone) error {
	var existing models.DeliveryZone
	err := tx.WithContext(ctx).Select("id").Where("external_id = ?", row.ExternalID).Take(&existing).Error
	switch {
	case err == nil:
		row.ID = existing.ID
		return tx.WithContext(ctx).Model(&models.DeliveryZone{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"branch_id":        row.BranchID,
			"name":             row.Name,
			"polygon":          row.Polygon,
			"min_order_sum":    row.MinOrderSum,
			"delivery_minutes": row.DeliveryMinutes,
			"is_active":        row.IsActive,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.WithContext(ctx).Create(row).Error
	default:
		return err
	}
}

// DeleteMissing removes externally sourced zones the pull did not return.
func (repository) DeleteMissing(ctx context.Context, tx *gorm.DB, keep []string) (int64, error) {
	query := tx.WithContext(ctx).Where("external_id IS NOT NULL AND external_id <> ''")
	if len(keep) > 0 {
		query = query.Where("external_id NOT IN ?", keep)
	}
	res := query.Delete(&models.DeliveryZone{})
	return res.RowsAffected, res.Error
}
