package poswebhook

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

type Repository interface {
	FindOrderByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*models.Order, error)
	InsertTransition(ctx context.Context, tx *gorm.DB, transition *models.OrderStatusTransition) (bool, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, status enums.OrderStatus) error
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

func (repository) FindOrderByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*models.Order, error) {
	var order models.Order
	if err := tx.WithContext(ctx).Where("pos_external_id = ?", externalID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// InsertTransition reports false when (order_id, event_key) was already logged.
func (repository) InsertTransition(ctx context.Context, tx *gorm.DB, transition *models.OrderStatusTransition) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "event_key"}},
			DoNothing: true,
		}).
		Create(transition)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (repository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, status enums.OrderStatus) error {
	return tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}
