package ledger

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
)

// Repository manages persistence for ledger events.
type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, event *models.LedgerEvent) (bool, error)
	ListByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) ([]models.LedgerEvent, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

// Create inserts the event unless (order_id, type) already exists and
// reports whether a row was written.
func (repository) Create(ctx context.Context, tx *gorm.DB, event *models.LedgerEvent) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (repository) ListByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
