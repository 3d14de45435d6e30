package synclog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// Filter narrows List results; zero values match everything.
type Filter struct {
	Integration enums.Integration
	Module      enums.SyncModule
	Status      enums.SyncLogStatus
	From        *time.Time
	To          *time.Time
}

// Repository persists sync log rows. Every call takes the handle to run on.
type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, row *models.SyncLog) error
	Close(ctx context.Context, tx *gorm.DB, id int64, updates map[string]any) (bool, error)
	List(ctx context.Context, tx *gorm.DB, filter Filter, beforeID int64, limit int) ([]models.SyncLog, error)
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

func (repository) Create(ctx context.Context, tx *gorm.DB, row *models.SyncLog) error {
	return tx.WithContext(ctx).Create(row).Error
}

// Close updates an active row only, so a closed entry is never rewritten.
func (repository) Close(ctx context.Context, tx *gorm.DB, id int64, updates map[string]any) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, enums.SyncLogStatusActive).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (repository) List(ctx context.Context, tx *gorm.DB, filter Filter, beforeID int64, limit int) ([]models.SyncLog, error) {
	query := tx.WithContext(ctx).Model(&models.SyncLog{})
	if filter.Integration != "" {
		query = query.Where("integration = ?", filter.Integration)
	}
	if filter.Module != "" {
		query = query.Where("module = ?", filter.Module)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", filter.To.UTC())
	}
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	var rows []models.SyncLog
	if err := query.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (repository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.WithContext(ctx).
		Where("created_at < ? AND status <> ?", cutoff.UTC(), enums.SyncLogStatusActive).
		Delete(&models.SyncLog{})
	return res.RowsAffected, res.Error
}
