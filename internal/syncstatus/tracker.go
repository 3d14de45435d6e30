// Package syncstatus mutates the embedded per-entity sync state columns.
package syncstatus

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

const maxErrorText = 2000

// Target names one embedded SyncState: the owning table and its column prefix.
type Target struct {
	Name   string
	model  any
	prefix string
}

var (
	OrderPOS     = Target{Name: "order_pos", model: &models.Order{}, prefix: "pos_"}
	OrderLoyalty = Target{Name: "order_loyalty", model: &models.Order{}, prefix: "loyalty_"}
	UserLoyalty  = Target{Name: "user_loyalty", model: &models.User{}, prefix: "loyalty_"}
)

func (t Target) column(name string) string {
	return t.prefix + name
}

// Tracker applies sync outcomes. Attempts only grow; reaching maxAttempts
// pins the status to failed.
type Tracker struct {
	maxAttempts int
	now         func() time.Time
}

func NewTracker(maxAttempts int) *Tracker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Tracker{maxAttempts: maxAttempts, now: time.Now}
}

func (t *Tracker) MaxAttempts() int {
	return t.maxAttempts
}

// MarkSynced records a successful push and the external id when one came back.
func (t *Tracker) MarkSynced(ctx context.Context, tx *gorm.DB, target Target, id int64, externalID string) error {
	updates := map[string]any{
		target.column("status"):    enums.SyncStatusSynced,
		target.column("error"):     nil,
		target.column("synced_at"): t.now().UTC(),
	}
	if externalID != "" {
		updates[target.column("external_id")] = externalID
	}
	res := tx.WithContext(ctx).Model(target.model).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("mark %s %d synced: %w", target.Name, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkFailure increments attempts and stores the error, returning the
// resulting status (error, or failed once the budget is spent).
func (t *Tracker) MarkFailure(ctx context.Context, tx *gorm.DB, target Target, id int64, cause error) (enums.SyncStatus, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText]
	}
	attempts := target.column("attempts")
	status := gorm.Expr(
		"CASE WHEN "+attempts+" + 1 >= ? THEN ? ELSE ? END",
		t.maxAttempts, enums.SyncStatusFailed, enums.SyncStatusError,
	)
	updates := map[string]any{
		attempts:                gorm.Expr(attempts + " + 1"),
		target.column("status"): status,
		target.column("error"):  msg,
	}
	res := tx.WithContext(ctx).Model(target.model).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return "", fmt.Errorf("mark %s %d failed: %w", target.Name, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", gorm.ErrRecordNotFound
	}
	var statuses []string
	if err := tx.WithContext(ctx).Model(target.model).
		Where("id = ?", id).
		Pluck(target.column("status"), &statuses).Error; err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return enums.SyncStatus(statuses[0]), nil
}

// Due returns up to limit ids whose state is pending or error with budget
// left, oldest first. Scopes narrow the selection further.
func (t *Tracker) Due(ctx context.Context, tx *gorm.DB, target Target, limit int, scopes ...func(*gorm.DB) *gorm.DB) ([]int64, error) {
	var ids []int64
	err := tx.WithContext(ctx).Model(target.model).
		Scopes(scopes...).
		Where(target.column("status")+" IN ?", []enums.SyncStatus{enums.SyncStatusPending, enums.SyncStatusError}).
		Where(target.column("attempts")+" < ?", t.maxAttempts).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("select due %s: %w", target.Name, err)
	}
	return ids, nil
}
