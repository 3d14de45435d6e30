package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// Service defines operations that record bonus ledger events.
type Service interface {
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, bool, error)
	HasEvent(ctx context.Context, orderID int64, eventType enums.LedgerEventType) (bool, error)
}

type service struct {
	db   *gorm.DB
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
// Amount is the order total the bonus is computed from.
type RecordLedgerEventInput struct {
	OrderID  int64                 `json:"order_id"`
	UserID   *int64                `json:"user_id,omitempty"`
	Type     enums.LedgerEventType `json:"type"`
	Amount   decimal.Decimal       `json:"amount"`
	Metadata json.RawMessage       `json:"metadata,omitempty"`
}

// NewService wires a ledger service with the provided database and repository.
func NewService(db *gorm.DB, repo Repository) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger db required")
	}
	if repo == nil {
		repo = NewRepository()
	}
	return &service{db: db, repo: repo}, nil
}

// RecordEvent writes the event once per order and type. The second return
// value is false when an identical event already existed.
func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, bool, error) {
	if input.OrderID <= 0 {
		return nil, false, fmt.Errorf("order id is required")
	}
	if !input.Type.IsValid() {
		return nil, false, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.Amount.IsNegative() {
		return nil, false, fmt.Errorf("ledger amount must not be negative")
	}

	event := &models.LedgerEvent{
		OrderID:  input.OrderID,
		UserID:   input.UserID,
		Type:     input.Type,
		Amount:   input.Amount,
		Metadata: datatypes.JSON(input.Metadata),
	}
	created, err := s.repo.Create(ctx, s.db, event)
	if err != nil {
		return nil, false, err
	}
	return event, created, nil
}

func (s *service) HasEvent(ctx context.Context, orderID int64, eventType enums.LedgerEventType) (bool, error) {
	if orderID <= 0 {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	events, err := s.repo.ListByOrderID(ctx, s.db, orderID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}
