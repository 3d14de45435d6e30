package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
)

const (
	TopicOrders = "orders"

	EventOrderStatusChanged = "order.status_changed"
)

// Publisher is the Redis pub/sub surface the notifier writes to.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
	NotifyChannel(topic string) string
}

// Event is the JSON document pushed to subscribers of the realtime layer.
type Event struct {
	Type       string            `json:"type"`
	OrderID    int64             `json:"order_id"`
	UserID     *int64            `json:"user_id,omitempty"`
	Status     enums.OrderStatus `json:"status"`
	Previous   enums.OrderStatus `json:"previous_status,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Service fans order events out to the shared and per-user channels.
type Service interface {
	OrderStatusChanged(ctx context.Context, order *models.Order, previous enums.OrderStatus) error
}

type service struct {
	pub Publisher
	now func() time.Time
}

func NewService(pub Publisher) (Service, error) {
	if pub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification publisher required")
	}
	return &service{pub: pub, now: time.Now}, nil
}

func (s *service) OrderStatusChanged(ctx context.Context, order *models.Order, previous enums.OrderStatus) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	payload, err := json.Marshal(Event{
		Type:       EventOrderStatusChanged,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Previous:   previous,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	if err := s.pub.Publish(ctx, s.pub.NotifyChannel(TopicOrders), payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish order event")
	}
	if order.UserID != nil {
		channel := s.pub.NotifyChannel(UserTopic(*order.UserID))
		if err := s.pub.Publish(ctx, channel, payload); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish user order event")
		}
	}
	return nil
}

// UserTopic is the per-customer channel topic.
func UserTopic(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
