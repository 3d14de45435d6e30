// Package sweeper retries entity pushes left in pending or error.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/loyaltysync"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
)

const defaultBatchSize = 100

// Kind is one class of retryable push.
type Kind string

const (
	KindOrder    Kind = "order"
	KindUser     Kind = "user"
	KindPurchase Kind = "purchase"
)

// Kinds is the sweep order.
var Kinds = []Kind{KindOrder, KindUser, KindPurchase}

type OrderSyncer interface {
	Sync(ctx context.Context, orderID int64, source enums.SyncReason) (*syncstatus.Result, error)
}

type LoyaltySyncer interface {
	SyncClient(ctx context.Context, userID int64, reason enums.SyncReason) (*syncstatus.Result, error)
	SyncPurchase(ctx context.Context, orderID int64, action enums.PurchaseAction, reason enums.SyncReason) (*syncstatus.Result, error)
}

type ServiceParams struct {
	DB        *gorm.DB
	Tracker   *syncstatus.Tracker
	Orders    OrderSyncer
	Loyalty   LoyaltySyncer
	BatchSize int
	Logger    *logger.Logger
}

// Service selects due rows per kind and hands them to the processors. Each
// kind pages through its due rows across sweeps, so rows that keep being
// rejected cannot hold back the ones behind them.
type Service struct {
	db        *gorm.DB
	tracker   *syncstatus.Tracker
	orders    OrderSyncer
	loyalty   LoyaltySyncer
	batchSize int
	logg      *logger.Logger

	mu      sync.Mutex
	cursors map[Kind]int64
}

// KindReport counts one kind's sweep.
type KindReport struct {
	Selected  int `json:"selected"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Report map[Kind]KindReport

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sweeper db required")
	}
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync tracker required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order processor required")
	}
	if params.Loyalty == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "loyalty processor required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:        params.DB,
		tracker:   params.Tracker,
		orders:    params.Orders,
		loyalty:   params.Loyalty,
		batchSize: batch,
		logg:      logg,
		cursors:   map[Kind]int64{},
	}, nil
}

// Sweep runs every kind once. Per-row failures are logged and counted; only
// a failed selection aborts the sweep.
func (s *Service) Sweep(ctx context.Context) (Report, error) {
	report := Report{}
	var errs []error
	for _, kind := range Kinds {
		kr, err := s.SweepKind(ctx, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report[kind] = kr
	}
	return report, errors.Join(errs...)
}

func (s *Service) SweepKind(ctx context.Context, kind Kind) (KindReport, error) {
	started := time.Now()
	ctx = s.logg.WithField(ctx, "sweep_kind", kind)

	cursor := s.cursor(kind)
	ids, err := s.due(ctx, kind, cursor)
	if err == nil && len(ids) == 0 && cursor > 0 {
		ids, err = s.due(ctx, kind, 0)
	}
	if err != nil {
		return KindReport{}, err
	}
	s.advance(kind, ids)
	report := KindReport{Selected: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.process(ctx, kind, id); err != nil {
			report.Failed++
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"entity_id": id, "error": err.Error()}), "sweep retry failed")
			continue
		}
		report.Succeeded++
	}
	if report.Selected > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"selected":    report.Selected,
			"succeeded":   report.Succeeded,
			"failed":      report.Failed,
			"duration_ms": time.Since(started).Milliseconds(),
		}), "sweep complete")
	}
	return report, nil
}

func (s *Service) due(ctx context.Context, kind Kind, after int64) ([]int64, error) {
	page := afterID(after)
	switch kind {
	case KindOrder:
		return s.tracker.Due(ctx, s.db, syncstatus.OrderPOS, s.batchSize, page)
	case KindUser:
		return s.tracker.Due(ctx, s.db, syncstatus.UserLoyalty, s.batchSize, page)
	case KindPurchase:
		return s.tracker.Due(ctx, s.db, syncstatus.OrderLoyalty, s.batchSize, page, purchaseScope)
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown sweep kind %q", kind)
}

func (s *Service) cursor(kind Kind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[kind]
}

// advance moves past a full page, or wraps to the start once the tail of
// the due rows was reached.
func (s *Service) advance(kind Kind, ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) < s.batchSize {
		s.cursors[kind] = 0
		return
	}
	s.cursors[kind] = ids[len(ids)-1]
}

func afterID(id int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if id <= 0 {
			return db
		}
		return db.Where("id > ?", id)
	}
}

// purchaseScope skips guest orders and cancelled orders whose purchase was
// never registered; neither has anything to replay.
func purchaseScope(db *gorm.DB) *gorm.DB {
	return db.
		Where("user_id IS NOT NULL").
		Where("NOT (status = ? AND (loyalty_external_id IS NULL OR loyalty_external_id = ''))", enums.OrderStatusCancelled)
}

func (s *Service) process(ctx context.Context, kind Kind, id int64) error {
	var err error
	switch kind {
	case KindOrder:
		_, err = s.orders.Sync(ctx, id, enums.SyncReasonRetry)
	case KindUser:
		_, err = s.loyalty.SyncClient(ctx, id, enums.SyncReasonRetry)
	case KindPurchase:
		var order models.Order
		if err = s.db.WithContext(ctx).First(&order, id).Error; err != nil {
			return err
		}
		_, err = s.loyalty.SyncPurchase(ctx, id, loyaltysync.ActionFor(&order), enums.SyncReasonRetry)
	default:
		err = pkgerrors.Newf(pkgerrors.CodeValidation, "unknown sweep kind %q", kind)
	}
	return err
}

// ParseKind accepts the admin retry-entity vocabulary.
func ParseKind(value string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown entity kind %q", value)
}

// Retry reprocesses a single entity immediately, regardless of its state.
func (s *Service) Retry(ctx context.Context, kind Kind, id int64) error {
	if id <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "entity id required")
	}
	return s.process(ctx, kind, id)
}
