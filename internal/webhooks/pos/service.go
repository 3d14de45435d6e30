package poswebhook

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/ledger"
	"github.com/angelmondragon/foodsync-backend/internal/loyaltysync"
	"github.com/angelmondragon/foodsync-backend/internal/notifications"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/pkg/db"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

const (
	actionOrderStatus = "order_status"
	actionStopList    = "stoplist_changed"
	transitionSource  = "pos_webhook"
)

// Service applies inbound POS callbacks.
type Service interface {
	VerifySignature(ctx context.Context, payload []byte, header string) error
	HandleOrderStatus(ctx context.Context, event OrderStatusEvent) (*Result, error)
	HandleStopList(ctx context.Context, event StopListEvent) (*Result, error)
}

type ServiceParams struct {
	DB        *db.Client
	Repo      Repository
	Settings  settings.Provider
	SyncLog   *synclog.Service
	Ledger    ledger.Service
	Scheduler queue.Scheduler
	Notifier  notifications.Service
	Logger    *logger.Logger
	Metrics   *metrics.SyncMetrics
}

type service struct {
	db        *db.Client
	repo      Repository
	settings  settings.Provider
	synclog   *synclog.Service
	ledger    ledger.Service
	scheduler queue.Scheduler
	notifier  notifications.Service
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook db required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.SyncLog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync log required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Scheduler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "job scheduler required")
	}
	repo := params.Repo
	if repo == nil {
		repo = NewRepository()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:        params.DB,
		repo:      repo,
		settings:  params.Settings,
		synclog:   params.SyncLog,
		ledger:    params.Ledger,
		scheduler: params.Scheduler,
		notifier:  params.Notifier,
		logg:      logg,
		metrics:   params.Metrics,
	}, nil
}

func (s *service) VerifySignature(ctx context.Context, payload []byte, header string) error {
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.POS.WebhookSecret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret not configured")
	}
	if !ValidSignature(payload, snap.POS.WebhookSecret, header) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

func (s *service) HandleOrderStatus(ctx context.Context, event OrderStatusEvent) (*Result, error) {
	started := time.Now()
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationPOS), string(enums.ModuleWebhooks))
	ctx = s.logg.WithFields(ctx, map[string]any{"pos_order_id": event.OrderID, "external_status": event.Status})

	entry := synclog.Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleWebhooks,
		Action:      actionOrderStatus,
		Reason:      enums.SyncReasonWebhook,
		EntityType:  enums.EntityOrder,
		EntityID:    event.OrderID,
		Request:     event,
		Attempts:    1,
	}

	if event.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	status, ok := enums.MapExternalOrderStatus(event.Status)
	if !ok {
		s.logg.Warn(ctx, "unknown pos order status ignored")
		s.observe("ignored", started)
		return &Result{Outcome: OutcomeIgnored, Reason: "unknown status " + event.Status}, nil
	}

	var (
		order    *models.Order
		previous enums.OrderStatus
		result   *Result
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.FindOrderByExternalID(ctx, tx, event.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", event.OrderID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		order = found
		previous = found.Status
		if previous == status {
			result = &Result{Outcome: OutcomeUnchanged, OrderID: found.ID, Status: status, Previous: previous}
			return nil
		}
		inserted, err := s.repo.InsertTransition(ctx, tx, &models.OrderStatusTransition{
			OrderID:        found.ID,
			FromStatus:     previous,
			ToStatus:       status,
			EventKey:       event.transitionKey(previous, status),
			ExternalStatus: event.Status,
			Source:         transitionSource,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "log status transition")
		}
		if !inserted {
			result = &Result{Outcome: OutcomeDuplicate, OrderID: found.ID, Status: status, Previous: previous}
			return nil
		}
		if err := s.repo.UpdateStatus(ctx, tx, found.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = status
		result = &Result{Outcome: OutcomeApplied, OrderID: found.ID, Status: status, Previous: previous}
		return nil
	})
	if err != nil {
		logStatus := enums.SyncLogStatusError
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			logStatus = enums.SyncLogStatusFailed
		}
		s.record(ctx, entry, logStatus, nil, err, started)
		s.logg.Error(ctx, "pos order status webhook failed", err)
		s.observe(string(logStatus), started)
		return nil, err
	}

	if result.Outcome == OutcomeApplied {
		s.afterTransition(ctx, order, previous)
	}
	s.record(ctx, entry, enums.SyncLogStatusSuccess, result, nil, started)
	s.logg.Info(s.logg.WithField(ctx, "outcome", result.Outcome), "pos order status webhook handled")
	s.observe(string(result.Outcome), started)
	return result, nil
}

// afterTransition runs once the status change is committed. Failures here are
// logged and never undo the transition.
func (s *service) afterTransition(ctx context.Context, order *models.Order, previous enums.OrderStatus) {
	ctx = s.logg.WithField(ctx, "order_id", order.ID)

	if eventType, ok := ledgerEventFor(order.Status); ok {
		metadata, _ := json.Marshal(map[string]any{"status": order.Status, "previous_status": previous})
		_, created, err := s.ledger.RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:  order.ID,
			UserID:   order.UserID,
			Type:     eventType,
			Amount:   order.Total,
			Metadata: metadata,
		})
		switch {
		case err != nil:
			s.logg.Error(ctx, "record ledger event failed", err)
		case !created:
			s.logg.Debug(ctx, "ledger event already recorded")
		}
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		s.logg.Error(ctx, "load settings for purchase sync failed", err)
	} else if order.UserID != nil && snap.External(enums.IntegrationLoyalty, enums.ModulePurchases) {
		action := loyaltysync.ActionFor(order)
		if _, err := s.scheduler.Enqueue(ctx, queue.QueueLoyaltyPurchaseSync, queue.LoyaltyPurchaseSyncPayload{
			OrderID: order.ID,
			Action:  action,
			Source:  enums.SyncReasonWebhook,
		}); err != nil {
			s.logg.Error(ctx, "enqueue purchase sync failed", err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.OrderStatusChanged(ctx, order, previous); err != nil {
			s.logg.Error(ctx, "publish order status failed", err)
		}
	}
}

func ledgerEventFor(status enums.OrderStatus) (enums.LedgerEventType, bool) {
	switch {
	case status.Completed():
		return enums.LedgerEventTypeEarn, true
	case status == enums.OrderStatusCancelled:
		return enums.LedgerEventTypeCancel, true
	}
	return "", false
}

func (s *service) HandleStopList(ctx context.Context, event StopListEvent) (*Result, error) {
	started := time.Now()
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationPOS), string(enums.ModuleWebhooks))

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.External(enums.IntegrationPOS, enums.ModuleStopList) {
		s.observe("ignored", started)
		return &Result{Outcome: OutcomeIgnored, Reason: "pos stoplist mode is not external"}, nil
	}
	jobID, err := s.scheduler.Enqueue(ctx, queue.QueueStopListSync, queue.StopListSyncPayload{Reason: enums.SyncReasonWebhook})
	entry := synclog.Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleWebhooks,
		Action:      actionStopList,
		Reason:      enums.SyncReasonWebhook,
		Request:     event,
		Attempts:    1,
	}
	if err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue stop-list sync")
		s.record(ctx, entry, enums.SyncLogStatusError, nil, err, started)
		s.observe("error", started)
		return nil, err
	}
	result := &Result{Outcome: OutcomeQueued, JobID: jobID}
	s.record(ctx, entry, enums.SyncLogStatusSuccess, result, nil, started)
	s.logg.Info(s.logg.WithField(ctx, "job_id", jobID), "stop-list sync queued from webhook")
	s.observe(string(OutcomeQueued), started)
	return result, nil
}

func (s *service) record(ctx context.Context, entry synclog.Entry, status enums.SyncLogStatus, response any, cause error, started time.Time) {
	if err := s.synclog.Record(ctx, entry, status, response, cause, time.Since(started)); err != nil {
		s.logg.Error(ctx, "record webhook sync log failed", err)
	}
}

func (s *service) observe(status string, started time.Time) {
	s.metrics.ObserveRun(string(enums.IntegrationPOS), string(enums.ModuleWebhooks), status, time.Since(started))
}
