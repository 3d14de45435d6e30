package loyaltysync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/loyalty"
	"github.com/angelmondragon/foodsync-backend/internal/orders"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

const (
	actionUpsertCustomer = "upsert_customer"
	actionPurchasePrefix = "purchase_"
)

// Service registers customers and replays purchases on the loyalty platform.
type Service interface {
	SyncClient(ctx context.Context, userID int64, reason enums.SyncReason) (*syncstatus.Result, error)
	SyncPurchase(ctx context.Context, orderID int64, action enums.PurchaseAction, reason enums.SyncReason) (*syncstatus.Result, error)
}

type ServiceParams struct {
	DB       *gorm.DB
	Repo     orders.Repository
	Settings settings.Provider
	Loyalty  loyalty.API
	Tracker  *syncstatus.Tracker
	SyncLog  *synclog.Service
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
}

type service struct {
	db       *gorm.DB
	repo     orders.Repository
	settings settings.Provider
	loyalty  loyalty.API
	tracker  *syncstatus.Tracker
	synclog  *synclog.Service
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "loyalty sync db required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.Loyalty == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "loyalty client required")
	}
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync status tracker required")
	}
	if params.SyncLog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync log required")
	}
	repo := params.Repo
	if repo == nil {
		repo = orders.NewRepository()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:       params.DB,
		repo:     repo,
		settings: params.Settings,
		loyalty:  params.Loyalty,
		tracker:  params.Tracker,
		synclog:  params.SyncLog,
		logg:     logg,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) SyncClient(ctx context.Context, userID int64, reason enums.SyncReason) (*syncstatus.Result, error) {
	started := time.Now()
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationLoyalty), string(enums.ModuleClients))
	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID, "reason": reason})

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "user %d not found", userID)
		}
		return nil, err
	}
	if !snap.External(enums.IntegrationLoyalty, enums.ModuleClients) {
		s.observe(enums.ModuleClients, "skipped", started)
		return syncstatus.Skipped("loyalty clients mode is not external"), nil
	}

	entry := synclog.Entry{
		Integration: enums.IntegrationLoyalty,
		Module:      enums.ModuleClients,
		Action:      actionUpsertCustomer,
		Reason:      reason,
		EntityType:  enums.EntityUser,
		EntityID:    strconv.FormatInt(user.ID, 10),
		Attempts:    user.Loyalty.Attempts + 1,
	}

	phone := ""
	if user.Phone != nil {
		phone = orders.NormalizePhone(*user.Phone)
	}
	if phone == "" {
		err := pkgerrors.Newf(pkgerrors.CodeValidation, "user %d has no resolvable phone", user.ID)
		s.record(ctx, entry, enums.SyncLogStatusError, nil, err, started)
		s.observe(enums.ModuleClients, "error", started)
		return nil, err
	}
	req := loyalty.CustomerRequest{
		ExternalID: strconv.FormatInt(user.ID, 10),
		Phone:      phone,
		Name:       user.Name,
		Email:      user.Email,
	}
	entry.Request = req

	customer, callErr := s.loyalty.UpsertCustomer(ctx, req)
	if callErr != nil {
		return nil, s.fail(ctx, entry, syncstatus.UserLoyalty, user.ID, callErr, started)
	}
	if err := s.tracker.MarkSynced(ctx, s.db, syncstatus.UserLoyalty, user.ID, customer.ID); err != nil {
		return nil, err
	}
	s.record(ctx, entry, enums.SyncLogStatusSuccess, customer, nil, started)
	s.logg.Info(s.logg.WithField(ctx, "customer_id", customer.ID), "customer registered with loyalty")
	s.observe(enums.ModuleClients, "success", started)
	return &syncstatus.Result{Outcome: syncstatus.OutcomeSynced, ExternalID: customer.ID}, nil
}

func (s *service) SyncPurchase(ctx context.Context, orderID int64, action enums.PurchaseAction, reason enums.SyncReason) (*syncstatus.Result, error) {
	started := time.Now()
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationLoyalty), string(enums.ModulePurchases))
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "action": action, "reason": reason})

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindOrder(ctx, s.db, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %d not found", orderID)
		}
		return nil, err
	}
	if !snap.External(enums.IntegrationLoyalty, enums.ModulePurchases) {
		s.observe(enums.ModulePurchases, "skipped", started)
		return syncstatus.Skipped("loyalty purchases mode is not external"), nil
	}

	linked := order.Loyalty.Linked()
	switch {
	case action == enums.PurchaseActionCreate && linked:
		s.observe(enums.ModulePurchases, "already_synced", started)
		return &syncstatus.Result{Outcome: syncstatus.OutcomeAlreadySynced, ExternalID: *order.Loyalty.ExternalID}, nil
	case action == enums.PurchaseActionCancel && !linked:
		s.observe(enums.ModulePurchases, "skipped", started)
		return syncstatus.Skipped("purchase was never registered"), nil
	case action == enums.PurchaseActionStatus && !linked:
		// The create call carries the current status.
		action = enums.PurchaseActionCreate
	}

	ref := strconv.FormatInt(order.ID, 10)
	entry := synclog.Entry{
		Integration: enums.IntegrationLoyalty,
		Module:      enums.ModulePurchases,
		Action:      actionPurchasePrefix + string(action),
		Reason:      reason,
		EntityType:  enums.EntityOrder,
		EntityID:    ref,
		Attempts:    order.Loyalty.Attempts + 1,
	}

	var (
		purchase *loyalty.Purchase
		callErr  error
	)
	switch action {
	case enums.PurchaseActionCreate:
		customerID, err := s.customerID(ctx, order)
		if err != nil {
			s.record(ctx, entry, enums.SyncLogStatusError, nil, err, started)
			s.observe(enums.ModulePurchases, "error", started)
			return nil, err
		}
		req := purchaseRequest(order, customerID)
		entry.Request = req
		purchase, callErr = s.loyalty.CreatePurchase(ctx, req)
	case enums.PurchaseActionStatus:
		entry.Request = map[string]string{"orderId": ref, "status": string(order.Status)}
		purchase, callErr = s.loyalty.UpdatePurchaseStatus(ctx, ref, string(order.Status))
	case enums.PurchaseActionCancel:
		entry.Request = map[string]string{"orderId": ref}
		purchase, callErr = s.loyalty.CancelPurchase(ctx, ref)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown purchase action %q", action)
	}
	if callErr != nil {
		return nil, s.fail(ctx, entry, syncstatus.OrderLoyalty, order.ID, callErr, started)
	}

	externalID := ""
	if purchase != nil {
		externalID = purchase.ID
	}
	if externalID == "" && !linked {
		externalID = ref
	}
	if err := s.tracker.MarkSynced(ctx, s.db, syncstatus.OrderLoyalty, order.ID, externalID); err != nil {
		return nil, err
	}
	s.record(ctx, entry, enums.SyncLogStatusSuccess, purchase, nil, started)
	s.logg.Info(ctx, "purchase replayed to loyalty")
	s.observe(enums.ModulePurchases, "success", started)
	if externalID == "" && order.Loyalty.ExternalID != nil {
		externalID = *order.Loyalty.ExternalID
	}
	return &syncstatus.Result{Outcome: syncstatus.OutcomeSynced, ExternalID: externalID}, nil
}

// customerID requires the buyer to be registered with the loyalty platform.
func (s *service) customerID(ctx context.Context, order *models.Order) (string, error) {
	if order.UserID == nil {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "order %d has no customer", order.ID)
	}
	user, err := s.repo.FindUser(ctx, s.db, *order.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "order %d customer is missing", order.ID)
		}
		return "", err
	}
	if !user.Loyalty.Linked() {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "user %d is not registered with loyalty", user.ID)
	}
	return *user.Loyalty.ExternalID, nil
}

func purchaseRequest(order *models.Order, customerID string) loyalty.PurchaseRequest {
	items := make([]loyalty.PurchaseItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, loyalty.PurchaseItem{Name: line.Name, Quantity: line.Quantity, Price: line.Price})
	}
	return loyalty.PurchaseRequest{
		OrderRef:   strconv.FormatInt(order.ID, 10),
		CustomerID: customerID,
		Amount:     order.Total,
		Status:     string(order.Status),
		Items:      items,
	}
}

func (s *service) fail(ctx context.Context, entry synclog.Entry, target syncstatus.Target, id int64, callErr error, started time.Time) error {
	status, err := s.tracker.MarkFailure(ctx, s.db, target, id, callErr)
	if err != nil {
		return errors.Join(callErr, err)
	}
	logStatus := enums.SyncLogStatusError
	if status == enums.SyncStatusFailed {
		logStatus = enums.SyncLogStatusFailed
	}
	s.record(ctx, entry, logStatus, nil, callErr, started)
	s.logg.Error(s.logg.WithField(ctx, "sync_status", status), "loyalty call failed", callErr)
	s.observe(entry.Module, string(logStatus), started)
	return callErr
}

func (s *service) record(ctx context.Context, entry synclog.Entry, status enums.SyncLogStatus, response any, cause error, started time.Time) {
	if err := s.synclog.Record(ctx, entry, status, response, cause, time.Since(started)); err != nil {
		s.logg.Error(ctx, "record loyalty sync log failed", err)
	}
}

func (s *service) observe(module enums.SyncModule, status string, started time.Time) {
	s.metrics.ObserveRun(string(enums.IntegrationLoyalty), string(module), status, time.Since(started))
}

// ActionFor picks the purchase call that brings the loyalty platform in line
// with the order's current state. A cancelled order always maps to cancel,
// which is skipped when the purchase was never registered.
func ActionFor(order *models.Order) enums.PurchaseAction {
	if order.Status == enums.OrderStatusCancelled {
		return enums.PurchaseActionCancel
	}
	if !order.Loyalty.Linked() {
		return enums.PurchaseActionCreate
	}
	return enums.PurchaseActionStatus
}
