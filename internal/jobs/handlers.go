// Package jobs binds queue payloads to the sync processors.
package jobs

import (
	"context"
	"errors"

	"github.com/angelmondragon/foodsync-backend/internal/catalog"
	"github.com/angelmondragon/foodsync-backend/internal/deliveryzones"
	"github.com/angelmondragon/foodsync-backend/internal/mapping"
	"github.com/angelmondragon/foodsync-backend/internal/stoplist"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

type OrderSyncer interface {
	Sync(ctx context.Context, orderID int64, source enums.SyncReason) (*syncstatus.Result, error)
}

type LoyaltySyncer interface {
	SyncClient(ctx context.Context, userID int64, reason enums.SyncReason) (*syncstatus.Result, error)
	SyncPurchase(ctx context.Context, orderID int64, action enums.PurchaseAction, reason enums.SyncReason) (*syncstatus.Result, error)
}

type HandlersParams struct {
	Catalog       catalog.Service
	Mapping       mapping.Service
	StopList      stoplist.Service
	DeliveryZones deliveryzones.Service
	Orders        OrderSyncer
	Loyalty       LoyaltySyncer
	Logger        *logger.Logger
}

// Handlers holds one handler per queue.
type Handlers struct {
	catalog       catalog.Service
	mapping       mapping.Service
	stoplist      stoplist.Service
	deliveryZones deliveryzones.Service
	orders        OrderSyncer
	loyalty       LoyaltySyncer
	logg          *logger.Logger
}

func NewHandlers(params HandlersParams) (*Handlers, error) {
	switch {
	case params.Catalog == nil:
		return nil, errors.New("catalog service is required")
	case params.Mapping == nil:
		return nil, errors.New("mapping service is required")
	case params.StopList == nil:
		return nil, errors.New("stop-list service is required")
	case params.DeliveryZones == nil:
		return nil, errors.New("delivery zones service is required")
	case params.Orders == nil:
		return nil, errors.New("order service is required")
	case params.Loyalty == nil:
		return nil, errors.New("loyalty service is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Handlers{
		catalog:       params.Catalog,
		mapping:       params.Mapping,
		stoplist:      params.StopList,
		deliveryZones: params.DeliveryZones,
		orders:        params.Orders,
		loyalty:       params.Loyalty,
		logg:          logg,
	}, nil
}

// Workers returns the queue workers with the configured concurrency.
func (h *Handlers) Workers(cfg config.QueueConfig) []queue.Worker {
	return []queue.Worker{
		queue.FuncWorker{Name: queue.QueueMenuSync, Workers: cfg.MenuConcurrency, Fn: queue.Typed(h.MenuSync)},
		queue.FuncWorker{Name: queue.QueueStopListSync, Workers: cfg.StopListConcurrency, Fn: queue.Typed(h.StopListSync)},
		queue.FuncWorker{Name: queue.QueueDeliveryZonesSync, Workers: cfg.DeliveryZonesConcurrency, Fn: queue.Typed(h.DeliveryZonesSync)},
		queue.FuncWorker{Name: queue.QueueOrderSync, Workers: cfg.OrderConcurrency, Fn: queue.Typed(h.OrderSync)},
		queue.FuncWorker{Name: queue.QueueLoyaltyClientSync, Workers: cfg.LoyaltyClientConcurrency, Fn: queue.Typed(h.LoyaltyClientSync)},
		queue.FuncWorker{Name: queue.QueueLoyaltyPurchaseSync, Workers: cfg.LoyaltyPurchaseConcurrency, Fn: queue.Typed(h.LoyaltyPurchaseSync)},
	}
}

// MenuSync pulls the catalog and, when anything was written, regenerates the
// menu mapping candidates and readiness. Mapping failures are logged only so a
// committed catalog is never pulled twice.
func (h *Handlers) MenuSync(ctx context.Context, payload queue.MenuSyncPayload) error {
	result, err := h.catalog.Sync(ctx, catalog.Request{Reason: reason(payload.Reason), CityID: payload.CityID})
	if err != nil {
		return err
	}
	if result.Outcome != syncstatus.OutcomeSynced {
		return nil
	}
	if _, err := h.mapping.Rebuild(ctx, enums.IntegrationPOS, enums.ModuleMenu); err != nil {
		h.logg.Error(ctx, "rebuild menu mapping candidates failed", err)
	}
	if _, err := h.mapping.RefreshReadiness(ctx); err != nil {
		h.logg.Error(ctx, "refresh readiness failed", err)
	}
	return nil
}

func (h *Handlers) StopListSync(ctx context.Context, payload queue.StopListSyncPayload) error {
	_, err := h.stoplist.Sync(ctx, stoplist.Request{Reason: reason(payload.Reason), BranchID: payload.BranchID})
	return err
}

func (h *Handlers) DeliveryZonesSync(ctx context.Context, payload queue.DeliveryZonesSyncPayload) error {
	_, err := h.deliveryZones.Sync(ctx, deliveryzones.Request{Reason: reason(payload.Reason)})
	return err
}

func (h *Handlers) OrderSync(ctx context.Context, payload queue.OrderSyncPayload) error {
	_, err := h.orders.Sync(ctx, payload.OrderID, reason(payload.Source))
	return err
}

func (h *Handlers) LoyaltyClientSync(ctx context.Context, payload queue.LoyaltyClientSyncPayload) error {
	_, err := h.loyalty.SyncClient(ctx, payload.UserID, reason(payload.Source))
	return err
}

func (h *Handlers) LoyaltyPurchaseSync(ctx context.Context, payload queue.LoyaltyPurchaseSyncPayload) error {
	action := payload.Action
	if action == "" {
		action = enums.PurchaseActionCreate
	}
	_, err := h.loyalty.SyncPurchase(ctx, payload.OrderID, action, reason(payload.Source))
	return err
}

func reason(r enums.SyncReason) enums.SyncReason {
	if r.IsValid() {
		return r
	}
	return enums.SyncReasonManual
}
