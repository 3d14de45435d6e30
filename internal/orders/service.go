package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/pos"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

const actionPushOrder = "push_order"

// orderNamespace derives a stable POS order id from the local id so a
// retried create is recognized upstream.
var orderNamespace = uuid.MustParse("0b7e3c38-5b3c-4f5e-9a57-6f1de5f3c1a2")

// Service pushes local orders to the POS.
type Service interface {
	Sync(ctx context.Context, orderID int64, source enums.SyncReason) (*syncstatus.Result, error)
}

// ServiceParams wires the order push processor.
type ServiceParams struct {
	DB       *gorm.DB
	Repo     Repository
	Settings settings.Provider
	POS      pos.API
	Tracker  *syncstatus.Tracker
	SyncLog  *synclog.Service
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
}

type service struct {
	db       *gorm.DB
	repo     Repository
	settings settings.Provider
	pos      pos.API
	tracker  *syncstatus.Tracker
	synclog  *synclog.Service
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders db required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.POS == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pos client required")
	}
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync status tracker required")
	}
	if params.SyncLog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync log required")
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
		db:       params.DB,
		repo:     repo,
		settings: params.Settings,
		pos:      params.POS,
		tracker:  params.Tracker,
		synclog:  params.SyncLog,
		logg:     logg,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) Sync(ctx context.Context, orderID int64, source enums.SyncReason) (*syncstatus.Result, error) {
	started := time.Now()
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationPOS), string(enums.ModuleOrders))
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "reason": source})

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
	if !snap.External(enums.IntegrationPOS, enums.ModuleOrders) {
		s.observe("skipped", started)
		return syncstatus.Skipped("pos order mode is not external"), nil
	}
	if order.POS.Linked() {
		s.observe("already_synced", started)
		return &syncstatus.Result{Outcome: syncstatus.OutcomeAlreadySynced, ExternalID: *order.POS.ExternalID}, nil
	}

	entry := synclog.Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleOrders,
		Action:      actionPushOrder,
		Reason:      source,
		EntityType:  enums.EntityOrder,
		EntityID:    strconv.FormatInt(order.ID, 10),
		Attempts:    order.POS.Attempts + 1,
	}

	req, err := s.buildDelivery(ctx, snap, order)
	if err != nil {
		// Precondition failures leave the sync state untouched.
		s.record(ctx, entry, enums.SyncLogStatusError, nil, err, started)
		s.logg.Error(ctx, "order push rejected before calling pos", err)
		s.observe("error", started)
		return nil, err
	}
	entry.Request = req

	created, callErr := s.pos.CreateDelivery(ctx, *req)
	if callErr != nil {
		status, err := s.tracker.MarkFailure(ctx, s.db, syncstatus.OrderPOS, order.ID, callErr)
		if err != nil {
			return nil, errors.Join(callErr, err)
		}
		logStatus := enums.SyncLogStatusError
		if status == enums.SyncStatusFailed {
			logStatus = enums.SyncLogStatusFailed
		}
		s.record(ctx, entry, logStatus, nil, callErr, started)
		s.logg.Error(s.logg.WithField(ctx, "sync_status", status), "order push failed", callErr)
		s.observe(string(logStatus), started)
		return nil, callErr
	}

	externalID := created.OrderInfo.ID
	if err := s.tracker.MarkSynced(ctx, s.db, syncstatus.OrderPOS, order.ID, externalID); err != nil {
		return nil, err
	}
	s.record(ctx, entry, enums.SyncLogStatusSuccess, created, nil, started)
	s.logg.Info(s.logg.WithField(ctx, "pos_order_id", externalID), "order pushed to pos")
	s.observe("success", started)
	return &syncstatus.Result{Outcome: syncstatus.OutcomeSynced, ExternalID: externalID}, nil
}

func (s *service) buildDelivery(ctx context.Context, snap *settings.Snapshot, order *models.Order) (*pos.DeliveryRequest, error) {
	phone := ""
	if order.Phone != nil {
		phone = NormalizePhone(*order.Phone)
	}
	if phone == "" && order.UserID != nil {
		user, err := s.repo.FindUser(ctx, s.db, *order.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if user != nil && user.Phone != nil {
			phone = NormalizePhone(*user.Phone)
		}
	}
	if phone == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order %d has no resolvable phone", order.ID)
	}

	organizationID, terminalGroupID, err := s.resolveTarget(ctx, snap, order)
	if err != nil {
		return nil, err
	}
	items, err := s.buildItems(ctx, order)
	if err != nil {
		return nil, err
	}

	delivery := pos.DeliveryOrder{
		ID:               uuid.NewSHA1(orderNamespace, []byte(strconv.FormatInt(order.ID, 10))).String(),
		ExternalNumber:   strconv.FormatInt(order.ID, 10),
		Phone:            phone,
		OrderServiceType: pos.ServiceTypeCourier,
		Customer:         pos.DeliveryCustomer{Name: order.CustomerName},
		Items:            items,
	}
	if order.FulfillmentType == enums.FulfillmentPickup {
		delivery.OrderServiceType = pos.ServiceTypePickup
	} else if order.Address != nil {
		delivery.DeliveryPoint = &pos.DeliveryPoint{Comment: *order.Address}
	}
	if order.Comment != nil {
		delivery.Comment = *order.Comment
	}
	return &pos.DeliveryRequest{
		OrganizationID:  organizationID,
		TerminalGroupID: terminalGroupID,
		Order:           delivery,
	}, nil
}

func (s *service) resolveTarget(ctx context.Context, snap *settings.Snapshot, order *models.Order) (string, string, error) {
	organizationID := ""
	city, err := s.repo.FindCity(ctx, s.db, order.CityID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", err
	}
	if city != nil && city.OrganizationID != nil {
		organizationID = *city.OrganizationID
	}
	if organizationID == "" && len(snap.POS.OrganizationIDs) > 0 {
		organizationID = snap.POS.OrganizationIDs[0]
	}
	if organizationID == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "no pos organization configured for the order city")
	}

	terminalGroupID := ""
	if order.BranchID != nil {
		branch, err := s.repo.FindBranch(ctx, s.db, *order.BranchID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", err
		}
		if branch != nil && branch.ExternalID != nil {
			terminalGroupID = *branch.ExternalID
		}
	}
	return organizationID, terminalGroupID, nil
}

// buildItems maps every line to POS products. An order with any line or
// modifier missing its POS link is rejected whole.
func (s *service) buildItems(ctx context.Context, order *models.Order) ([]pos.DeliveryItem, error) {
	if len(order.Items) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order %d has no items", order.ID)
	}
	var itemIDs, variantIDs, modifierIDs []int64
	modifiersByLine := make([][]models.OrderItemModifier, len(order.Items))
	for i, line := range order.Items {
		itemIDs = append(itemIDs, line.ItemID)
		if line.VariantID != nil {
			variantIDs = append(variantIDs, *line.VariantID)
		}
		if len(line.Modifiers) > 0 {
			if err := json.Unmarshal(line.Modifiers, &modifiersByLine[i]); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("order item %d has malformed modifiers", line.ID))
			}
			for _, m := range modifiersByLine[i] {
				modifierIDs = append(modifierIDs, m.ModifierID)
			}
		}
	}
	items, err := s.repo.ItemExternalIDs(ctx, s.db, itemIDs)
	if err != nil {
		return nil, err
	}
	variants, err := s.repo.VariantExternalIDs(ctx, s.db, variantIDs)
	if err != nil {
		return nil, err
	}
	modifiers, err := s.repo.ModifierExternalIDs(ctx, s.db, modifierIDs)
	if err != nil {
		return nil, err
	}

	var unmappedItems, unmappedModifiers []string
	for i, line := range order.Items {
		if _, ok := items[line.ItemID]; !ok {
			unmappedItems = append(unmappedItems, strconv.FormatInt(line.ItemID, 10))
		}
		for _, m := range modifiersByLine[i] {
			if _, ok := modifiers[m.ModifierID]; !ok {
				unmappedModifiers = append(unmappedModifiers, strconv.FormatInt(m.ModifierID, 10))
			}
		}
	}
	if len(unmappedItems) > 0 || len(unmappedModifiers) > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"unmapped_items":     unmappedItems,
			"unmapped_modifiers": unmappedModifiers,
		}), "order has lines without pos products")
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
			"order %d has items not mapped to the pos: items [%s] modifiers [%s]",
			order.ID, strings.Join(unmappedItems, ", "), strings.Join(unmappedModifiers, ", "))
	}

	out := make([]pos.DeliveryItem, 0, len(order.Items))
	for i, line := range order.Items {
		productID := items[line.ItemID]
		price := line.Price
		item := pos.DeliveryItem{Type: "Product", ProductID: productID, Amount: line.Quantity, Price: &price}
		if line.VariantID != nil {
			if variantExternal, ok := variants[*line.VariantID]; ok && variantExternal != productID {
				item.ProductSizeID = pos.ExtractSizeID(variantExternal)
			}
		}
		for _, m := range modifiersByLine[i] {
			ref := splitModifier(modifiers[m.ModifierID])
			amount := m.Quantity
			if amount <= 0 {
				amount = 1
			}
			item.Modifiers = append(item.Modifiers, pos.DeliveryModifier{
				ProductID:      ref.ProductExternalID,
				ProductGroupID: ref.GroupExternalID,
				Amount:         amount,
			})
		}
		out = append(out, item)
	}
	return out, nil
}

func splitModifier(externalID string) ModifierRef {
	group, product, found := strings.Cut(externalID, "_")
	if !found {
		return ModifierRef{ProductExternalID: externalID}
	}
	return ModifierRef{GroupExternalID: group, ProductExternalID: product}
}

func (s *service) record(ctx context.Context, entry synclog.Entry, status enums.SyncLogStatus, response any, cause error, started time.Time) {
	if err := s.synclog.Record(ctx, entry, status, response, cause, time.Since(started)); err != nil {
		s.logg.Error(ctx, "record order sync log failed", err)
	}
}

func (s *service) observe(status string, started time.Time) {
	s.metrics.ObserveRun(string(enums.IntegrationPOS), string(enums.ModuleOrders), status, time.Since(started))
}
