package queue

import "github.com/angelmondragon/foodsync-backend/pkg/enums"

// Queue names.
const (
	QueueMenuSync            = "menu-sync"
	QueueStopListSync        = "stoplist-sync"
	QueueDeliveryZonesSync   = "delivery-zones-sync"
	QueueOrderSync           = "order-sync"
	QueueLoyaltyClientSync   = "loyalty-client-sync"
	QueueLoyaltyPurchaseSync = "loyalty-purchase-sync"
)

// Queues lists every queue the worker consumes.
var Queues = []string{
	QueueMenuSync,
	QueueStopListSync,
	QueueDeliveryZonesSync,
	QueueOrderSync,
	QueueLoyaltyClientSync,
	QueueLoyaltyPurchaseSync,
}

type MenuSyncPayload struct {
	Reason enums.SyncReason `json:"reason"`
	CityID *int64           `json:"cityId,omitempty"`
}

type StopListSyncPayload struct {
	Reason   enums.SyncReason `json:"reason"`
	BranchID *int64           `json:"branchId,omitempty"`
}

type DeliveryZonesSyncPayload struct {
	Reason enums.SyncReason `json:"reason"`
}

type OrderSyncPayload struct {
	OrderID int64            `json:"orderId"`
	Source  enums.SyncReason `json:"source"`
}

type LoyaltyClientSyncPayload struct {
	UserID int64            `json:"userId"`
	Source enums.SyncReason `json:"source"`
}

type LoyaltyPurchaseSyncPayload struct {
	OrderID int64                `json:"orderId"`
	Action  enums.PurchaseAction `json:"action"`
	Source  enums.SyncReason     `json:"source"`
}
