package enums

import (
	"fmt"
	"strings"
)

// OrderStatus is the local fulfillment status of an order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCooking   OrderStatus = "cooking"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusOnWay     OrderStatus = "on_way"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusConfirmed,
	OrderStatusCooking,
	OrderStatusReady,
	OrderStatusOnWay,
	OrderStatusDelivered,
	OrderStatusClosed,
	OrderStatusCancelled,
}

func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Completed reports whether the order earned its bonuses.
func (s OrderStatus) Completed() bool {
	return s == OrderStatusDelivered || s == OrderStatusClosed
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// externalOrderStatuses maps the POS status vocabulary (lower-cased) onto local statuses.
var externalOrderStatuses = map[string]OrderStatus{
	"unconfirmed":      OrderStatusNew,
	"waitcooking":      OrderStatusConfirmed,
	"readyforcooking":  OrderStatusConfirmed,
	"cookingstarted":   OrderStatusCooking,
	"cookingcompleted": OrderStatusReady,
	"waiting":          OrderStatusReady,
	"onway":            OrderStatusOnWay,
	"delivered":        OrderStatusDelivered,
	"closed":           OrderStatusClosed,
	"cancelled":        OrderStatusCancelled,
}

// MapExternalOrderStatus translates a POS status; ok is false for unknown values.
func MapExternalOrderStatus(external string) (OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(external))
	key = strings.NewReplacer("_", "", " ", "", "-", "").Replace(key)
	status, ok := externalOrderStatuses[key]
	return status, ok
}

// FulfillmentType is how an order reaches the customer.
type FulfillmentType string

const (
	FulfillmentDelivery FulfillmentType = "delivery"
	FulfillmentPickup   FulfillmentType = "pickup"
)

// FulfillmentTypes lists every price channel a menu item is priced for.
var FulfillmentTypes = []FulfillmentType{FulfillmentDelivery, FulfillmentPickup}

func (f FulfillmentType) IsValid() bool {
	return f == FulfillmentDelivery || f == FulfillmentPickup
}

// PurchaseAction is the loyalty purchase operation to replay.
type PurchaseAction string

const (
	PurchaseActionCreate PurchaseAction = "create"
	PurchaseActionStatus PurchaseAction = "status"
	PurchaseActionCancel PurchaseAction = "cancel"
)

func ParsePurchaseAction(value string) (PurchaseAction, error) {
	switch PurchaseAction(value) {
	case PurchaseActionCreate, PurchaseActionStatus, PurchaseActionCancel:
		return PurchaseAction(value), nil
	}
	return "", fmt.Errorf("invalid purchase action %q", value)
}

// StopListSource separates POS-driven entries from manual ones.
type StopListSource string

const (
	StopListSourceExternal StopListSource = "external"
	StopListSourceLocal    StopListSource = "local"
)
