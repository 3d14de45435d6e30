package pos

import "github.com/shopspring/decimal"

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type organizationsRequest struct {
	OrganizationIDs      []string `json:"organizationIds,omitempty"`
	ReturnAdditionalInfo bool     `json:"returnAdditionalInfo"`
	IncludeDisabled      bool     `json:"includeDisabled"`
}

type organizationsResponse struct {
	Organizations []Organization `json:"organizations"`
}

type nomenclatureRequest struct {
	OrganizationID string `json:"organizationId"`
	StartRevision  int64  `json:"startRevision,omitempty"`
}

// Nomenclature is the full catalog of one organization at Revision.
type Nomenclature struct {
	Groups   []Group   `json:"groups"`
	Products []Product `json:"products"`
	Sizes    []Size    `json:"sizes"`
	Revision int64     `json:"revision"`
}

// Group is a catalog folder; menu categories and modifier groups are both groups.
type Group struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      *string `json:"description"`
	ParentGroup      *string `json:"parentGroup"`
	Order            int     `json:"order"`
	IsIncludedInMenu bool    `json:"isIncludedInMenu"`
	IsGroupModifier  bool    `json:"isGroupModifier"`
	IsDeleted        bool    `json:"isDeleted"`
}

const (
	ProductTypeDish     = "Dish"
	ProductTypeGood     = "Good"
	ProductTypeModifier = "Modifier"
)

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	GroupID        *string         `json:"groupId"`
	ParentGroup    *string         `json:"parentGroup"`
	Type           string          `json:"type"`
	Order          int             `json:"order"`
	Weight         *float64        `json:"weight"`
	IsDeleted      bool            `json:"isDeleted"`
	Tags           []string        `json:"tags"`
	SizePrices     []SizePrice     `json:"sizePrices"`
	GroupModifiers []GroupModifier `json:"groupModifiers"`
}

// CategoryID returns the folder the product belongs to.
func (p Product) CategoryID() string {
	if p.ParentGroup != nil && *p.ParentGroup != "" {
		return *p.ParentGroup
	}
	if p.GroupID != nil {
		return *p.GroupID
	}
	return ""
}

type SizePrice struct {
	SizeID *string `json:"sizeId"`
	Price  struct {
		CurrentPrice     decimal.Decimal `json:"currentPrice"`
		IsIncludedInMenu bool            `json:"isIncludedInMenu"`
	} `json:"price"`
}

type GroupModifier struct {
	ID             string          `json:"id"`
	MinAmount      int             `json:"minAmount"`
	MaxAmount      int             `json:"maxAmount"`
	ChildModifiers []ChildModifier `json:"childModifiers"`
}

type ChildModifier struct {
	ID        string `json:"id"`
	MinAmount int    `json:"minAmount"`
	MaxAmount int    `json:"maxAmount"`
}

type Size struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type externalMenuRequest struct {
	ExternalMenuID  string   `json:"externalMenuId"`
	OrganizationIDs []string `json:"organizationIds"`
	PriceCategoryID string   `json:"priceCategoryId,omitempty"`
}

// ExternalMenu scopes which categories and items are published.
type ExternalMenu struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Categories []MenuItemCategory `json:"itemCategories"`
}

type MenuItemCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

type MenuItem struct {
	ItemID string         `json:"itemId"`
	Name   string         `json:"name"`
	Sizes  []MenuItemSize `json:"itemSizes"`
}

type MenuItemSize struct {
	SizeID   *string     `json:"sizeId"`
	SizeName string      `json:"sizeName"`
	Prices   []MenuPrice `json:"prices"`
}

type MenuPrice struct {
	OrganizationIDs []string         `json:"organizations"`
	Price           *decimal.Decimal `json:"price"`
}

type organizationsScope struct {
	OrganizationIDs []string `json:"organizationIds"`
}

type TerminalGroup struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
}

type terminalGroupsResponse struct {
	TerminalGroups []struct {
		OrganizationID string          `json:"organizationId"`
		Items          []TerminalGroup `json:"items"`
	} `json:"terminalGroups"`
}

// StopListItem is an out-of-stock product at one terminal group.
type StopListItem struct {
	TerminalGroupID string          `json:"-"`
	ProductID       string          `json:"productId"`
	SizeID          *string         `json:"sizeId"`
	Balance         decimal.Decimal `json:"balance"`
}

type stopListsResponse struct {
	TerminalGroupStopLists []struct {
		OrganizationID string `json:"organizationId"`
		Items          []struct {
			TerminalGroupID string         `json:"terminalGroupId"`
			Items           []StopListItem `json:"items"`
		} `json:"items"`
	} `json:"terminalGroupStopLists"`
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type DeliveryZone struct {
	Name        string       `json:"name"`
	Coordinates []Coordinate `json:"coordinates"`
}

type DeliveryRestriction struct {
	TerminalGroupID string          `json:"terminalGroupId"`
	Zone            string          `json:"zone"`
	MinSum          decimal.Decimal `json:"minSum"`
	DurationMinutes int             `json:"deliveryDurationInMinutes"`
}

// DeliveryRestrictions are the zones and per-terminal rules of one organization.
type DeliveryRestrictions struct {
	OrganizationID string                `json:"organizationId"`
	Zones          []DeliveryZone        `json:"deliveryZones"`
	Restrictions   []DeliveryRestriction `json:"restrictions"`
}

type deliveryRestrictionsResponse struct {
	DeliveryRestrictions []DeliveryRestrictions `json:"deliveryRestrictions"`
}

// DeliveryRequest creates an order in the POS.
type DeliveryRequest struct {
	OrganizationID  string        `json:"organizationId"`
	TerminalGroupID string        `json:"terminalGroupId,omitempty"`
	Order           DeliveryOrder `json:"order"`
}

type DeliveryOrder struct {
	ID               string           `json:"id,omitempty"`
	ExternalNumber   string           `json:"externalNumber,omitempty"`
	Phone            string           `json:"phone"`
	OrderServiceType string           `json:"orderServiceType"`
	Customer         DeliveryCustomer `json:"customer"`
	DeliveryPoint    *DeliveryPoint   `json:"deliveryPoint,omitempty"`
	Comment          string           `json:"comment,omitempty"`
	Items            []DeliveryItem   `json:"items"`
}

type DeliveryCustomer struct {
	Name string `json:"name"`
}

type DeliveryPoint struct {
	Comment string `json:"comment"`
}

const (
	ServiceTypeCourier = "DeliveryByCourier"
	ServiceTypePickup  = "DeliveryByClient"
)

type DeliveryItem struct {
	Type          string             `json:"type"`
	ProductID     string             `json:"productId"`
	ProductSizeID string             `json:"productSizeId,omitempty"`
	Amount        int                `json:"amount"`
	Price         *decimal.Decimal   `json:"price,omitempty"`
	Modifiers     []DeliveryModifier `json:"modifiers,omitempty"`
}

type DeliveryModifier struct {
	ProductID      string `json:"productId"`
	ProductGroupID string `json:"productGroupId,omitempty"`
	Amount         int    `json:"amount"`
}

// DeliveryResult carries the POS order id assigned on creation.
type DeliveryResult struct {
	CorrelationID string `json:"correlationId"`
	OrderInfo     struct {
		ID     string `json:"id"`
		Status string `json:"creationStatus"`
	} `json:"orderInfo"`
}
