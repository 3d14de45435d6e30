package loyalty

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/integration"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

const tokenPath = "/v1/auth/token"

// API is the loyalty platform surface used by the sync processors.
type API interface {
	UpsertCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)
	CreatePurchase(ctx context.Context, req PurchaseRequest) (*Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, orderRef, status string) (*Purchase, error)
	CancelPurchase(ctx context.Context, orderRef string) (*Purchase, error)
	TestConnection(ctx context.Context) error
}

// CustomerRequest upserts by phone, falling back to the local reference.
type CustomerRequest struct {
	ExternalID string  `json:"externalId"`
	Phone      string  `json:"phone"`
	Name       string  `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
}

type Customer struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

// PurchaseRequest is keyed by the local order reference so replays collapse.
type PurchaseRequest struct {
	OrderRef   string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Items      []PurchaseItem  `json:"items"`
}

type PurchaseItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Purchase struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type Requester interface {
	Request(ctx context.Context, method, path string, body, out any) error
	Authenticate(ctx context.Context) error
}

type Client struct {
	http  Requester
	retry integration.RetryOptions
}

type ClientParams struct {
	Config   config.IntegrationConfig
	Settings settings.Provider
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
}

func NewClient(params ClientParams) (*Client, error) {
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.Config.LoyaltyBaseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "loyalty base url required")
	}
	creds := integration.CredentialFunc(func(ctx context.Context) (integration.Credentials, error) {
		snap, err := params.Settings.Snapshot(ctx)
		if err != nil {
			return integration.Credentials{}, err
		}
		if !snap.Loyalty.Configured() {
			return integration.Credentials{}, integration.NotConfigured("loyalty credentials are not configured")
		}
		return snap.Loyalty.Credentials(), nil
	})
	adapter, err := integration.NewClient(integration.Options{
		Name:               string(enums.IntegrationLoyalty),
		BaseURL:            params.Config.LoyaltyBaseURL,
		TokenPath:          tokenPath,
		Timeout:            params.Config.RequestTimeout,
		RateLimitPerSecond: params.Config.RateLimitPerSecond,
		RateLimitBurst:     params.Config.RateLimitBurst,
		BreakerFailures:    params.Config.BreakerFailures,
		BreakerOpenTimeout: params.Config.BreakerOpenTimeout,
		Logger:             params.Logger,
		Metrics:            params.Metrics,
	}, creds)
	if err != nil {
		return nil, err
	}
	m := params.Metrics
	return NewWithRequester(adapter, integration.RetryOptions{
		Retries:   params.Config.Retries,
		BaseDelay: params.Config.RetryBaseDelay,
		OnRetry: func(int, error) {
			m.IncRetry(string(enums.IntegrationLoyalty))
		},
	}), nil
}

func NewWithRequester(r Requester, retry integration.RetryOptions) *Client {
	return &Client{http: r, retry: retry}
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	return integration.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.http.Request(ctx, method, path, body, out)
	})
}

func (c *Client) UpsertCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	if req.Phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer phone is required")
	}
	var resp Customer
	if err := c.call(ctx, http.MethodPost, "/v1/customers/upsert", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &integration.Error{Code: integration.CodeDecode, Err: fmt.Errorf("customer response carries no id")}
	}
	return &resp, nil
}

func (c *Client) CreatePurchase(ctx context.Context, req PurchaseRequest) (*Purchase, error) {
	if req.OrderRef == "" || req.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase requires an order reference and a customer")
	}
	var resp Purchase
	if err := c.call(ctx, http.MethodPost, "/v1/purchases", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdatePurchaseStatus(ctx context.Context, orderRef, status string) (*Purchase, error) {
	var resp Purchase
	path := fmt.Sprintf("/v1/purchases/%s/status", url.PathEscape(orderRef))
	if err := c.call(ctx, http.MethodPost, path, statusRequest{Status: status}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CancelPurchase(ctx context.Context, orderRef string) (*Purchase, error) {
	var resp Purchase
	path := fmt.Sprintf("/v1/purchases/%s/cancel", url.PathEscape(orderRef))
	if err := c.call(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.http.Authenticate(ctx); err != nil {
		return err
	}
	return c.call(ctx, http.MethodGet, "/v1/ping", nil, nil)
}
