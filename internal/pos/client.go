package pos

import (
	"context"
	"fmt"
	"net/http"

	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/integration"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

const tokenPath = "/api/1/access_token"

// API is the POS surface consumed by the sync processors.
type API interface {
	Organizations(ctx context.Context, ids []string) ([]Organization, error)
	Nomenclature(ctx context.Context, organizationID string, startRevision int64) (*Nomenclature, error)
	ExternalMenu(ctx context.Context, menuID string, organizationIDs []string, priceCategoryID string) (*ExternalMenu, error)
	TerminalGroups(ctx context.Context, organizationIDs []string) ([]TerminalGroup, error)
	StopLists(ctx context.Context, organizationIDs []string) ([]StopListItem, error)
	DeliveryRestrictions(ctx context.Context, organizationIDs []string) ([]DeliveryRestrictions, error)
	CreateDelivery(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error)
	TestConnection(ctx context.Context) error
}

// Requester is the transport the client issues calls through.
type Requester interface {
	Request(ctx context.Context, method, path string, body, out any) error
	Authenticate(ctx context.Context) error
}

// Client speaks the POS transport API.
type Client struct {
	http  Requester
	retry integration.RetryOptions
}

// ClientParams wires a Client over the shared adapter.
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
	if params.Config.POSBaseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pos base url required")
	}
	creds := integration.CredentialFunc(func(ctx context.Context) (integration.Credentials, error) {
		snap, err := params.Settings.Snapshot(ctx)
		if err != nil {
			return integration.Credentials{}, err
		}
		if !snap.POS.Configured() {
			return integration.Credentials{}, integration.NotConfigured("pos api login is not configured")
		}
		return snap.POS.Credentials(), nil
	})
	adapter, err := integration.NewClient(integration.Options{
		Name:               string(enums.IntegrationPOS),
		BaseURL:            params.Config.POSBaseURL,
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
	return NewWithRequester(adapter, RetryOptionsFor(params.Config, params.Metrics)), nil
}

// RetryOptionsFor derives adapter retry options from config.
func RetryOptionsFor(cfg config.IntegrationConfig, m *metrics.SyncMetrics) integration.RetryOptions {
	return integration.RetryOptions{
		Retries:   cfg.Retries,
		BaseDelay: cfg.RetryBaseDelay,
		OnRetry: func(int, error) {
			m.IncRetry(string(enums.IntegrationPOS))
		},
	}
}

// NewWithRequester builds a client over any transport, used by tests.
func NewWithRequester(r Requester, retry integration.RetryOptions) *Client {
	return &Client{http: r, retry: retry}
}

func (c *Client) call(ctx context.Context, path string, body, out any) error {
	return integration.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.http.Request(ctx, http.MethodPost, path, body, out)
	})
}

func (c *Client) Organizations(ctx context.Context, ids []string) ([]Organization, error) {
	var resp organizationsResponse
	if err := c.call(ctx, "/api/1/organizations", organizationsRequest{OrganizationIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Organizations, nil
}

func (c *Client) Nomenclature(ctx context.Context, organizationID string, startRevision int64) (*Nomenclature, error) {
	if organizationID == "" {
		return nil, integration.NotConfigured("organization id is required")
	}
	var resp Nomenclature
	req := nomenclatureRequest{OrganizationID: organizationID, StartRevision: startRevision}
	if err := c.call(ctx, "/api/1/nomenclature", req, &resp); err != nil {
		return nil, fmt.Errorf("nomenclature %s: %w", organizationID, err)
	}
	return &resp, nil
}

func (c *Client) ExternalMenu(ctx context.Context, menuID string, organizationIDs []string, priceCategoryID string) (*ExternalMenu, error) {
	if menuID == "" {
		return nil, integration.NotConfigured("external menu id is required")
	}
	var resp ExternalMenu
	req := externalMenuRequest{ExternalMenuID: menuID, OrganizationIDs: organizationIDs, PriceCategoryID: priceCategoryID}
	if err := c.call(ctx, "/api/2/menu/by_id", req, &resp); err != nil {
		return nil, fmt.Errorf("external menu %s: %w", menuID, err)
	}
	return &resp, nil
}

func (c *Client) TerminalGroups(ctx context.Context, organizationIDs []string) ([]TerminalGroup, error) {
	var resp terminalGroupsResponse
	if err := c.call(ctx, "/api/1/terminal_groups", organizationsScope{OrganizationIDs: organizationIDs}, &resp); err != nil {
		return nil, err
	}
	var out []TerminalGroup
	for _, org := range resp.TerminalGroups {
		for _, group := range org.Items {
			if group.OrganizationID == "" {
				group.OrganizationID = org.OrganizationID
			}
			out = append(out, group)
		}
	}
	return out, nil
}

// StopLists flattens every terminal group's stop list.
func (c *Client) StopLists(ctx context.Context, organizationIDs []string) ([]StopListItem, error) {
	var resp stopListsResponse
	if err := c.call(ctx, "/api/1/stop_lists", organizationsScope{OrganizationIDs: organizationIDs}, &resp); err != nil {
		return nil, err
	}
	var out []StopListItem
	for _, org := range resp.TerminalGroupStopLists {
		for _, group := range org.Items {
			for _, item := range group.Items {
				item.TerminalGroupID = group.TerminalGroupID
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (c *Client) DeliveryRestrictions(ctx context.Context, organizationIDs []string) ([]DeliveryRestrictions, error) {
	var resp deliveryRestrictionsResponse
	if err := c.call(ctx, "/api/1/delivery_restrictions", organizationsScope{OrganizationIDs: organizationIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.DeliveryRestrictions, nil
}

func (c *Client) CreateDelivery(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	if req.OrganizationID == "" {
		return nil, integration.NotConfigured("organization id is required")
	}
	var resp DeliveryResult
	if err := c.call(ctx, "/api/1/deliveries/create", req, &resp); err != nil {
		return nil, err
	}
	if resp.OrderInfo.ID == "" {
		return nil, &integration.Error{Code: integration.CodeDecode, Err: fmt.Errorf("delivery response carries no order id")}
	}
	return &resp, nil
}

// TestConnection forces a token refresh and lists organizations.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.http.Authenticate(ctx); err != nil {
		return err
	}
	_, err := c.Organizations(ctx, nil)
	return err
}
