package loyalty

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/integration"
)

func newServerClient(t *testing.T, handler http.HandlerFunc, snap settings.Snapshot) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(ClientParams{
		Config: config.IntegrationConfig{
			LoyaltyBaseURL: srv.URL,
			RequestTimeout: time.Second,
			Retries:        1,
			RetryBaseDelay: time.Millisecond,
		},
		Settings: settings.NewStaticProvider(snap),
	})
	require.NoError(t, err)
	return client
}

func configured() settings.Snapshot {
	return settings.Snapshot{Loyalty: settings.LoyaltySettings{Enabled: true, APIKey: "key"}}
}

func TestUpsertCustomerAuthenticatesAndDecodes(t *testing.T) {
	var upserts int32
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case tokenPath:
			_, _ = w.Write([]byte(`{"token":"tkn"}`))
		case "/v1/customers/upsert":
			atomic.AddInt32(&upserts, 1)
			assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
			var req CustomerRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "+79991234567", req.Phone)
			_, _ = w.Write([]byte(`{"id":"cust-1","phone":"+79991234567"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, configured())

	customer, err := client.UpsertCustomer(context.Background(), CustomerRequest{ExternalID: "7", Phone: "+79991234567"})
	require.NoError(t, err)
	assert.Equal(t, "cust-1", customer.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&upserts))
}

func TestUpsertCustomerWithoutCredentialsIsValidation(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call to %s", r.URL.Path)
	}, settings.Snapshot{})

	_, err := client.UpsertCustomer(context.Background(), CustomerRequest{Phone: "+7999"})
	require.Error(t, err)
	assert.False(t, pkgerrors.Retryable(err))
}

func TestPurchaseLifecyclePaths(t *testing.T) {
	var seen []string
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			_, _ = w.Write([]byte(`{"access_token":"tkn"}`))
			return
		}
		seen = append(seen, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pur-1","status":"ok"}`))
	}, configured())
	ctx := context.Background()

	_, err := client.CreatePurchase(ctx, PurchaseRequest{OrderRef: "15", CustomerID: "cust", Amount: decimal.NewFromInt(900)})
	require.NoError(t, err)
	_, err = client.UpdatePurchaseStatus(ctx, "15", "delivered")
	require.NoError(t, err)
	_, err = client.CancelPurchase(ctx, "15")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /v1/purchases",
		"POST /v1/purchases/15/status",
		"POST /v1/purchases/15/cancel",
	}, seen)
}

func TestCreatePurchaseRequiresCustomer(t *testing.T) {
	client := NewWithRequester(nil, integration.RetryOptions{})
	_, err := client.CreatePurchase(context.Background(), PurchaseRequest{OrderRef: "1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientParams{Settings: settings.NewStaticProvider(settings.Snapshot{})})
	assert.Error(t, err)
}
