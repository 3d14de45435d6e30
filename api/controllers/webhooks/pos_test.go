package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	poswebhook "github.com/angelmondragon/foodsync-backend/internal/webhooks/pos"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/redis"
)

const signatureHeader = "X-Signature"

type fakeWebhookService struct {
	mu         sync.Mutex
	orderCalls int
	stopCalls  int
	err        error
}

func (f *fakeWebhookService) VerifySignature(_ context.Context, _ []byte, header string) error {
	if header != "good" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

func (f *fakeWebhookService) HandleOrderStatus(_ context.Context, event poswebhook.OrderStatusEvent) (*poswebhook.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &poswebhook.Result{Outcome: poswebhook.OutcomeApplied, OrderID: 1, Status: enums.OrderStatusDelivered}, nil
}

func (f *fakeWebhookService) HandleStopList(context.Context, poswebhook.StopListEvent) (*poswebhook.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return &poswebhook.Result{Outcome: poswebhook.OutcomeQueued, JobID: "job-1"}, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func newGuard(t *testing.T) *poswebhook.IdempotencyGuard {
	t.Helper()
	guard, err := poswebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "pos-webhook")
	require.NoError(t, err)
	return guard
}

func post(handler http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pos/order-status", bytes.NewBufferString(body))
	req.Header.Set(signatureHeader, signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPOSOrderStatusSuccessAndReplay(t *testing.T) {
	svc := &fakeWebhookService{}
	handler := POSOrderStatus(svc, newGuard(t), signatureHeader, nil)
	body := `{"eventId":"evt-1","orderId":"pos-1","status":"Delivered"}`

	rec := post(handler, body, "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"outcome":"applied"`)

	rec = post(handler, body, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"duplicate"`)
	require.Equal(t, 1, svc.orderCalls)
}

func TestPOSOrderStatusWithoutEventIDReachesService(t *testing.T) {
	svc := &fakeWebhookService{}
	handler := POSOrderStatus(svc, newGuard(t), signatureHeader, nil)
	body := `{"orderId":"pos-1","status":"Delivered"}`

	rec := post(handler, body, "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = post(handler, body, "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 2, svc.orderCalls)
}

func TestPOSOrderStatusRejectsBadSignature(t *testing.T) {
	svc := &fakeWebhookService{}
	handler := POSOrderStatus(svc, newGuard(t), signatureHeader, nil)

	rec := post(handler, `{"orderId":"pos-1","status":"Delivered"}`, "bad")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, svc.orderCalls)
}

func TestPOSOrderStatusValidatesBody(t *testing.T) {
	svc := &fakeWebhookService{}
	handler := POSOrderStatus(svc, newGuard(t), signatureHeader, nil)

	rec := post(handler, `{"orderId":"pos-1"}`, "good")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(handler, `not-json`, "good")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, svc.orderCalls)
}

func TestPOSOrderStatusFailureReleasesEventKey(t *testing.T) {
	svc := &fakeWebhookService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	handler := POSOrderStatus(svc, newGuard(t), signatureHeader, nil)
	body := `{"eventId":"evt-2","orderId":"missing","status":"Delivered"}`

	rec := post(handler, body, "good")
	require.Equal(t, http.StatusNotFound, rec.Code)

	svc.err = nil
	rec = post(handler, body, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, svc.orderCalls)
}

func TestPOSStopListQueuesRefresh(t *testing.T) {
	svc := &fakeWebhookService{}
	handler := POSStopList(svc, newGuard(t), signatureHeader, nil)

	rec := post(handler, `{"eventId":"sl-1","terminalGroupId":"tg-1"}`, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"queued"`)

	rec = post(handler, `{"eventId":"sl-1","terminalGroupId":"tg-1"}`, "good")
	require.Contains(t, rec.Body.String(), `"outcome":"duplicate"`)

	rec = post(handler, ``, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, svc.stopCalls)
}
