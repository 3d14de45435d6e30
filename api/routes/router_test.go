package routes

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/internal/mapping"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	poswebhook "github.com/angelmondragon/foodsync-backend/internal/webhooks/pos"
	pkgAuth "github.com/angelmondragon/foodsync-backend/pkg/auth"
	"github.com/angelmondragon/foodsync-backend/pkg/config"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
	"github.com/angelmondragon/foodsync-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubTester struct{}

func (stubTester) TestConnection(context.Context) error { return nil }

type stubMapping struct{ mapping.Service }

func (stubMapping) Readiness(context.Context) ([]models.ReadinessRecord, error) {
	return []models.ReadinessRecord{}, nil
}

type stubLogs struct{}

func (stubLogs) List(context.Context, synclog.Filter, pagination.Params) (*synclog.ListResult, error) {
	return &synclog.ListResult{}, nil
}

type stubRetrier struct{ calls int }

func (s *stubRetrier) Retry(context.Context, sweeper.Kind, int64) error {
	s.calls++
	return nil
}

type stubWebhooks struct{ poswebhook.Service }

func (stubWebhooks) VerifySignature(context.Context, []byte, string) error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.ErrNil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

type harness struct {
	handler http.Handler
	cfg     *config.Config
	broker  *queue.MemoryBroker
	retrier *stubRetrier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		App:     config.AppConfig{Env: "test"},
		JWT:     config.JWTConfig{Secret: "secret", Issuer: "foodsync", ExpirationMinutes: 30},
		Webhook: config.WebhookConfig{SignatureHeader: "X-Signature", IdempotencyTTL: time.Hour},
	}
	store := &memoryStore{data: map[string]string{}}
	guard, err := poswebhook.NewIdempotencyGuard(store, time.Hour, "pos-webhook")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.NewSyncMetrics(reg).IncJob(queue.QueueMenuSync, "completed")

	h := &harness{cfg: cfg, broker: queue.NewMemoryBroker(5), retrier: &stubRetrier{}}
	h.handler = NewRouter(Params{
		Config:       cfg,
		DB:           stubPinger{},
		Redis:        stubPinger{},
		Idempotency:  store,
		Gatherer:     reg,
		Settings:     settings.NewStaticProvider(settings.Snapshot{}),
		POS:          stubTester{},
		Loyalty:      stubTester{},
		Queue:        h.broker,
		Mapping:      stubMapping{},
		SyncLogs:     stubLogs{},
		Retrier:      h.retrier,
		Webhooks:     stubWebhooks{},
		WebhookGuard: guard,
	})
	return h
}

func (h *harness) token(t *testing.T, role enums.AdminRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{AdminID: "admin-1", Role: role})
	require.NoError(t, err)
	return token
}

func (h *harness) do(method, path, token string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health/ready", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = h.do(http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "queue_jobs_total")
}

func TestWebhookRoutesVerifySignature(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/webhooks/pos/order-status", "", []byte(`{"orderId":"x","status":"Delivered"}`), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/webhooks/pos/stoplist", "", []byte(`{}`), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/admin/v1/integrations/queues", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCanReadButNotTrigger(t *testing.T) {
	h := newHarness(t)
	viewer := h.token(t, enums.AdminRoleViewer)

	rec := h.do(http.MethodGet, "/api/admin/v1/integrations/queues", viewer, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/admin/v1/integrations/readiness", viewer, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/admin/v1/integrations/sync-menu", viewer, nil, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, h.broker.Pending(queue.QueueMenuSync))
}

func TestOperatorTriggersSync(t *testing.T) {
	h := newHarness(t)
	operator := h.token(t, enums.AdminRoleOperator)

	rec := h.do(http.MethodPost, "/api/admin/v1/integrations/sync-menu", operator, nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, h.broker.Pending(queue.QueueMenuSync), 1)

	rec = h.do(http.MethodGet, "/api/admin/v1/integrations/test-connection", operator, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/admin/v1/integrations/onboarding", operator, []byte(`{"action":"defer"}`), map[string]string{"Idempotency-Key": "k"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRetryEntityIsIdempotent(t *testing.T) {
	h := newHarness(t)
	owner := h.token(t, enums.AdminRoleOwner)
	body := []byte(`{"type":"order","id":5}`)

	rec := h.do(http.MethodPost, "/api/admin/v1/integrations/retry-entity", owner, body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, h.retrier.calls)

	headers := map[string]string{"Idempotency-Key": "retry-5"}
	rec = h.do(http.MethodPost, "/api/admin/v1/integrations/retry-entity", owner, body, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/admin/v1/integrations/retry-entity", owner, body, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, h.retrier.calls)
}
