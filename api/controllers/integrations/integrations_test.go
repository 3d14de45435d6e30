package integrations

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/api/middleware"
	"github.com/angelmondragon/foodsync-backend/internal/mapping"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

type fakeTester struct{ err error }

func (f fakeTester) TestConnection(context.Context) error { return f.err }

type fakeMapping struct {
	mapping.Service
	filter   mapping.CandidateFilter
	params   pagination.Params
	resolved mapping.ResolveRequest
	onboard  enums.OnboardingAction
}

func (f *fakeMapping) ListCandidates(_ context.Context, filter mapping.CandidateFilter, params pagination.Params) (*mapping.CandidatePage, error) {
	f.filter = filter
	f.params = params
	return &mapping.CandidatePage{Items: []models.MappingCandidate{{ID: 1}}}, nil
}

func (f *fakeMapping) Resolve(_ context.Context, req mapping.ResolveRequest) (*models.MappingCandidate, error) {
	f.resolved = req
	return &models.MappingCandidate{ID: req.CandidateID, State: enums.CandidateConfirmed}, nil
}

func (f *fakeMapping) Onboard(_ context.Context, action enums.OnboardingAction) (*mapping.OnboardingResult, error) {
	f.onboard = action
	return &mapping.OnboardingResult{Action: action}, nil
}

func (f *fakeMapping) Readiness(context.Context) ([]models.ReadinessRecord, error) {
	return []models.ReadinessRecord{{Provider: enums.IntegrationPOS, Module: enums.ModuleMenu}}, nil
}

type fakeLogs struct {
	filter synclog.Filter
	params pagination.Params
}

func (f *fakeLogs) List(_ context.Context, filter synclog.Filter, params pagination.Params) (*synclog.ListResult, error) {
	f.filter = filter
	f.params = params
	return &synclog.ListResult{NextCursor: "next"}, nil
}

type fakeRetrier struct {
	kind sweeper.Kind
	id   int64
	err  error
}

func (f *fakeRetrier) Retry(_ context.Context, kind sweeper.Kind, id int64) error {
	f.kind = kind
	f.id = id
	return f.err
}

func TestTestConnectionReportsEachPlatform(t *testing.T) {
	provider := settings.NewStaticProvider(settings.Snapshot{
		POS:     settings.POSSettings{Enabled: true, APIKey: "key", Login: "login", OrganizationIDs: []string{"org"}},
		Loyalty: settings.LoyaltySettings{},
	})
	rec := httptest.NewRecorder()
	TestConnection(provider, fakeTester{err: errors.New("unauthorized")}, fakeTester{}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]connectionStatus
	decode(t, rec, &out)
	require.True(t, out["pos"].Configured)
	require.False(t, out["pos"].OK)
	require.Equal(t, "unauthorized", out["pos"].Error)
	require.False(t, out["loyalty"].Configured)
}

func TestSyncTriggersEnqueueManualJobs(t *testing.T) {
	broker := queue.NewMemoryBroker(5)

	rec := httptest.NewRecorder()
	SyncMenu(broker, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?city_id=4", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job enqueued
	decode(t, rec, &job)
	require.Equal(t, queue.QueueMenuSync, job.Queue)
	require.NotEmpty(t, job.JobID)

	pending := broker.Pending(queue.QueueMenuSync)
	require.Len(t, pending, 1)
	var payload queue.MenuSyncPayload
	require.NoError(t, pending[0].Decode(&payload))
	require.Equal(t, enums.SyncReasonManual, payload.Reason)
	require.EqualValues(t, 4, *payload.CityID)

	rec = httptest.NewRecorder()
	SyncStopList(broker, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, broker.Pending(queue.QueueStopListSync), 1)

	rec = httptest.NewRecorder()
	SyncDeliveryZones(broker, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, broker.Pending(queue.QueueDeliveryZonesSync), 1)

	rec = httptest.NewRecorder()
	SyncStopList(broker, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?branch_id=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMappingCandidatesParsesFilters(t *testing.T) {
	svc := &fakeMapping{}
	rec := httptest.NewRecorder()
	MappingCandidates(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=suggested&module=menu&provider=pos&limit=10&cursor=abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.CandidateSuggested, svc.filter.State)
	require.Equal(t, enums.ModuleMenu, svc.filter.Module)
	require.Equal(t, enums.IntegrationPOS, svc.filter.Provider)
	require.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.params)

	rec = httptest.NewRecorder()
	MappingCandidates(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=maybe", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveCandidateRecordsOperator(t *testing.T) {
	svc := &fakeMapping{}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"candidate_id":3,"action":"confirm","target_local_id":9}`))
	req = req.WithContext(middleware.WithAdmin(req.Context(), "admin-7", enums.AdminRoleOperator))
	rec := httptest.NewRecorder()
	ResolveCandidate(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 3, svc.resolved.CandidateID)
	require.Equal(t, enums.CandidateActionConfirm, svc.resolved.Action)
	require.EqualValues(t, 9, *svc.resolved.TargetLocalID)
	require.Equal(t, "admin-7", svc.resolved.ResolvedBy)

	rec = httptest.NewRecorder()
	ResolveCandidate(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"candidate_id":3,"action":"approve"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnboardingValidatesAction(t *testing.T) {
	svc := &fakeMapping{}
	rec := httptest.NewRecorder()
	Onboarding(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"defer"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, enums.OnboardingDefer, svc.onboard)

	rec = httptest.NewRecorder()
	Onboarding(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"nuke"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadiness(t *testing.T) {
	rec := httptest.NewRecorder()
	Readiness(&fakeMapping{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.ReadinessRecord
	decode(t, rec, &records)
	require.Len(t, records, 1)
}

func TestSyncLogsParsesFilters(t *testing.T) {
	logs := &fakeLogs{}
	rec := httptest.NewRecorder()
	SyncLogs(logs, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?integration=loyalty&module=purchases&status=failed&from=2026-01-01&to=2026-02-01&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, enums.IntegrationLoyalty, logs.filter.Integration)
	require.Equal(t, enums.ModulePurchases, logs.filter.Module)
	require.Equal(t, enums.SyncLogStatusFailed, logs.filter.Status)
	require.NotNil(t, logs.filter.From)
	require.NotNil(t, logs.filter.To)
	require.Equal(t, 5, logs.params.Limit)

	rec = httptest.NewRecorder()
	SyncLogs(logs, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?status=weird", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueuesAndRetryFailed(t *testing.T) {
	broker := queue.NewMemoryBroker(1)
	ctx := context.Background()
	_, err := broker.Enqueue(ctx, queue.QueueOrderSync, queue.OrderSyncPayload{OrderID: 1})
	require.NoError(t, err)
	job, err := broker.Dequeue(ctx, queue.QueueOrderSync, 0)
	require.NoError(t, err)
	require.NoError(t, broker.Fail(ctx, job, errors.New("boom")))

	rec := httptest.NewRecorder()
	Queues(broker, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []queue.Stats
	decode(t, rec, &stats)
	require.Len(t, stats, len(queue.Queues))
	for _, s := range stats {
		if s.Queue == queue.QueueOrderSync {
			require.EqualValues(t, 1, s.Failed)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"queue":"order-sync"}`))
	rec = httptest.NewRecorder()
	RetryFailed(broker, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"order-sync":1`)
	require.Len(t, broker.Pending(queue.QueueOrderSync), 1)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"queue":"nope"}`))
	rec = httptest.NewRecorder()
	RetryFailed(broker, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryEntity(t *testing.T) {
	retrier := &fakeRetrier{}
	rec := httptest.NewRecorder()
	RetryEntity(retrier, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"type":"purchase","id":12}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, sweeper.KindPurchase, retrier.kind)
	require.EqualValues(t, 12, retrier.id)

	retrier.err = pkgerrors.New(pkgerrors.CodeValidation, "order has no phone")
	rec = httptest.NewRecorder()
	RetryEntity(retrier, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"type":"order","id":1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	RetryEntity(retrier, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"type":"city","id":1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
