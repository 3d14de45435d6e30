package synclog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{DB: dbtest.Open(t)})
	require.NoError(t, err)
	return svc
}

func TestRunFinishClosesOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	run, err := svc.Start(ctx, Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleMenu,
		Action:      "sync_menu",
		Reason:      enums.SyncReasonManual,
		Request:     map[string]any{"cityId": 3, "apiLogin": "secret-login"},
	})
	require.NoError(t, err)
	require.NotZero(t, run.ID())

	var row models.SyncLog
	require.NoError(t, svc.db.First(&row, run.ID()).Error)
	assert.Equal(t, enums.SyncLogStatusActive, row.Status)
	assert.NotContains(t, string(row.Request), "secret-login")

	require.NoError(t, run.Finish(ctx, enums.SyncLogStatusSuccess, map[string]int{"items": 4}, nil))
	require.NoError(t, run.Finish(ctx, enums.SyncLogStatusError, nil, errors.New("late")))

	require.NoError(t, svc.db.First(&row, run.ID()).Error)
	assert.Equal(t, enums.SyncLogStatusSuccess, row.Status)
	assert.Nil(t, row.Error)
	assert.NotNil(t, row.FinishedAt)
	assert.NotNil(t, row.DurationMs)
	assert.JSONEq(t, `{"items":4}`, string(row.Response))
}

func TestFinishRejectsActiveStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	run, err := svc.Start(ctx, Entry{Integration: enums.IntegrationPOS, Module: enums.ModuleMenu, Action: "sync_menu"})
	require.NoError(t, err)
	assert.Error(t, run.Finish(ctx, enums.SyncLogStatusActive, nil, nil))

	var nilRun *Run
	assert.NoError(t, nilRun.Finish(ctx, enums.SyncLogStatusSuccess, nil, nil))
}

func TestRecordStoresClosedEntry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.Record(ctx, Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleOrders,
		Action:      "push_order",
		EntityType:  enums.EntityOrder,
		EntityID:    "42",
	}, enums.SyncLogStatusError, nil, errors.New(strings.Repeat("x", maxErrorText+10)), 250*time.Millisecond)
	require.NoError(t, err)

	var row models.SyncLog
	require.NoError(t, svc.db.First(&row).Error)
	assert.Equal(t, enums.SyncLogStatusError, row.Status)
	require.NotNil(t, row.EntityID)
	assert.Equal(t, "42", *row.EntityID)
	require.NotNil(t, row.Error)
	assert.Len(t, *row.Error, maxErrorText)
	assert.Equal(t, int64(250), *row.DurationMs)
}

func TestSnapshotHandlesUnserializableValues(t *testing.T) {
	got := Snapshot(map[string]any{"ch": make(chan int)})
	assert.JSONEq(t, `{"unserializable":"map[string]interface {}"}`, string(got))

	assert.Nil(t, Snapshot(nil))
	assert.JSONEq(t, `{"token":"***","ok":true}`, string(Snapshot([]byte(`{"token":"abc","ok":true}`))))
}

func TestListFiltersAndPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for i := 0; i < 5; i++ {
		module := enums.ModuleMenu
		if i%2 == 1 {
			module = enums.ModuleStopList
		}
		require.NoError(t, svc.Record(ctx, Entry{Integration: enums.IntegrationPOS, Module: module, Action: "sync"},
			enums.SyncLogStatusSuccess, nil, nil, 0))
	}

	page, err := svc.List(ctx, Filter{Module: enums.ModuleMenu}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Greater(t, page.Items[0].ID, page.Items[1].ID)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, Filter{Module: enums.ModuleMenu}, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)
	assert.Less(t, next.Items[0].ID, page.Items[1].ID)

	_, err = svc.List(ctx, Filter{}, pagination.Params{Cursor: "%%%"})
	assert.Error(t, err)
}

func TestPurgeKeepsActiveRows(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.Start(ctx, Entry{Integration: enums.IntegrationPOS, Module: enums.ModuleMenu, Action: "sync"})
	require.NoError(t, err)
	require.NoError(t, svc.Record(ctx, Entry{Integration: enums.IntegrationPOS, Module: enums.ModuleMenu, Action: "sync"},
		enums.SyncLogStatusSuccess, nil, nil, 0))

	removed, err := svc.Purge(ctx, time.Now().AddDate(50, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, svc.db.Model(&models.SyncLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
