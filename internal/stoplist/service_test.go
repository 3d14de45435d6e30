package stoplist

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/pos"
	"github.com/angelmondragon/foodsync-backend/internal/pos/postest"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
)

const sizeID = "0b7f0c1e-3d5a-4c55-9b8e-1f2a3b4c5d6e"

func strPtr(v string) *string { return &v }

type fixture struct {
	conn     *gorm.DB
	fake     *postest.Fake
	svc      Service
	center   models.Branch
	north    models.Branch
	item     models.MenuItem
	variant  models.ItemVariant
	modifier models.Modifier
}

func setup(t *testing.T, mode enums.IntegrationMode) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logs, err := synclog.NewService(synclog.ServiceParams{DB: conn})
	require.NoError(t, err)

	f := &fixture{conn: conn, fake: &postest.Fake{Orgs: []pos.Organization{{ID: "org-1"}}}}
	f.center = models.Branch{CityID: 1, Name: "Center", ExternalID: strPtr("tg-center"), IsActive: true}
	f.north = models.Branch{CityID: 1, Name: "North", ExternalID: strPtr("tg-north"), IsActive: true}
	require.NoError(t, conn.Create(&f.center).Error)
	require.NoError(t, conn.Create(&f.north).Error)

	f.item = models.MenuItem{CategoryID: 1, Name: "Pizza", Price: decimal.NewFromInt(500), ExternalID: strPtr("prod-pizza"), IsActive: true}
	require.NoError(t, conn.Create(&f.item).Error)
	f.variant = models.ItemVariant{ItemID: f.item.ID, Name: "30 cm", Price: decimal.NewFromInt(500), ExternalID: strPtr("prod-pizza_" + sizeID), IsActive: true}
	require.NoError(t, conn.Create(&f.variant).Error)
	f.modifier = models.Modifier{GroupID: 1, Name: "Cheese", Price: decimal.NewFromInt(50), ExternalID: strPtr("grp-1_prod-cheese"), IsActive: true}
	require.NoError(t, conn.Create(&f.modifier).Error)

	provider := settings.NewStaticProvider(settings.Snapshot{
		POS: settings.POSSettings{Enabled: true, Login: "login"},
		Modes: map[string]enums.IntegrationMode{
			settings.ModeKey(enums.IntegrationPOS, enums.ModuleStopList): mode,
		},
	})
	f.svc, err = NewService(ServiceParams{DB: client, Settings: provider, POS: f.fake, SyncLog: logs})
	require.NoError(t, err)
	return f
}

func stop(terminal, product string, size *string, balance int64) pos.StopListItem {
	return pos.StopListItem{TerminalGroupID: terminal, ProductID: product, SizeID: size, Balance: decimal.NewFromInt(balance)}
}

func (f *fixture) entries(t *testing.T, branchID int64) []models.StopListEntry {
	t.Helper()
	var rows []models.StopListEntry
	require.NoError(t, f.conn.Where("branch_id = ?", branchID).Order("id ASC").Find(&rows).Error)
	return rows
}

func TestSyncReplacesExternalEntriesAndKeepsLocal(t *testing.T) {
	ctx := context.Background()
	f := setup(t, enums.IntegrationModeExternal)
	local := models.StopListEntry{BranchID: f.center.ID, ItemID: &f.item.ID, Source: enums.StopListSourceLocal}
	stale := models.StopListEntry{BranchID: f.center.ID, ItemID: &f.item.ID, Source: enums.StopListSourceExternal}
	require.NoError(t, f.conn.Create(&local).Error)
	require.NoError(t, f.conn.Create(&stale).Error)

	size := sizeID
	f.fake.Stops = []pos.StopListItem{
		stop("tg-center", "prod-pizza", &size, 0),
		stop("tg-center", "prod-cheese", nil, 2),
		stop("tg-center", "prod-unknown", nil, 0),
		stop("tg-north", "prod-pizza", nil, 1),
		stop("tg-elsewhere", "prod-pizza", nil, 0),
	}

	result, err := f.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeSynced, result.Outcome)
	assert.Equal(t, 2, result.Branches)
	assert.Equal(t, 3, result.Entries)
	assert.Equal(t, 1, result.Unmatched)
	assert.Equal(t, int64(1), result.Removed)

	center := f.entries(t, f.center.ID)
	require.Len(t, center, 3)
	assert.Equal(t, local.ID, center[0].ID)
	assert.Equal(t, enums.StopListSourceLocal, center[0].Source)
	assert.Equal(t, f.variant.ID, *center[1].VariantID)
	assert.Equal(t, f.item.ID, *center[1].ItemID)
	assert.Equal(t, f.modifier.ID, *center[2].ModifierID)
	assert.Nil(t, center[2].ItemID)

	north := f.entries(t, f.north.ID)
	require.Len(t, north, 1)
	assert.Equal(t, f.item.ID, *north[0].ItemID)
	assert.Nil(t, north[0].VariantID)
	assert.True(t, decimal.NewFromInt(1).Equal(north[0].Balance))
}

func TestSyncScopedToBranch(t *testing.T) {
	ctx := context.Background()
	f := setup(t, enums.IntegrationModeExternal)
	untouched := models.StopListEntry{BranchID: f.north.ID, ItemID: &f.item.ID, Source: enums.StopListSourceExternal}
	require.NoError(t, f.conn.Create(&untouched).Error)
	f.fake.Stops = []pos.StopListItem{
		stop("tg-center", "prod-pizza", nil, 0),
		stop("tg-north", "prod-cheese", nil, 0),
	}

	result, err := f.svc.Sync(ctx, Request{BranchID: &f.center.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Branches)
	assert.Len(t, f.entries(t, f.center.ID), 1)

	north := f.entries(t, f.north.ID)
	require.Len(t, north, 1)
	assert.Equal(t, untouched.ID, north[0].ID)
}

func TestSyncUnknownBranchIsValidationError(t *testing.T) {
	f := setup(t, enums.IntegrationModeExternal)
	missing := int64(999)
	_, err := f.svc.Sync(context.Background(), Request{BranchID: &missing})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var logs []models.SyncLog
	require.NoError(t, f.conn.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.SyncLogStatusFailed, logs[0].Status)
}

func TestSyncSkippedInLocalMode(t *testing.T) {
	f := setup(t, enums.IntegrationModeLocal)
	f.fake.Stops = []pos.StopListItem{stop("tg-center", "prod-pizza", nil, 0)}
	result, err := f.svc.Sync(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeSkipped, result.Outcome)
	assert.Empty(t, f.entries(t, f.center.ID))
}
