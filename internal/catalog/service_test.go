package catalog

import (
	"context"
	"errors"
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

type recordingCache struct {
	patterns []string
}

func (c *recordingCache) DeletePattern(_ context.Context, pattern string) (int64, error) {
	c.patterns = append(c.patterns, pattern)
	return 2, nil
}

type harness struct {
	conn     *gorm.DB
	fake     *postest.Fake
	provider *settings.StaticProvider
	cache    *recordingCache
	svc      Service
}

func menuSnapshot(orgs ...string) settings.Snapshot {
	return settings.Snapshot{
		POS: settings.POSSettings{Enabled: true, Login: "login", OrganizationIDs: orgs},
		Modes: map[string]enums.IntegrationMode{
			settings.ModeKey(enums.IntegrationPOS, enums.ModuleMenu): enums.IntegrationModeExternal,
		},
	}
}

func newHarness(t *testing.T, snap settings.Snapshot) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	logs, err := synclog.NewService(synclog.ServiceParams{DB: conn})
	require.NoError(t, err)
	h := &harness{
		conn:     conn,
		fake:     &postest.Fake{Catalogs: map[string]*pos.Nomenclature{}, CatalogErrs: map[string]error{}},
		provider: settings.NewStaticProvider(snap),
		cache:    &recordingCache{},
	}
	h.svc, err = NewService(ServiceParams{
		DB:           client,
		Settings:     h.provider,
		POS:          h.fake,
		SyncLog:      logs,
		Cache:        h.cache,
		CachePattern: "fs:cache:menu:*",
	})
	require.NoError(t, err)
	return h
}

func (h *harness) city(t *testing.T, name string, org *string) models.City {
	t.Helper()
	city := models.City{Name: name, OrganizationID: org, IsActive: true}
	require.NoError(t, h.conn.Create(&city).Error)
	return city
}

func twoCategoryCatalog(revision int64, withThird bool) *pos.Nomenclature {
	products := []pos.Product{
		dish("p1", "cat-a", "Margherita", sizePrice(nil, 500)),
		dish("p2", "cat-b", "Cola", sizePrice(nil, 120)),
	}
	if withThird {
		products = append(products, dish("p3", "cat-b", "Juice", sizePrice(nil, 150)))
	}
	return &pos.Nomenclature{
		Groups:   []pos.Group{folder("cat-a", "Pizza"), folder("cat-b", "Drinks")},
		Products: products,
		Revision: revision,
	}
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func externalIDMap(t *testing.T, conn *gorm.DB) map[string]int64 {
	t.Helper()
	var items []models.MenuItem
	require.NoError(t, conn.Find(&items).Error)
	out := map[string]int64{}
	for _, item := range items {
		if item.ExternalID != nil {
			out[*item.ExternalID] = item.ID
		}
	}
	return out
}

func TestSyncTombstonesItemsRemovedUpstream(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	h.city(t, "Kazan", strPtr("org-1"))
	local := models.MenuItem{CategoryID: 1, Name: "Local soup", Price: decimal.NewFromInt(90), IsActive: true}
	require.NoError(t, h.conn.Create(&local).Error)

	h.fake.Catalogs["org-1"] = twoCategoryCatalog(10, true)
	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeSynced, result.Outcome)
	assert.Equal(t, 2, result.Counts.Categories)
	assert.Equal(t, 3, result.Counts.Items)
	assert.Len(t, externalIDMap(t, h.conn), 3)

	h.fake.Catalogs["org-1"] = twoCategoryCatalog(11, false)
	result, err = h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.True(t, result.Tombstoned)
	assert.Positive(t, result.Counts.Deleted)

	ids := externalIDMap(t, h.conn)
	assert.Contains(t, ids, "p1")
	assert.Contains(t, ids, "p2")
	assert.NotContains(t, ids, "p3")

	var kept models.MenuItem
	require.NoError(t, h.conn.First(&kept, local.ID).Error, "local-only rows survive the tombstone pass")
	assert.Zero(t, countRows(t, h.conn.Where("external_id = ?", "p3"), &models.ItemVariant{}))
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	h.city(t, "Kazan", strPtr("org-1"))
	h.fake.Catalogs["org-1"] = twoCategoryCatalog(10, true)

	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	firstIDs := externalIDMap(t, h.conn)
	counts := map[string]int64{}
	for name, model := range map[string]any{
		"categories": &models.MenuCategory{},
		"items":      &models.MenuItem{},
		"variants":   &models.ItemVariant{},
		"prices":     &models.ItemPrice{},
		"item_city":  &models.MenuItemCity{},
	} {
		counts[name] = countRows(t, h.conn, model)
	}

	_, err = h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.Equal(t, firstIDs, externalIDMap(t, h.conn))
	assert.Equal(t, counts["categories"], countRows(t, h.conn, &models.MenuCategory{}))
	assert.Equal(t, counts["items"], countRows(t, h.conn, &models.MenuItem{}))
	assert.Equal(t, counts["variants"], countRows(t, h.conn, &models.ItemVariant{}))
	assert.Equal(t, counts["prices"], countRows(t, h.conn, &models.ItemPrice{}))
	assert.Equal(t, counts["item_city"], countRows(t, h.conn, &models.MenuItemCity{}))
}

func TestSyncDeactivatesItemsWithoutPriceInCity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-a", "org-b"))
	kazan := h.city(t, "Kazan", strPtr("org-a"))
	perm := h.city(t, "Perm", strPtr("org-b"))

	h.fake.Catalogs["org-a"] = &pos.Nomenclature{
		Groups:   []pos.Group{folder("cat-a", "Pizza")},
		Products: []pos.Product{dish("p1", "cat-a", "Margherita", sizePrice(nil, 500))},
		Revision: 3,
	}
	noPrice := dish("p1", "cat-a", "Margherita", sizePrice(nil, 500))
	noPrice.SizePrices[0].Price.IsIncludedInMenu = false
	h.fake.Catalogs["org-b"] = &pos.Nomenclature{
		Groups:   []pos.Group{folder("cat-a", "Pizza")},
		Products: []pos.Product{noPrice},
		Revision: 7,
	}

	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Deactivated)

	item := externalIDMap(t, h.conn)["p1"]
	var rows []models.MenuItemCity
	require.NoError(t, h.conn.Where("item_id = ?", item).Order("city_id ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, kazan.ID, rows[0].CityID)
	assert.True(t, rows[0].IsActive)
	assert.Equal(t, perm.ID, rows[1].CityID)
	assert.False(t, rows[1].IsActive)

	assert.Equal(t, int64(2), countRows(t, h.conn.Where("city_id = ?", kazan.ID), &models.ItemPrice{}))
	assert.Zero(t, countRows(t, h.conn.Where("city_id = ?", perm.ID), &models.ItemPrice{}))

	snap, err := h.provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"org-a": 3, "org-b": 7}, snap.RevisionCursors)
	assert.Equal(t, []string{"fs:cache:menu:*"}, h.cache.patterns)
}

func TestSyncScopesActivationToRequestedCity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	h.city(t, "Kazan", strPtr("org-1"))
	other := h.city(t, "Ufa", strPtr("org-1"))
	h.fake.Catalogs["org-1"] = twoCategoryCatalog(1, false)

	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual, CityID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), countRows(t, h.conn, &models.MenuItemCity{}))
	assert.Equal(t, int64(2), countRows(t, h.conn.Where("city_id = ?", other.ID), &models.MenuItemCity{}))
}

func TestSyncPartialFailureSkipsTombstone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-a", "org-b"))
	stale := models.MenuItem{CategoryID: 1, Name: "Old", Price: decimal.NewFromInt(1), ExternalID: strPtr("old-1"), IsActive: true}
	require.NoError(t, h.conn.Create(&stale).Error)

	h.fake.Catalogs["org-a"] = twoCategoryCatalog(4, false)
	h.fake.CatalogErrs["org-b"] = errors.New("timeout")

	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.False(t, result.Tombstoned)
	require.Len(t, result.PartialErrors, 1)
	assert.Contains(t, result.PartialErrors[0], "org-b")
	assert.Contains(t, externalIDMap(t, h.conn), "old-1")
	assert.Equal(t, map[string]int64{"org-a": 4}, result.Revisions)
}

func TestSyncFailsWhenNoOrganizationSucceeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-a", "org-b"))
	h.fake.CatalogErrs["org-a"] = errors.New("down")
	h.fake.CatalogErrs["org-b"] = errors.New("down")

	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.Error(t, err)

	var logs []models.SyncLog
	require.NoError(t, h.conn.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.SyncLogStatusError, logs[0].Status)
}

func TestSyncWidensWhenFiltersMatchNothing(t *testing.T) {
	ctx := context.Background()
	snap := menuSnapshot("org-a")
	snap.POS.CategoryIDs = []string{"cat-b"}
	h := newHarness(t, snap)
	h.fake.Orgs = []pos.Organization{{ID: "org-a"}, {ID: "org-b"}}
	h.fake.Catalogs["org-a"] = &pos.Nomenclature{
		Groups:   []pos.Group{folder("cat-a", "Pizza")},
		Products: []pos.Product{dish("p1", "cat-a", "Margherita", sizePrice(nil, 500))},
	}
	h.fake.Catalogs["org-b"] = &pos.Nomenclature{
		Groups:   []pos.Group{folder("cat-b", "Drinks")},
		Products: []pos.Product{dish("p2", "cat-b", "Cola", sizePrice(nil, 120))},
	}

	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.True(t, result.Widened)
	assert.Equal(t, []string{"org-a", "org-b"}, result.Organizations)
	ids := externalIDMap(t, h.conn)
	assert.Contains(t, ids, "p2")
	assert.NotContains(t, ids, "p1")
}

func TestSyncRejectsEmptyCatalogAfterWidening(t *testing.T) {
	ctx := context.Background()
	snap := menuSnapshot("org-a")
	snap.POS.CategoryIDs = []string{"missing"}
	h := newHarness(t, snap)
	h.fake.Orgs = []pos.Organization{{ID: "org-a"}}
	h.fake.Catalogs["org-a"] = twoCategoryCatalog(1, true)

	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, countRows(t, h.conn, &models.MenuItem{}))
}

func TestScheduledSyncReportsUnchangedRevision(t *testing.T) {
	ctx := context.Background()
	snap := menuSnapshot("org-1")
	snap.RevisionCursors = map[string]int64{"org-1": 42}
	h := newHarness(t, snap)
	h.fake.Catalogs["org-1"] = twoCategoryCatalog(42, true)

	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonScheduled})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeUnchanged, result.Outcome)
	assert.Zero(t, countRows(t, h.conn, &models.MenuItem{}))
	assert.Empty(t, h.cache.patterns)

	h.fake.Catalogs["org-1"] = twoCategoryCatalog(43, true)
	result, err = h.svc.Sync(ctx, Request{Reason: enums.SyncReasonScheduled})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeSynced, result.Outcome)
	assert.Equal(t, int64(3), countRows(t, h.conn, &models.MenuItem{}))
}

func TestSyncSkippedWhenMenuModeIsLocal(t *testing.T) {
	snap := menuSnapshot("org-1")
	snap.Modes = nil
	h := newHarness(t, snap)

	result, err := h.svc.Sync(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeSkipped, result.Outcome)
	assert.Empty(t, h.fake.NomenclatureCalls)
}

func TestWipeClearsCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	h.city(t, "Kazan", strPtr("org-1"))
	h.fake.Catalogs["org-1"] = twoCategoryCatalog(1, true)
	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)

	require.NoError(t, h.svc.Wipe(ctx))
	assert.Zero(t, countRows(t, h.conn, &models.MenuItem{}))
	assert.Zero(t, countRows(t, h.conn, &models.MenuCategory{}))
	assert.Zero(t, countRows(t, h.conn, &models.ItemPrice{}))
}

func TestSyncKeepsDeletedUpstreamItemInactive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	kazan := h.city(t, "Kazan", strPtr("org-1"))

	h.fake.Catalogs["org-1"] = twoCategoryCatalog(10, true)
	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)

	catalog := twoCategoryCatalog(11, true)
	catalog.Products[2].IsDeleted = true
	h.fake.Catalogs["org-1"] = catalog
	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.True(t, result.Tombstoned)
	assert.Equal(t, 1, result.Counts.Retired)
	assert.Zero(t, result.Counts.Deleted)

	var juice models.MenuItem
	require.NoError(t, h.conn.Where("external_id = ?", "p3").Take(&juice).Error)
	assert.False(t, juice.IsActive)

	var cityRow models.MenuItemCity
	require.NoError(t, h.conn.Where("item_id = ? AND city_id = ?", juice.ID, kazan.ID).Take(&cityRow).Error)
	assert.False(t, cityRow.IsActive)

	var variant models.ItemVariant
	require.NoError(t, h.conn.Where("external_id = ?", "p3").Take(&variant).Error)
	assert.False(t, variant.IsActive)
	assert.Zero(t, countRows(t, h.conn.Where("variant_id = ?", variant.ID), &models.ItemPrice{}))

	var cola models.MenuItem
	require.NoError(t, h.conn.Where("external_id = ?", "p2").Take(&cola).Error)
	assert.True(t, cola.IsActive)

	catalog = twoCategoryCatalog(12, true)
	h.fake.Catalogs["org-1"] = catalog
	_, err = h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	require.NoError(t, h.conn.First(&juice, juice.ID).Error)
	assert.True(t, juice.IsActive, "restored upstream reactivates the same row")
}

func TestSyncKeepsFilteredCategoryInactive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	h.city(t, "Kazan", strPtr("org-1"))
	h.fake.Catalogs["org-1"] = twoCategoryCatalog(1, true)
	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)

	catalog := twoCategoryCatalog(2, true)
	catalog.Groups[1].IsIncludedInMenu = false
	h.fake.Catalogs["org-1"] = catalog
	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Counts.Retired)

	var drinks models.MenuCategory
	require.NoError(t, h.conn.Where("external_id = ?", "cat-b").Take(&drinks).Error)
	assert.False(t, drinks.IsActive)
	assert.Zero(t, countRows(t, h.conn.Where("category_id = ? AND is_active = ?", drinks.ID, true), &models.MenuCategoryCity{}))
	assert.Equal(t, int64(2), countRows(t, h.conn.Where("category_id = ? AND is_active = ?", drinks.ID, false), &models.MenuItem{}))
}

func TestSyncTombstoneSparesLocalChildrenOfStaleParents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, menuSnapshot("org-1"))
	h.city(t, "Kazan", strPtr("org-1"))

	catalog := twoCategoryCatalog(1, true)
	catalog.Groups = append(catalog.Groups, pos.Group{ID: "grp-1", Name: "Toppings", IsGroupModifier: true})
	catalog.Products[0].GroupModifiers = []pos.GroupModifier{{ID: "grp-1", MaxAmount: 2, ChildModifiers: []pos.ChildModifier{{ID: "m1"}}}}
	h.fake.Catalogs["org-1"] = catalog
	_, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)

	var group models.ModifierGroup
	require.NoError(t, h.conn.Where("external_id = ?", "grp-1").Take(&group).Error)
	localModifier := models.Modifier{GroupID: group.ID, Name: "Extra sauce", Price: decimal.NewFromInt(30), IsActive: true}
	require.NoError(t, h.conn.Create(&localModifier).Error)

	juiceID := externalIDMap(t, h.conn)["p3"]
	localVariant := models.ItemVariant{ItemID: juiceID, Name: "Large", Price: decimal.NewFromInt(200), IsActive: true}
	require.NoError(t, h.conn.Create(&localVariant).Error)

	h.fake.Catalogs["org-1"] = twoCategoryCatalog(2, false)
	result, err := h.svc.Sync(ctx, Request{Reason: enums.SyncReasonManual})
	require.NoError(t, err)
	assert.True(t, result.Tombstoned)

	require.NoError(t, h.conn.First(&localModifier, localModifier.ID).Error)
	require.NoError(t, h.conn.First(&group, group.ID).Error)
	assert.False(t, group.IsActive)
	assert.Zero(t, countRows(t, h.conn.Where("external_id = ?", "grp-1_m1"), &models.Modifier{}))

	require.NoError(t, h.conn.First(&localVariant, localVariant.ID).Error)
	var juice models.MenuItem
	require.NoError(t, h.conn.First(&juice, juiceID).Error)
	assert.False(t, juice.IsActive)
	assert.Zero(t, countRows(t, h.conn.Where("external_id = ?", "p3"), &models.ItemVariant{}))
	assert.Zero(t, countRows(t, h.conn.Where("item_id = ? AND is_active = ?", juiceID, true), &models.MenuItemCity{}))
}
