package deliveryzones

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/foodsync-backend/internal/pos"
	"github.com/angelmondragon/foodsync-backend/internal/pos/postest"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

func strPtr(v string) *string { return &v }

func restrictions(minSum int64, zones ...string) []pos.DeliveryRestrictions {
	out := pos.DeliveryRestrictions{OrganizationID: "org-1"}
	for _, name := range zones {
		out.Zones = append(out.Zones, pos.DeliveryZone{
			Name:        name,
			Coordinates: []pos.Coordinate{{Latitude: 55.79, Longitude: 49.12}, {Latitude: 55.8, Longitude: 49.13}},
		})
	}
	if len(zones) > 0 {
		out.Restrictions = []pos.DeliveryRestriction{
			{TerminalGroupID: "tg-1", Zone: zones[0], MinSum: decimal.NewFromInt(minSum), DurationMinutes: 45},
		}
	}
	return []pos.DeliveryRestrictions{out}
}

func TestSyncUpsertsAndTombstonesZones(t *testing.T) {
	ctx := context.Background()
	client, conn := dbtest.Client(t)
	logs, err := synclog.NewService(synclog.ServiceParams{DB: conn})
	require.NoError(t, err)
	branch := models.Branch{CityID: 1, Name: "Center", ExternalID: strPtr("tg-1"), IsActive: true}
	require.NoError(t, conn.Create(&branch).Error)
	manual := models.DeliveryZone{Name: "Courier area", MinOrderSum: decimal.NewFromInt(0), IsActive: true}
	require.NoError(t, conn.Create(&manual).Error)

	fake := &postest.Fake{Orgs: []pos.Organization{{ID: "org-1"}}, Restrictions: restrictions(700, "Center", "Suburbs")}
	provider := settings.NewStaticProvider(settings.Snapshot{
		POS: settings.POSSettings{Enabled: true, Login: "login"},
		Modes: map[string]enums.IntegrationMode{
			settings.ModeKey(enums.IntegrationPOS, enums.ModuleDeliveryZones): enums.IntegrationModeExternal,
		},
	})
	svc, err := NewService(ServiceParams{DB: client, Settings: provider, POS: fake, SyncLog: logs})
	require.NoError(t, err)

	result, err := svc.Sync(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, syncstatus.OutcomeSynced, result.Outcome)
	assert.Equal(t, 2, result.Zones)

	var center models.DeliveryZone
	require.NoError(t, conn.Where("external_id = ?", "tg-1:Center").First(&center).Error)
	require.NotNil(t, center.BranchID)
	assert.Equal(t, branch.ID, *center.BranchID)
	assert.True(t, decimal.NewFromInt(700).Equal(center.MinOrderSum))
	assert.Equal(t, 45, center.DeliveryMinutes)
	assert.Contains(t, string(center.Polygon), "55.79")

	var suburbs models.DeliveryZone
	require.NoError(t, conn.Where("external_id = ?", "org-1:Suburbs").First(&suburbs).Error)
	assert.Nil(t, suburbs.BranchID)

	fake.Restrictions = restrictions(900, "Center")
	result, err = svc.Sync(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Deleted)

	var zones []models.DeliveryZone
	require.NoError(t, conn.Order("id ASC").Find(&zones).Error)
	require.Len(t, zones, 2)
	assert.Equal(t, manual.ID, zones[0].ID)
	assert.Equal(t, center.ID, zones[1].ID)
	assert.True(t, decimal.NewFromInt(900).Equal(zones[1].MinOrderSum))
}
