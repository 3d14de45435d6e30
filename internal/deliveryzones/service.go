package deliveryzones

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/pos"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/db"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/integration"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

const actionSyncZones = "sync_delivery_zones"

type Request struct {
	Reason enums.SyncReason `json:"reason"`
}

type Result struct {
	Outcome syncstatus.Outcome `json:"outcome"`
	Reason  string             `json:"reason,omitempty"`
	Zones   int                `json:"zones"`
	Deleted int64              `json:"deleted"`
}

// Service mirrors POS delivery restrictions into delivery_zones.
type Service interface {
	Sync(ctx context.Context, req Request) (*Result, error)
}

type ServiceParams struct {
	DB       *db.Client
	Repo     Repository
	Settings settings.Provider
	POS      pos.API
	SyncLog  *synclog.Service
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
}

type service struct {
	db       *db.Client
	repo     Repository
	settings settings.Provider
	pos      pos.API
	synclog  *synclog.Service
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "delivery zones db required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.POS == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pos client required")
	}
	if params.SyncLog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync log required")
	}
	repo := params.Repo
	if repo == nil {
		repo = NewRepository()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:       params.DB,
		repo:     repo,
		settings: params.Settings,
		pos:      params.POS,
		synclog:  params.SyncLog,
		logg:     logg,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) Sync(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if req.Reason == "" {
		req.Reason = enums.SyncReasonManual
	}
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationPOS), string(enums.ModuleDeliveryZones))

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.External(enums.IntegrationPOS, enums.ModuleDeliveryZones) {
		s.observe("skipped", started)
		return &Result{Outcome: syncstatus.OutcomeSkipped, Reason: "pos delivery zones mode is not external"}, nil
	}

	run, err := s.synclog.Start(ctx, synclog.Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleDeliveryZones,
		Action:      actionSyncZones,
		Reason:      req.Reason,
		Request:     req,
		Attempts:    1,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.sync(ctx, snap)
	status := enums.SyncLogStatusSuccess
	if err != nil {
		status = enums.SyncLogStatusError
		if !pkgerrors.Retryable(err) {
			status = enums.SyncLogStatusFailed
		}
	}
	if finishErr := run.Finish(ctx, status, result, err); finishErr != nil {
		s.logg.Error(ctx, "close delivery zones sync log failed", finishErr)
	}
	s.observe(string(status), started)
	if err != nil {
		s.logg.Error(ctx, "delivery zones sync failed", err)
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"zones":       result.Zones,
		"deleted":     result.Deleted,
		"duration_ms": time.Since(started).Milliseconds(),
	}), "delivery zones sync finished")
	return result, nil
}

func (s *service) sync(ctx context.Context, snap *settings.Snapshot) (*Result, error) {
	if !snap.POS.Configured() {
		return nil, integration.NotConfigured("pos api login is not configured")
	}
	orgs, err := pos.ResolveOrganizations(ctx, s.pos, snap.POS.OrganizationIDs)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no pos organizations are available")
	}
	restrictions, err := s.pos.DeliveryRestrictions(ctx, orgs)
	if err != nil {
		return nil, err
	}
	branches, err := s.repo.BranchesByTerminal(ctx, s.db.DB())
	if err != nil {
		return nil, err
	}
	rows, err := zoneRows(restrictions, branches)
	if err != nil {
		return nil, err
	}

	result := &Result{Outcome: syncstatus.OutcomeSynced, Zones: len(rows)}
	keep := make([]string, 0, len(rows))
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range rows {
			if err := s.repo.Upsert(ctx, tx, &rows[i]); err != nil {
				return fmt.Errorf("upsert delivery zone %s: %w", *rows[i].ExternalID, err)
			}
			keep = append(keep, *rows[i].ExternalID)
		}
		deleted, err := s.repo.DeleteMissing(ctx, tx, keep)
		result.Deleted = deleted
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// zoneRows yields one row per restriction (zone served by a terminal group)
// and one unassigned row per zone no restriction mentions.
func zoneRows(all []pos.DeliveryRestrictions, branches map[string]int64) ([]models.DeliveryZone, error) {
	var rows []models.DeliveryZone
	for _, org := range all {
		polygons := make(map[string]datatypes.JSON, len(org.Zones))
		for _, zone := range org.Zones {
			encoded, err := json.Marshal(zone.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("encode zone %s polygon: %w", zone.Name, err)
			}
			polygons[zone.Name] = datatypes.JSON(encoded)
		}
		used := map[string]bool{}
		for _, r := range org.Restrictions {
			used[r.Zone] = true
			row := models.DeliveryZone{
				Name:            r.Zone,
				ExternalID:      ptr(r.TerminalGroupID + ":" + r.Zone),
				Polygon:         polygons[r.Zone],
				MinOrderSum:     r.MinSum,
				DeliveryMinutes: r.DurationMinutes,
				IsActive:        true,
			}
			if id, ok := branches[r.TerminalGroupID]; ok {
				branchID := id
				row.BranchID = &branchID
			}
			rows = append(rows, row)
		}
		for _, zone := range org.Zones {
			if used[zone.Name] {
				continue
			}
			rows = append(rows, models.DeliveryZone{
				Name:       zone.Name,
				ExternalID: ptr(org.OrganizationID + ":" + zone.Name),
				Polygon:    polygons[zone.Name],
				IsActive:   true,
			})
		}
	}
	return rows, nil
}

func (s *service) observe(status string, started time.Time) {
	s.metrics.ObserveRun(string(enums.IntegrationPOS), string(enums.ModuleDeliveryZones), status, time.Since(started))
}

func ptr(v string) *string {
	return &v
}
