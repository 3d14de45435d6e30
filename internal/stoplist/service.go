package stoplist

import (
	"context"
	"fmt"
	"strings"
	"time"

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

const actionSyncStopList = "sync_stoplist"

// Service mirrors POS stop lists into the branch stop-list entries.
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
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stop-list db required")
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
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationPOS), string(enums.ModuleStopList))
	ctx = s.logg.WithField(ctx, "reason", req.Reason)

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.External(enums.IntegrationPOS, enums.ModuleStopList) {
		s.observe("skipped", started)
		return &Result{Outcome: syncstatus.OutcomeSkipped, Reason: "pos stoplist mode is not external"}, nil
	}

	run, err := s.synclog.Start(ctx, synclog.Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleStopList,
		Action:      actionSyncStopList,
		Reason:      req.Reason,
		Request:     req,
		Attempts:    1,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.sync(ctx, snap, req)
	status := enums.SyncLogStatusSuccess
	if err != nil {
		status = enums.SyncLogStatusError
		if !pkgerrors.Retryable(err) {
			status = enums.SyncLogStatusFailed
		}
	}
	if finishErr := run.Finish(ctx, status, result, err); finishErr != nil {
		s.logg.Error(ctx, "close stop-list sync log failed", finishErr)
	}
	s.observe(string(status), started)
	if err != nil {
		s.logg.Error(ctx, "stop-list sync failed", err)
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"branches":    result.Branches,
		"entries":     result.Entries,
		"unmatched":   result.Unmatched,
		"duration_ms": time.Since(started).Milliseconds(),
	}), "stop-list sync finished")
	return result, nil
}

func (s *service) sync(ctx context.Context, snap *settings.Snapshot, req Request) (*Result, error) {
	if !snap.POS.Configured() {
		return nil, integration.NotConfigured("pos api login is not configured")
	}
	branches, err := s.repo.Branches(ctx, s.db.DB(), req.BranchID)
	if err != nil {
		return nil, err
	}
	if req.BranchID != nil && len(branches) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "branch %d is not linked to a terminal group", *req.BranchID)
	}
	result := &Result{Outcome: syncstatus.OutcomeSynced, Branches: len(branches)}
	if len(branches) == 0 {
		result.Reason = "no branch is linked to a terminal group"
		return result, nil
	}

	orgs, err := pos.ResolveOrganizations(ctx, s.pos, snap.POS.OrganizationIDs)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no pos organizations are available")
	}
	stops, err := s.pos.StopLists(ctx, orgs)
	if err != nil {
		return nil, err
	}

	branchByTerminal := make(map[string]int64, len(branches))
	branchIDs := make([]int64, 0, len(branches))
	for _, branch := range branches {
		branchByTerminal[*branch.ExternalID] = branch.ID
		branchIDs = append(branchIDs, branch.ID)
	}

	idx, err := s.index(ctx, stops)
	if err != nil {
		return nil, err
	}
	var entries []models.StopListEntry
	for _, stop := range stops {
		branchID, ok := branchByTerminal[stop.TerminalGroupID]
		if !ok {
			continue
		}
		matched := idx.entries(branchID, stop)
		if len(matched) == 0 {
			result.Unmatched++
			continue
		}
		entries = append(entries, matched...)
	}
	result.Entries = len(entries)

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.repo.ReplaceExternal(ctx, tx, branchIDs, entries)
		result.Removed = removed
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replace stop-list entries: %w", err)
	}
	return result, nil
}

// lookup resolves POS product ids to local items, variants and modifiers.
type lookup struct {
	items     map[string]int64
	variants  map[string]models.ItemVariant
	modifiers map[string][]int64
}

func (s *service) index(ctx context.Context, stops []pos.StopListItem) (*lookup, error) {
	var productIDs, variantIDs []string
	seen := map[string]bool{}
	for _, stop := range stops {
		if !seen[stop.ProductID] {
			seen[stop.ProductID] = true
			productIDs = append(productIDs, stop.ProductID)
		}
		if key := pos.VariantExternalID(stop.ProductID, stop.SizeID); !seen[key] {
			seen[key] = true
			variantIDs = append(variantIDs, key)
		}
	}
	conn := s.db.DB()
	items, err := s.repo.Items(ctx, conn, productIDs)
	if err != nil {
		return nil, err
	}
	variants, err := s.repo.Variants(ctx, conn, variantIDs)
	if err != nil {
		return nil, err
	}
	modifiers, err := s.repo.LinkedModifiers(ctx, conn)
	if err != nil {
		return nil, err
	}

	out := &lookup{
		items:     make(map[string]int64, len(items)),
		variants:  make(map[string]models.ItemVariant, len(variants)),
		modifiers: map[string][]int64{},
	}
	for _, item := range items {
		out.items[*item.ExternalID] = item.ID
	}
	for _, variant := range variants {
		out.variants[*variant.ExternalID] = variant
	}
	for _, modifier := range modifiers {
		ext := *modifier.ExternalID
		if i := strings.LastIndex(ext, "_"); i >= 0 {
			product := ext[i+1:]
			out.modifiers[product] = append(out.modifiers[product], modifier.ID)
		}
	}
	return out, nil
}

// entries maps one stop to local rows: the exact variant when known, else
// the item, else every modifier built from the product.
func (l *lookup) entries(branchID int64, stop pos.StopListItem) []models.StopListEntry {
	base := models.StopListEntry{BranchID: branchID, Balance: stop.Balance, Source: enums.StopListSourceExternal}
	if variant, ok := l.variants[pos.VariantExternalID(stop.ProductID, stop.SizeID)]; ok {
		entry := base
		itemID, variantID := variant.ItemID, variant.ID
		entry.ItemID, entry.VariantID = &itemID, &variantID
		return []models.StopListEntry{entry}
	}
	if itemID, ok := l.items[stop.ProductID]; ok {
		entry := base
		entry.ItemID = &itemID
		return []models.StopListEntry{entry}
	}
	var out []models.StopListEntry
	for _, id := range l.modifiers[stop.ProductID] {
		entry := base
		modifierID := id
		entry.ModifierID = &modifierID
		out = append(out, entry)
	}
	return out
}

func (s *service) observe(status string, started time.Time) {
	s.metrics.ObserveRun(string(enums.IntegrationPOS), string(enums.ModuleStopList), status, time.Since(started))
}
