package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
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

const actionSyncMenu = "sync_menu"

// Cache drops derived read caches after a committed sync.
type Cache interface {
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

// Service pulls the POS nomenclature into the local menu tables.
type Service interface {
	Sync(ctx context.Context, req Request) (*Result, error)
	// Wipe deletes the entire local catalog in one transaction.
	Wipe(ctx context.Context) error
}

type ServiceParams struct {
	DB                *db.Client
	Repo              Repository
	Settings          settings.Provider
	POS               pos.API
	SyncLog           *synclog.Service
	Cache             Cache
	CachePattern      string
	OrganizationDelay time.Duration
	Sleep             func(ctx context.Context, d time.Duration) error
	Logger            *logger.Logger
	Metrics           *metrics.SyncMetrics
}

type service struct {
	db           *db.Client
	repo         Repository
	settings     settings.Provider
	pos          pos.API
	synclog      *synclog.Service
	cache        Cache
	cachePattern string
	orgDelay     time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	logg         *logger.Logger
	metrics      *metrics.SyncMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog db required")
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
	sleep := params.Sleep
	if sleep == nil {
		sleep = integration.SleepContext
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:           params.DB,
		repo:         repo,
		settings:     params.Settings,
		pos:          params.POS,
		synclog:      params.SyncLog,
		cache:        params.Cache,
		cachePattern: params.CachePattern,
		orgDelay:     params.OrganizationDelay,
		sleep:        sleep,
		logg:         logg,
		metrics:      params.Metrics,
	}, nil
}

func (s *service) Sync(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if req.Reason == "" {
		req.Reason = enums.SyncReasonManual
	}
	ctx = s.logg.WithSync(ctx, string(enums.IntegrationPOS), string(enums.ModuleMenu))
	ctx = s.logg.WithField(ctx, "reason", req.Reason)

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.External(enums.IntegrationPOS, enums.ModuleMenu) {
		s.observe("skipped", started)
		return &Result{Outcome: syncstatus.OutcomeSkipped, Reason: "pos menu mode is not external"}, nil
	}

	run, err := s.synclog.Start(ctx, synclog.Entry{
		Integration: enums.IntegrationPOS,
		Module:      enums.ModuleMenu,
		Action:      actionSyncMenu,
		Reason:      req.Reason,
		Request:     req,
		Attempts:    1,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.sync(ctx, snap, req)
	if err != nil {
		status := enums.SyncLogStatusError
		if !pkgerrors.Retryable(err) {
			status = enums.SyncLogStatusFailed
		}
		if finishErr := run.Finish(ctx, status, result, err); finishErr != nil {
			s.logg.Error(ctx, "close menu sync log failed", finishErr)
		}
		s.logg.Error(ctx, "menu sync failed", err)
		s.observe(string(status), started)
		return nil, err
	}
	if finishErr := run.Finish(ctx, enums.SyncLogStatusSuccess, result, nil); finishErr != nil {
		s.logg.Error(ctx, "close menu sync log failed", finishErr)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"outcome":     result.Outcome,
		"items":       result.Counts.Items,
		"deleted":     result.Counts.Deleted,
		"retired":     result.Counts.Retired,
		"duration_ms": time.Since(started).Milliseconds(),
	}), "menu sync finished")
	s.observe("success", started)
	return result, nil
}

func (s *service) sync(ctx context.Context, snap *settings.Snapshot, req Request) (*Result, error) {
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

	incremental := req.Reason == enums.SyncReasonScheduled
	pulled, err := s.fetchAll(ctx, snap, orgs, incremental)
	if err != nil {
		return nil, err
	}
	result := &Result{Organizations: orgs}
	if incremental && pulled.partial == nil && pulled.notModified() == len(pulled.sources) {
		result.Outcome = syncstatus.OutcomeUnchanged
		result.Revisions = pulled.revisions()
		return result, nil
	}
	if err := s.completeIncremental(ctx, pulled); err != nil {
		return nil, err
	}

	sc, err := s.scope(ctx, snap, orgs)
	if err != nil {
		return nil, err
	}
	p := buildPlan(pulled.sources, sc)

	if p.empty() && sc.filtered() && len(snap.POS.OrganizationIDs) > 0 {
		widened, extra, err := s.widen(ctx, snap, orgs)
		if err != nil {
			return nil, err
		}
		if extra != nil {
			s.logg.Warn(s.logg.WithField(ctx, "organizations", widened), "menu filters matched nothing, widening to every organization")
			orgs = widened
			pulled.merge(extra)
			if sc, err = s.scope(ctx, snap, orgs); err != nil {
				return nil, err
			}
			p = buildPlan(pulled.sources, sc)
			result.Widened = true
			result.Organizations = orgs
		}
	}
	result.Revisions = pulled.revisions()
	for _, e := range multierr.Errors(pulled.partial) {
		result.PartialErrors = append(result.PartialErrors, e.Error())
	}
	if p.empty() {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "pos catalog has no publishable items for the configured menu and categories")
	}

	// Retiring and tombstoning need the full catalog; a partial pull only
	// upserts.
	tombstone := pulled.partial == nil
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		counts, err := s.write(ctx, tx, p, pulled.synced(), req.CityID)
		if err != nil {
			return err
		}
		if tombstone {
			retired, err := s.repo.Retire(ctx, tx, p.retired)
			if err != nil {
				return fmt.Errorf("retire catalog: %w", err)
			}
			counts.Retired = retired
			deleted, err := s.repo.Tombstone(ctx, tx, p.externalIDs())
			if err != nil {
				return fmt.Errorf("tombstone catalog: %w", err)
			}
			counts.Deleted = deleted
		}
		result.Counts = counts
		return nil
	})
	if err != nil {
		return result, err
	}
	result.Outcome = syncstatus.OutcomeSynced
	result.Tombstoned = tombstone

	if err := s.settings.SaveRevisionCursors(ctx, result.Revisions); err != nil {
		s.logg.Error(ctx, "persist revision cursors failed", err)
	}
	s.invalidate(ctx)
	return result, nil
}

// pull is the outcome of fetching a set of organizations. partial collects
// per-organization failures.
type pull struct {
	sources []fetched
	stale   map[string]bool
	partial error
}

func (p *pull) notModified() int {
	return len(p.stale)
}

func (p *pull) revisions() map[string]int64 {
	out := make(map[string]int64, len(p.sources))
	for _, src := range p.sources {
		if src.catalog != nil && src.catalog.Revision > 0 {
			out[src.org] = src.catalog.Revision
		}
	}
	return out
}

// synced lists the organizations holding a catalog, in fetch order.
func (p *pull) synced() []string {
	var orgs []string
	for _, src := range p.sources {
		if src.catalog != nil {
			orgs = append(orgs, src.org)
		}
	}
	return orgs
}

func (p *pull) merge(other *pull) {
	p.sources = append(p.sources, other.sources...)
	p.partial = multierr.Append(p.partial, other.partial)
}

// fetchAll pulls every organization in turn, pausing between calls.
// Scheduled pulls start at the stored revision; an organization that has not
// moved past it is marked stale. Failures are collected and only fatal when
// no organization succeeded.
func (s *service) fetchAll(ctx context.Context, snap *settings.Snapshot, orgs []string, incremental bool) (*pull, error) {
	out := &pull{stale: map[string]bool{}}
	for i, org := range orgs {
		if i > 0 && s.orgDelay > 0 {
			if err := s.sleep(ctx, s.orgDelay); err != nil {
				return nil, err
			}
		}
		var start int64
		if incremental {
			start = snap.Cursor(org)
		}
		catalog, err := s.pos.Nomenclature(ctx, org, start)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "organization_id", org), "nomenclature fetch failed", err)
			out.partial = multierr.Append(out.partial, fmt.Errorf("organization %s: %w", org, err))
			continue
		}
		if start > 0 && catalog.Revision <= start {
			out.stale[org] = true
		}
		out.sources = append(out.sources, fetched{org: org, catalog: catalog})
	}
	if len(out.sources) == 0 {
		if out.partial == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "no pos organizations to sync")
		}
		return nil, out.partial
	}
	return out, nil
}

// completeIncremental re-pulls stale organizations in full so the merged
// catalog is complete before anything is tombstoned.
func (s *service) completeIncremental(ctx context.Context, p *pull) error {
	for i, src := range p.sources {
		if !p.stale[src.org] {
			continue
		}
		if s.orgDelay > 0 {
			if err := s.sleep(ctx, s.orgDelay); err != nil {
				return err
			}
		}
		catalog, err := s.pos.Nomenclature(ctx, src.org, 0)
		if err != nil {
			p.partial = multierr.Append(p.partial, fmt.Errorf("organization %s: %w", src.org, err))
			p.sources[i].catalog = nil
			continue
		}
		p.sources[i].catalog = catalog
		delete(p.stale, src.org)
	}
	return nil
}

func (s *service) scope(ctx context.Context, snap *settings.Snapshot, orgs []string) (scope, error) {
	if snap.POS.ExternalMenuID == "" {
		return newScope(snap.POS.CategoryIDs, nil), nil
	}
	menu, err := s.pos.ExternalMenu(ctx, snap.POS.ExternalMenuID, orgs, snap.POS.PriceCategoryID)
	if err != nil {
		return scope{}, err
	}
	return newScope(nil, menu), nil
}

// widen fetches the organizations the configured subset left out. A nil
// pull means there was nothing more to try.
func (s *service) widen(ctx context.Context, snap *settings.Snapshot, current []string) ([]string, *pull, error) {
	all, err := pos.ResolveOrganizations(ctx, s.pos, nil)
	if err != nil {
		return nil, nil, err
	}
	known := map[string]bool{}
	for _, org := range current {
		known[org] = true
	}
	var extra []string
	for _, org := range all {
		if !known[org] {
			extra = append(extra, org)
		}
	}
	if len(extra) == 0 {
		return current, nil, nil
	}
	if s.orgDelay > 0 {
		if err := s.sleep(ctx, s.orgDelay); err != nil {
			return nil, nil, err
		}
	}
	extraPull, err := s.fetchAll(ctx, snap, extra, false)
	if err != nil {
		s.logg.Error(ctx, "widening fetched no additional organization", err)
		return current, nil, nil
	}
	return append(append([]string{}, current...), extra...), extraPull, nil
}

func (s *service) write(ctx context.Context, tx *gorm.DB, p *plan, orgs []string, cityID *int64) (Counts, error) {
	var counts Counts
	categoryIDs := map[string]int64{}
	for _, c := range p.categories {
		row := models.MenuCategory{
			Name:        c.name,
			Description: c.description,
			ExternalID:  ptr(c.externalID),
			SortOrder:   c.order,
			IsActive:    true,
		}
		if err := s.repo.UpsertCategory(ctx, tx, &row); err != nil {
			return counts, fmt.Errorf("upsert category %s: %w", c.externalID, err)
		}
		categoryIDs[c.externalID] = row.ID
		counts.Categories++
	}

	itemIDs := map[string]int64{}
	variantIDs := map[string]int64{}
	for _, item := range p.items {
		row := models.MenuItem{
			CategoryID:  categoryIDs[item.categoryExternalID],
			Name:        item.name,
			Description: item.description,
			Weight:      item.weight,
			Price:       item.basePrice(),
			ExternalID:  ptr(item.externalID),
			SortOrder:   item.order,
			IsActive:    true,
		}
		if err := s.repo.UpsertItem(ctx, tx, &row); err != nil {
			return counts, fmt.Errorf("upsert item %s: %w", item.externalID, err)
		}
		itemIDs[item.externalID] = row.ID
		counts.Items++

		for _, v := range item.variants {
			variant := models.ItemVariant{
				ItemID:     row.ID,
				Name:       v.name,
				Price:      firstPrice(v.prices),
				ExternalID: ptr(v.externalID),
				SortOrder:  v.order,
				IsActive:   true,
			}
			if err := s.repo.UpsertVariant(ctx, tx, &variant); err != nil {
				return counts, fmt.Errorf("upsert variant %s: %w", v.externalID, err)
			}
			variantIDs[v.externalID] = variant.ID
			counts.Variants++
		}
		for _, name := range item.tags {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			tag := models.Tag{Name: name, ExternalID: ptr(strings.ToLower(name))}
			if err := s.repo.UpsertTag(ctx, tx, &tag); err != nil {
				return counts, err
			}
			if err := s.repo.LinkTag(ctx, tx, row.ID, tag.ID); err != nil {
				return counts, err
			}
		}
	}

	groupIDs := map[string]int64{}
	for _, g := range p.groups {
		row := models.ModifierGroup{Name: g.name, ExternalID: ptr(g.externalID), SortOrder: g.order, IsActive: true}
		if err := s.repo.UpsertModifierGroup(ctx, tx, &row); err != nil {
			return counts, fmt.Errorf("upsert modifier group %s: %w", g.externalID, err)
		}
		groupIDs[g.externalID] = row.ID
		counts.ModifierGroups++
	}
	for _, m := range p.modifiers {
		row := models.Modifier{
			GroupID:    groupIDs[m.groupExternalID],
			Name:       m.name,
			Price:      m.price,
			ExternalID: ptr(m.externalID),
			SortOrder:  m.order,
			IsActive:   true,
		}
		if err := s.repo.UpsertModifier(ctx, tx, &row); err != nil {
			return counts, fmt.Errorf("upsert modifier %s: %w", m.externalID, err)
		}
		counts.Modifiers++
	}
	for _, item := range p.items {
		for _, link := range item.groups {
			err := s.repo.LinkModifierGroup(ctx, tx, models.ItemModifierGroup{
				ItemID:    itemIDs[item.externalID],
				GroupID:   groupIDs[link.groupExternalID],
				MinAmount: link.min,
				MaxAmount: link.max,
			})
			if err != nil {
				return counts, err
			}
		}
	}

	deactivated, err := s.activate(ctx, tx, p, orgs, cityID, categoryIDs, itemIDs, variantIDs)
	if err != nil {
		return counts, err
	}
	counts.Deactivated = deactivated
	return counts, nil
}

// activate writes per-city activation and prices. A city without its own
// organization follows the first synced one; cities of organizations that
// were not synced this run are left alone.
func (s *service) activate(ctx context.Context, tx *gorm.DB, p *plan, orgs []string, cityID *int64, categoryIDs, itemIDs, variantIDs map[string]int64) (int, error) {
	cities, err := s.repo.Cities(ctx, tx, cityID)
	if err != nil {
		return 0, err
	}
	synced := make(map[string]bool, len(orgs))
	for _, org := range orgs {
		synced[org] = true
	}
	deactivated := 0
	for _, city := range cities {
		org := orgs[0]
		if city.OrganizationID != nil && *city.OrganizationID != "" {
			org = *city.OrganizationID
		}
		if !synced[org] {
			continue
		}

		categoryRows := make([]models.MenuCategoryCity, 0, len(p.categories))
		for _, c := range p.categories {
			categoryRows = append(categoryRows, models.MenuCategoryCity{
				CategoryID: categoryIDs[c.externalID],
				CityID:     city.ID,
				IsActive:   c.orgs[org],
			})
		}
		if err := s.repo.SetCategoryCities(ctx, tx, categoryRows); err != nil {
			return 0, err
		}

		itemRows := make([]models.MenuItemCity, 0, len(p.items))
		var (
			prices   []models.ItemPrice
			unpriced []int64
		)
		for _, item := range p.items {
			active := item.activeIn(org)
			if !active {
				deactivated++
			}
			itemRows = append(itemRows, models.MenuItemCity{ItemID: itemIDs[item.externalID], CityID: city.ID, IsActive: active})
			for _, v := range item.variants {
				price, ok := v.prices[org]
				if !ok || !active {
					unpriced = append(unpriced, variantIDs[v.externalID])
					continue
				}
				for _, fulfillment := range enums.FulfillmentTypes {
					prices = append(prices, models.ItemPrice{
						VariantID:       variantIDs[v.externalID],
						CityID:          city.ID,
						FulfillmentType: fulfillment,
						Price:           price,
					})
				}
			}
		}
		if err := s.repo.SetItemCities(ctx, tx, itemRows); err != nil {
			return 0, err
		}
		if err := s.repo.SetPrices(ctx, tx, prices); err != nil {
			return 0, err
		}
		if err := s.repo.DeletePrices(ctx, tx, city.ID, unpriced); err != nil {
			return 0, err
		}
	}
	return deactivated, nil
}

func (s *service) invalidate(ctx context.Context) {
	if s.cache == nil || s.cachePattern == "" {
		return
	}
	removed, err := s.cache.DeletePattern(ctx, s.cachePattern)
	if err != nil {
		s.logg.Error(ctx, "menu cache invalidation failed", err)
		return
	}
	s.logg.Debug(s.logg.WithField(ctx, "keys", removed), "menu cache invalidated")
}

func (s *service) Wipe(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Wipe(ctx, tx)
	})
}

func (s *service) observe(status string, started time.Time) {
	s.metrics.ObserveRun(string(enums.IntegrationPOS), string(enums.ModuleMenu), status, time.Since(started))
}

func firstPrice(prices map[string]decimal.Decimal) decimal.Decimal {
	orgs := make([]string, 0, len(prices))
	for org := range prices {
		orgs = append(orgs, org)
	}
	if len(orgs) == 0 {
		return decimal.Zero
	}
	sort.Strings(orgs)
	return prices[orgs[0]]
}

func ptr(v string) *string {
	return &v
}
