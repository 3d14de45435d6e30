package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/internal/catalog"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/pkg/db"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
)

const (
	defaultMinScore         = 60
	defaultAutoResolveScore = 85
	autoResolver            = "auto"
)

// Service computes readiness and manages mapping candidates.
type Service interface {
	Readiness(ctx context.Context) ([]models.ReadinessRecord, error)
	RefreshReadiness(ctx context.Context) ([]models.ReadinessRecord, error)
	Rebuild(ctx context.Context, provider enums.Integration, module enums.SyncModule) (*RebuildResult, error)
	ListCandidates(ctx context.Context, filter CandidateFilter, params pagination.Params) (*CandidatePage, error)
	Resolve(ctx context.Context, req ResolveRequest) (*models.MappingCandidate, error)
	AutoResolve(ctx context.Context, provider enums.Integration, module enums.SyncModule, threshold int) (*AutoResolveResult, error)
	Onboard(ctx context.Context, action enums.OnboardingAction) (*OnboardingResult, error)
}

type ServiceParams struct {
	DB               *db.Client
	Repo             Repository
	Settings         settings.Provider
	Catalog          catalog.Service
	Scorer           CandidateScorer
	MinScore         int
	AutoResolveScore int
	Logger           *logger.Logger
	Now              func() time.Time
}

type service struct {
	db          *db.Client
	repo        Repository
	settings    settings.Provider
	catalog     catalog.Service
	scorer      CandidateScorer
	minScore    int
	autoResolve int
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mapping db required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog service required")
	}
	repo := params.Repo
	if repo == nil {
		repo = NewRepository()
	}
	scorer := params.Scorer
	if scorer == nil {
		scorer = DefaultScorer()
	}
	minScore := params.MinScore
	if minScore <= 0 {
		minScore = defaultMinScore
	}
	autoScore := params.AutoResolveScore
	if autoScore <= 0 {
		autoScore = defaultAutoResolveScore
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:          params.DB,
		repo:        repo,
		settings:    params.Settings,
		catalog:     params.Catalog,
		scorer:      scorer,
		minScore:    minScore,
		autoResolve: autoScore,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) Readiness(ctx context.Context) ([]models.ReadinessRecord, error) {
	return s.repo.ListReadiness(ctx, s.db.DB())
}

type entityStats struct {
	Total  int64 `json:"total"`
	Linked int64 `json:"linked"`
}

// RefreshReadiness recomputes every registered module from scratch.
func (s *service) RefreshReadiness(ctx context.Context) ([]models.ReadinessRecord, error) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	policy, err := json.Marshal(snap.Readiness)
	if err != nil {
		return nil, fmt.Errorf("encode readiness policy: %w", err)
	}
	computedAt := s.now().UTC()

	out := make([]models.ReadinessRecord, 0, len(registry))
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, def := range registry {
			row := models.ReadinessRecord{
				Provider:   def.Provider,
				Module:     def.Module,
				Status:     enums.ReadinessNotConfigured,
				Policy:     datatypes.JSON(policy),
				ComputedAt: computedAt,
			}
			stats := map[enums.EntityType]entityStats{}
			if snap.External(def.Provider, def.Module) {
				for _, entity := range def.entities {
					total, linked, err := s.repo.Count(ctx, tx, entity)
					if err != nil {
						return err
					}
					stats[entity.Type] = entityStats{Total: total, Linked: linked}
					row.TotalCount += total
					row.LinkedCount += linked
				}
				row.UnlinkedCount = row.TotalCount - row.LinkedCount
				row.UnlinkedPercent = unlinkedPercent(row.UnlinkedCount, row.TotalCount)
				row.Status = readinessStatus(row.UnlinkedCount, row.UnlinkedPercent, snap.Readiness.MaxUnlinkedPercent)
			}
			encoded, err := json.Marshal(stats)
			if err != nil {
				return fmt.Errorf("encode readiness stats: %w", err)
			}
			row.Stats = datatypes.JSON(encoded)
			if err := s.repo.UpsertReadiness(ctx, tx, &row); err != nil {
				return fmt.Errorf("store readiness %s/%s: %w", def.Provider, def.Module, err)
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func unlinkedPercent(unlinked, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(unlinked) / float64(total) * 100
}

func readinessStatus(unlinked int64, percent, maxPercent float64) enums.ReadinessStatus {
	if unlinked == 0 || percent <= maxPercent {
		return enums.ReadinessReady
	}
	return enums.ReadinessNeedsMapping
}

type candidateDetails struct {
	LocalName  string `json:"local_name"`
	TargetName string `json:"target_name,omitempty"`
}

// Rebuild replaces the open candidates of a module. Entities an admin
// already ignored, rejected or confirmed are not proposed again.
func (s *service) Rebuild(ctx context.Context, provider enums.Integration, module enums.SyncModule) (*RebuildResult, error) {
	def, ok := Lookup(provider, module)
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "module %s/%s has no mapping", provider, module)
	}
	result := &RebuildResult{Provider: provider, Module: module}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.repo.DeleteOpenCandidates(ctx, tx, provider, module)
		if err != nil {
			return err
		}
		result.Removed = removed
		closed, err := s.repo.ClosedLocalIDs(ctx, tx, provider, module)
		if err != nil {
			return err
		}

		var rows []models.MappingCandidate
		for _, entity := range def.entities {
			unlinked, err := s.repo.Entities(ctx, tx, entity, false)
			if err != nil {
				return err
			}
			if len(unlinked) == 0 {
				continue
			}
			linked, err := s.repo.Entities(ctx, tx, entity, true)
			if err != nil {
				return err
			}
			for _, local := range unlinked {
				if closed[entity.Type][local.ID] {
					continue
				}
				row := s.candidate(def, entity.Type, local, linked)
				if row.State == enums.CandidateSuggested {
					result.Suggested++
				} else {
					result.RequiresReview++
				}
				rows = append(rows, row)
			}
		}
		return s.repo.CreateCandidates(ctx, tx, rows)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"integration":     provider,
		"module":          module,
		"suggested":       result.Suggested,
		"requires_review": result.RequiresReview,
	}), "mapping candidates rebuilt")
	return result, nil
}

func (s *service) candidate(def ModuleDef, entity enums.EntityType, local Entity, linked []Entity) models.MappingCandidate {
	localID := local.ID
	row := models.MappingCandidate{
		Provider:      def.Provider,
		Module:        def.Module,
		EntityType:    entity,
		LocalEntityID: &localID,
		State:         enums.CandidateRequiresReview,
	}
	details := candidateDetails{LocalName: local.Name}
	match, score := best(s.scorer, local, linked)
	if score >= s.minScore {
		targetID, externalID := match.ID, match.ExternalID
		row.State = enums.CandidateSuggested
		row.TargetLocalID = &targetID
		row.ExternalEntityID = &externalID
		row.Score = &score
		details.TargetName = match.Name
	}
	if encoded, err := json.Marshal(details); err == nil {
		row.Details = datatypes.JSON(encoded)
	}
	return row
}

func (s *service) ListCandidates(ctx context.Context, filter CandidateFilter, params pagination.Params) (*CandidatePage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var afterID int64
	if cursor != nil {
		afterID = cursor.ID
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListCandidates(ctx, s.db.DB(), filter, afterID, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, err
	}
	page := &CandidatePage{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// Resolve applies an admin decision. Confirming a menu candidate merges the
// local entity into its target in the same transaction.
func (s *service) Resolve(ctx context.Context, req ResolveRequest) (*models.MappingCandidate, error) {
	var resolved *models.MappingCandidate
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		candidate, err := s.repo.FindCandidate(ctx, tx, req.CandidateID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "mapping candidate %d not found", req.CandidateID)
			}
			return err
		}
		if candidate.State.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "mapping candidate %d is already %s", candidate.ID, candidate.State)
		}

		updates := map[string]any{
			"state":       req.Action.ResultingState(),
			"resolved_at": s.now().UTC(),
		}
		if req.ResolvedBy != "" {
			updates["resolved_by"] = req.ResolvedBy
		}
		if req.Action == enums.CandidateActionConfirm {
			target, err := s.confirm(ctx, tx, candidate, req.TargetLocalID)
			if err != nil {
				return err
			}
			updates["target_local_id"] = target
		}

		ok, err := s.repo.CloseCandidate(ctx, tx, candidate.ID, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "mapping candidate %d was resolved concurrently", candidate.ID)
		}
		resolved, err = s.repo.FindCandidate(ctx, tx, candidate.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *service) confirm(ctx context.Context, tx *gorm.DB, candidate *models.MappingCandidate, override *int64) (int64, error) {
	target := candidate.TargetLocalID
	if override != nil {
		target = override
	}
	if target == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "target_local_id is required to confirm")
	}
	if candidate.LocalEntityID != nil && *candidate.LocalEntityID == *target {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "target_local_id must differ from the local entity")
	}
	def, ok := Lookup(candidate.Provider, candidate.Module)
	if !ok || !def.mergeable() {
		return *target, nil
	}
	if candidate.LocalEntityID == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "candidate has no local entity to merge")
	}
	if err := s.repo.Merge(ctx, tx, candidate.EntityType, *candidate.LocalEntityID, *target); err != nil {
		return 0, err
	}
	return *target, nil
}

// AutoResolve confirms every suggestion scoring at least threshold. A
// candidate that fails to merge is skipped.
func (s *service) AutoResolve(ctx context.Context, provider enums.Integration, module enums.SyncModule, threshold int) (*AutoResolveResult, error) {
	if threshold <= 0 {
		threshold = s.autoResolve
	}
	rows, err := s.repo.SuggestedAtLeast(ctx, s.db.DB(), provider, module, threshold)
	if err != nil {
		return nil, err
	}
	result := &AutoResolveResult{}
	for _, row := range rows {
		_, err := s.Resolve(ctx, ResolveRequest{
			CandidateID: row.ID,
			Action:      enums.CandidateActionConfirm,
			ResolvedBy:  autoResolver,
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "candidate_id", row.ID), "auto-resolve skipped candidate", err)
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("candidate %d: %v", row.ID, err))
			continue
		}
		result.Confirmed++
	}
	return result, nil
}

// Onboard runs the bulk strategy chosen when the menu switches to external.
func (s *service) Onboard(ctx context.Context, action enums.OnboardingAction) (*OnboardingResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"onboarding_action": action})
	result := &OnboardingResult{Action: action}
	switch action {
	case enums.OnboardingDefer:
	case enums.OnboardingMerge:
		if err := s.syncAndRebuild(ctx, result); err != nil {
			return nil, err
		}
	case enums.OnboardingDelete:
		if err := s.catalog.Wipe(ctx); err != nil {
			return nil, fmt.Errorf("wipe local catalog: %w", err)
		}
		if err := s.syncAndRebuild(ctx, result); err != nil {
			return nil, err
		}
		auto, err := s.AutoResolve(ctx, enums.IntegrationPOS, enums.ModuleMenu, s.autoResolve)
		if err != nil {
			return nil, err
		}
		result.AutoResolve = auto
		def, _ := Lookup(enums.IntegrationPOS, enums.ModuleMenu)
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			for _, entity := range def.entities {
				n, err := s.repo.DeactivateUnlinked(ctx, tx, entity)
				if err != nil {
					return err
				}
				result.Deactivated += n
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown onboarding action %q", action)
	}

	readiness, err := s.RefreshReadiness(ctx)
	if err != nil {
		return nil, err
	}
	result.Readiness = readiness
	s.logg.Info(ctx, "onboarding finished")
	return result, nil
}

func (s *service) syncAndRebuild(ctx context.Context, result *OnboardingResult) error {
	synced, err := s.catalog.Sync(ctx, catalog.Request{Reason: enums.SyncReasonOnboarding})
	if err != nil {
		return err
	}
	result.Catalog = synced
	rebuilt, err := s.Rebuild(ctx, enums.IntegrationPOS, enums.ModuleMenu)
	if err != nil {
		return err
	}
	result.Candidates = rebuilt
	return nil
}
