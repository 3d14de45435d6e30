package mapping

import (
	"github.com/angelmondragon/foodsync-backend/internal/catalog"
	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// ResolveRequest is an admin decision on one candidate.
type ResolveRequest struct {
	CandidateID   int64                 `json:"candidate_id" validate:"required,gt=0"`
	Action        enums.CandidateAction `json:"action" validate:"required,oneof=confirm ignore reject"`
	TargetLocalID *int64                `json:"target_local_id,omitempty" validate:"omitempty,gt=0"`
	ResolvedBy    string                `json:"-"`
}

type RebuildResult struct {
	Provider       enums.Integration `json:"provider"`
	Module         enums.SyncModule  `json:"module"`
	Removed        int64             `json:"removed"`
	Suggested      int               `json:"suggested"`
	RequiresReview int               `json:"requires_review"`
}

type AutoResolveResult struct {
	Confirmed int      `json:"confirmed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

type CandidatePage struct {
	Items      []models.MappingCandidate `json:"items"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

type OnboardingResult struct {
	Action      enums.OnboardingAction   `json:"action"`
	Catalog     *catalog.Result          `json:"catalog,omitempty"`
	Candidates  *RebuildResult           `json:"candidates,omitempty"`
	AutoResolve *AutoResolveResult       `json:"auto_resolve,omitempty"`
	Deactivated int64                    `json:"deactivated"`
	Readiness   []models.ReadinessRecord `json:"readiness"`
}
