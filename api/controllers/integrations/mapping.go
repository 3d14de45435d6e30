package integrations

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/foodsync-backend/api/middleware"
	"github.com/angelmondragon/foodsync-backend/api/responses"
	"github.com/angelmondragon/foodsync-backend/api/validators"
	"github.com/angelmondragon/foodsync-backend/internal/mapping"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
)

type onboardingRequest struct {
	Action enums.OnboardingAction `json:"action" validate:"required,oneof=merge delete defer"`
}

func Readiness(svc mapping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.Readiness(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}

func RefreshReadiness(svc mapping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.RefreshReadiness(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}

// MappingCandidates lists candidates filtered by state, module and provider.
func MappingCandidates(svc mapping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		var filter mapping.CandidateFilter
		if raw := validators.SanitizeString(query.Get("state"), 32); raw != "" {
			state, err := enums.ParseCandidateState(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid state"))
				return
			}
			filter.State = state
		}
		if raw := validators.SanitizeString(query.Get("module"), 32); raw != "" {
			module, err := enums.ParseSyncModule(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid module"))
				return
			}
			filter.Module = module
		}
		if raw := validators.SanitizeString(query.Get("provider"), 32); raw != "" {
			provider, err := enums.ParseIntegration(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
				return
			}
			filter.Provider = provider
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.ListCandidates(ctx, filter, pagination.Params{Limit: limit, Cursor: strings.TrimSpace(query.Get("cursor"))})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ResolveCandidate applies an operator decision; the operator is recorded as resolver.
func ResolveCandidate(svc mapping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req mapping.ResolveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		req.ResolvedBy = middleware.AdminIDFromContext(ctx)

		candidate, err := svc.Resolve(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, candidate)
	}
}

func Onboarding(svc mapping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req onboardingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Onboard(ctx, req.Action)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
