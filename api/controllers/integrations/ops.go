package integrations

import (
	"net/http"
	"slices"
	"strings"

	"github.com/angelmondragon/foodsync-backend/api/responses"
	"github.com/angelmondragon/foodsync-backend/api/validators"
	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/internal/synclog"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

type retryFailedRequest struct {
	Queue string `json:"queue"`
}

type retryEntityRequest struct {
	Type string `json:"type" validate:"required,oneof=order user purchase"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

// SyncLogs pages the audit trail newest-first.
func SyncLogs(svc SyncLogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		var filter synclog.Filter
		if raw := validators.SanitizeString(query.Get("integration"), 32); raw != "" {
			integration, err := enums.ParseIntegration(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid integration"))
				return
			}
			filter.Integration = integration
		}
		if raw := validators.SanitizeString(query.Get("module"), 32); raw != "" {
			module, err := enums.ParseSyncModule(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid module"))
				return
			}
			filter.Module = module
		}
		if raw := validators.SanitizeString(query.Get("status"), 32); raw != "" {
			status, err := enums.ParseSyncLogStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}

		var err error
		if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.List(ctx, filter, pagination.Params{Limit: limit, Cursor: strings.TrimSpace(query.Get("cursor"))})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Queues reports broker counters for every sync queue.
func Queues(broker QueueAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		stats := make([]queue.Stats, 0, len(queue.Queues))
		for _, name := range queue.Queues {
			s, err := broker.Stats(ctx, name)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue stats"))
				return
			}
			stats = append(stats, s)
		}
		responses.WriteSuccess(w, stats)
	}
}

// RetryFailed moves failed jobs back to waiting, for one queue or all of them.
func RetryFailed(broker QueueAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req retryFailedRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		names := queue.Queues
		if name := strings.TrimSpace(req.Queue); name != "" {
			if !slices.Contains(queue.Queues, name) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown queue").WithDetails(map[string]any{"queue": name}))
				return
			}
			names = []string{name}
		}

		requeued := make(map[string]int, len(names))
		for _, name := range names {
			n, err := broker.RetryFailed(ctx, name)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retry failed jobs"))
				return
			}
			requeued[name] = n
		}
		responses.WriteSuccess(w, map[string]any{"requeued": requeued})
	}
}

// RetryEntity re-runs one entity's sync immediately.
func RetryEntity(retrier EntityRetrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req retryEntityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		kind, err := sweeper.ParseKind(req.Type)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := retrier.Retry(ctx, kind, req.ID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"type": kind, "id": req.ID, "status": "retried"})
	}
}
