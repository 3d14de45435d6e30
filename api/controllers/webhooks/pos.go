package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/angelmondragon/foodsync-backend/api/responses"
	"github.com/angelmondragon/foodsync-backend/api/validators"
	poswebhook "github.com/angelmondragon/foodsync-backend/internal/webhooks/pos"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// POSOrderStatus applies a POS order status callback.
func POSOrderStatus(svc poswebhook.Service, guard eventGuard, signatureHeader string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, ok := readSigned(w, r, svc, guard, signatureHeader, logg)
		if !ok {
			return
		}

		var event poswebhook.OrderStatusEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		if err := validators.ValidateStruct(&event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		key := event.Key()
		if key != "" {
			seen, err := guard.CheckAndMark(ctx, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if seen {
				responses.WriteSuccess(w, &poswebhook.Result{Outcome: poswebhook.OutcomeDuplicate, Reason: "event already delivered"})
				return
			}
		}

		result, err := svc.HandleOrderStatus(ctx, event)
		if err != nil {
			if key != "" {
				_ = guard.Delete(ctx, key)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_key": key,
				"outcome":   string(result.Outcome),
			}), "pos order status webhook processed")
		}
		responses.WriteSuccess(w, result)
	}
}

// POSStopList queues a stop-list refresh after a POS change callback.
func POSStopList(svc poswebhook.Service, guard eventGuard, signatureHeader string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, ok := readSigned(w, r, svc, guard, signatureHeader, logg)
		if !ok {
			return
		}

		var event poswebhook.StopListEvent
		if len(strings.TrimSpace(string(payload))) > 0 {
			if err := json.Unmarshal(payload, &event); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
				return
			}
		}

		key := strings.TrimSpace(event.EventID)
		if key != "" {
			seen, err := guard.CheckAndMark(ctx, "stoplist:"+key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if seen {
				responses.WriteSuccess(w, &poswebhook.Result{Outcome: poswebhook.OutcomeDuplicate, Reason: "event already delivered"})
				return
			}
		}

		result, err := svc.HandleStopList(ctx, event)
		if err != nil {
			if key != "" {
				_ = guard.Delete(ctx, "stoplist:"+key)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func readSigned(w http.ResponseWriter, r *http.Request, svc poswebhook.Service, guard eventGuard, signatureHeader string, logg *logger.Logger) ([]byte, bool) {
	ctx := r.Context()
	if svc == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
		return nil, false
	}
	if guard == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
		return nil, false
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return nil, false
	}
	if err := svc.VerifySignature(ctx, payload, r.Header.Get(signatureHeader)); err != nil {
		responses.WriteError(ctx, logg, w, err)
		return nil, false
	}
	return payload, true
}
