package integrations

import (
	"net/http"

	"github.com/angelmondragon/foodsync-backend/api/responses"
	"github.com/angelmondragon/foodsync-backend/api/validators"
	"github.com/angelmondragon/foodsync-backend/internal/settings"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

type connectionStatus struct {
	Configured bool   `json:"configured"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

type enqueued struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

// TestConnection probes every configured platform with a fresh token.
func TestConnection(provider settings.Provider, pos, loyalty ConnectionTester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snap, err := provider.Snapshot(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		probe := func(name enums.Integration, configured bool, client ConnectionTester) connectionStatus {
			status := connectionStatus{Configured: configured}
			if !configured || client == nil {
				return status
			}
			if err := client.TestConnection(ctx); err != nil {
				status.Error = err.Error()
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "integration", string(name)), "connection test failed: "+err.Error())
				}
				return status
			}
			status.OK = true
			return status
		}

		responses.WriteSuccess(w, map[string]connectionStatus{
			string(enums.IntegrationPOS):     probe(enums.IntegrationPOS, snap.POS.Configured(), pos),
			string(enums.IntegrationLoyalty): probe(enums.IntegrationLoyalty, snap.Loyalty.Configured(), loyalty),
		})
	}
}

// SyncMenu queues a manual catalog sync, optionally for one city.
func SyncMenu(scheduler queue.Scheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cityID, err := validators.ParseQueryID(r, "city_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		enqueue(w, r, scheduler, queue.QueueMenuSync, queue.MenuSyncPayload{Reason: enums.SyncReasonManual, CityID: cityID}, logg)
	}
}

// SyncStopList queues a manual stop-list sync, optionally for one branch.
func SyncStopList(scheduler queue.Scheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID, err := validators.ParseQueryID(r, "branch_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		enqueue(w, r, scheduler, queue.QueueStopListSync, queue.StopListSyncPayload{Reason: enums.SyncReasonManual, BranchID: branchID}, logg)
	}
}

func SyncDeliveryZones(scheduler queue.Scheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enqueue(w, r, scheduler, queue.QueueDeliveryZonesSync, queue.DeliveryZonesSyncPayload{Reason: enums.SyncReasonManual}, logg)
	}
}

func enqueue(w http.ResponseWriter, r *http.Request, scheduler queue.Scheduler, name string, payload any, logg *logger.Logger) {
	ctx := r.Context()
	id, err := scheduler.Enqueue(ctx, name, payload)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue "+name))
		return
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"queue": name, "job_id": id}), "sync job queued")
	}
	responses.WriteSuccessStatus(w, http.StatusAccepted, enqueued{JobID: id, Queue: name})
}
