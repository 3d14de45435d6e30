package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/foodsync-backend/pkg/logger"
)

const syncLogRetentionDays = 30

type SyncLogRetentionJobParams struct {
	Logger    *logger.Logger
	Purger    syncLogPurger
	Retention int
}

type syncLogPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewSyncLogRetentionJob(params SyncLogRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purger == nil {
		return nil, fmt.Errorf("sync log purger required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = syncLogRetentionDays
	}
	return &syncLogRetentionJob{
		logg:      params.Logger,
		purger:    params.Purger,
		retention: retention,
		now:       time.Now,
	}, nil
}

type syncLogRetentionJob struct {
	logg      *logger.Logger
	purger    syncLogPurger
	retention int
	now       func() time.Time
}

func (j *syncLogRetentionJob) Name() string { return "sync-log-retention" }

func (j *syncLogRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.purger.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sync log retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "sync log retention cleanup complete")
	return nil
}
