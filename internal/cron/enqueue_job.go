package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/queue"
)

// EnqueueJobParams describe a tick that only hands work to the queue workers.
type EnqueueJobParams struct {
	Name      string
	Logger    *logger.Logger
	Scheduler queue.Scheduler
	Queue     string
	Payload   any
}

func NewEnqueueJob(params EnqueueJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("queue scheduler required")
	}
	if params.Queue == "" {
		return nil, fmt.Errorf("queue name required")
	}
	return &enqueueJob{
		name:      params.Name,
		logg:      params.Logger,
		scheduler: params.Scheduler,
		queue:     params.Queue,
		payload:   params.Payload,
	}, nil
}

type enqueueJob struct {
	name      string
	logg      *logger.Logger
	scheduler queue.Scheduler
	queue     string
	payload   any
}

func (j *enqueueJob) Name() string { return j.name }

func (j *enqueueJob) Run(ctx context.Context) error {
	jobID, err := j.scheduler.Enqueue(ctx, j.queue, j.payload)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", j.queue, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"queue": j.queue, "job_id": jobID}), "scheduled sync enqueued")
	return nil
}
