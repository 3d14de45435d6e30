package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/foodsync-backend/internal/sweeper"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
)

type sweepRunner interface {
	Sweep(ctx context.Context) (sweeper.Report, error)
}

type SweeperJobParams struct {
	Logger  *logger.Logger
	Sweeper sweepRunner
}

func NewSweeperJob(params SweeperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &sweeperJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type sweeperJob struct {
	logg    *logger.Logger
	sweeper sweepRunner
}

func (j *sweeperJob) Name() string { return "retry-sweeper" }

func (j *sweeperJob) Run(ctx context.Context) error {
	report, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("retry sweep: %w", err)
	}
	fields := map[string]any{}
	for kind, kr := range report {
		fields[string(kind)+"_selected"] = kr.Selected
		fields[string(kind)+"_failed"] = kr.Failed
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "retry sweep complete")
	return nil
}
