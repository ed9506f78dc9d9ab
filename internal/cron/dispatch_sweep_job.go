package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

const defaultSweepLimit = 100

// SweepFunc processes at most limit due items and reports how many it handled.
type SweepFunc func(ctx context.Context, limit int) (int, error)

// SweepJobParams configure a bounded dispatch sweep.
type SweepJobParams struct {
	Name   string
	Logger *logger.Logger
	Sweep  SweepFunc
	Limit  int
}

// NewSweepJob wraps one of the coordinator's due-item sweeps (offer expiry,
// auto-cancel, pending drain) as a job.
func NewSweepJob(params SweepJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweep == nil {
		return nil, fmt.Errorf("sweep func required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	return &sweepJob{name: params.Name, logg: params.Logger, sweep: params.Sweep, limit: limit}, nil
}

type sweepJob struct {
	name  string
	logg  *logger.Logger
	sweep SweepFunc
	limit int
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	handled, err := j.sweep(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if handled == 0 {
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"handled": handled,
		"limit":   j.limit,
	})
	if handled >= j.limit {
		j.logg.Warn(logCtx, "sweep hit its limit; remaining items wait for the next cycle")
		return nil
	}
	j.logg.Info(logCtx, "sweep complete")
	return nil
}
