package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/courier-dispatch/internal/incentives"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

type incentiveBatchRunner interface {
	RunBatch(ctx context.Context, asOf time.Time) (*incentives.BatchResult, error)
}

// IncentiveBatchJobParams configure the incentive recomputation job.
type IncentiveBatchJobParams struct {
	Logger  *logger.Logger
	Batches incentiveBatchRunner
	// Lookback also reruns the batch as of now minus Lookback so the period
	// that just closed gets its final totals.
	Lookback time.Duration
}

// NewIncentiveBatchJob builds the job that recomputes incentive earnings.
func NewIncentiveBatchJob(params IncentiveBatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Batches == nil {
		return nil, fmt.Errorf("incentive service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &incentiveBatchJob{
		logg:     params.Logger,
		batches:  params.Batches,
		lookback: lookback,
		now:      time.Now,
	}, nil
}

type incentiveBatchJob struct {
	logg     *logger.Logger
	batches  incentiveBatchRunner
	lookback time.Duration
	now      func() time.Time
}

func (j *incentiveBatchJob) Name() string { return "incentive-batch" }

func (j *incentiveBatchJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, asOf := range []time.Time{now.Add(-j.lookback), now} {
		res, err := j.batches.RunBatch(ctx, asOf)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("incentive batch as of %s: %w", asOf.Format(time.RFC3339), err))
		}
		if res == nil {
			continue
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"as_of":        asOf,
			"plans":        len(res.Plans),
			"rows_written": res.RowsWritten,
			"rows_paid":    res.RowsPaid,
		})
		j.logg.Info(logCtx, "incentive batch complete")
	}
	return errs
}
