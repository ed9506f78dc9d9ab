package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultParkedAttempts  = 10
)

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// OutboxRetentionJobParams configure outbox pruning. ParkedAttempts should
// match the publisher's max attempts so only rows it gave up on are removed.
type OutboxRetentionJobParams struct {
	Logger         *logger.Logger
	Repository     outboxPurger
	Retention      time.Duration
	ParkedAttempts int
}

// NewOutboxRetentionJob prunes published and parked offer notifications and
// domain events once they age past the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	parked := params.ParkedAttempts
	if parked <= 0 {
		parked = defaultParkedAttempts
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		parked:    parked,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxPurger
	retention time.Duration
	parked    int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeletePublishedBefore(ctx, nil, cutoff, j.parked)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	if deleted > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		j.logg.Info(logCtx, "outbox rows pruned")
	}
	return nil
}
