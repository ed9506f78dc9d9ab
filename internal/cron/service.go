package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure one scheduling loop. The cron worker runs two: a
// fast dispatch sweeper and the slower maintenance loop.
type ServiceParams struct {
	Name     string
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while holding the lock.
type Service struct {
	name     string
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		name:     p.Name,
		logg:     p.Logger,
		registry: p.Registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		interval: p.Interval,
	}
	if s.name == "" {
		s.name = "cron"
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run fires a cycle right away, then once per interval, until ctx ends. A
// failed cycle is logged and the loop carries on.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"loop": s.name, "interval": s.interval.String()})
	s.logg.Info(ctx, "cron loop started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !held {
		s.logg.Debug(ctx, "lock held by another instance, skipping cycle")
		s.metrics.IncSkipped(s.name)
		return nil
	}
	defer func() {
		// Release with a fresh context so a shutdown mid-cycle still frees the lease.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := s.lock.Release(relCtx); relErr != nil {
			s.logg.Error(ctx, "release cron lock", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(jobCtx)
	took := time.Since(started)

	s.metrics.ObserveRun(s.name, job.Name(), took, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}
