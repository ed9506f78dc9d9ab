package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func TestRunCycleRunsEveryJobEvenAfterFailure(t *testing.T) {
	ok := &countingJob{name: "offer-expiry"}
	failing := &countingJob{name: "auto-cancel", err: errors.New("boom")}
	after := &countingJob{name: "pending-dispatch"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Name:     "dispatch-sweeper",
		Logger:   logger.Nop(),
		Registry: NewRegistry(ok, failing, after),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	for _, job := range []*countingJob{ok, failing, after} {
		if job.runs != 1 {
			t.Fatalf("%s ran %d times", job.name, job.runs)
		}
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("lock not released: %+v", lock)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "incentive-batch"}
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
	if svc.interval != defaultInterval || svc.name != "cron" {
		t.Fatalf("unexpected defaults %s %s", svc.interval, svc.name)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunStopsOnCancelAndReleasesLease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lock := &fakeLock{}
	job := &cancelingJob{cancel: cancel}
	svc, err := NewService(ServiceParams{
		Name:     "maintenance",
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected one immediate run, got %d", job.runs)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lease not released after cancel: %+v", lock)
	}
}

type cancelingJob struct {
	cancel context.CancelFunc
	runs   int
}

func (c *cancelingJob) Name() string { return "outbox-retention" }

func (c *cancelingJob) Run(context.Context) error {
	c.runs++
	c.cancel()
	return nil
}
