package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

func TestOutboxRetentionJobUsesCutoffAndParkedAttempts(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{}
	job := newOutboxRetentionJob(t, repo, 7*24*time.Hour, 4)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.minAttempts != 4 {
		t.Fatalf("expected min attempts 4, got %d", repo.minAttempts)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one delete, got %d", repo.calls)
	}
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	repo := &fakeOutboxPurger{}
	job := newOutboxRetentionJob(t, repo, 0, 0)
	if job.retention != defaultOutboxRetention || job.parked != defaultParkedAttempts {
		t.Fatalf("unexpected defaults: %s %d", job.retention, job.parked)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxPurger{err: errors.New("boom")}, 0, 0)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxPurger, retention time.Duration, parked int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:         logger.Nop(),
		Repository:     repo,
		Retention:      retention,
		ParkedAttempts: parked,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

type fakeOutboxPurger struct {
	cutoff      time.Time
	minAttempts int
	calls       int
	err         error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}
