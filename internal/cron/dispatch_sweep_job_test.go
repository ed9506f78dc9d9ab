package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

func TestSweepJobPassesLimit(t *testing.T) {
	var gotLimit int
	job, err := NewSweepJob(SweepJobParams{
		Name:   "offer-expiry",
		Logger: logger.Nop(),
		Limit:  25,
		Sweep: func(_ context.Context, limit int) (int, error) {
			gotLimit = limit
			return limit, nil
		},
	})
	if err != nil {
		t.Fatalf("NewSweepJob: %v", err)
	}
	if job.Name() != "offer-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotLimit != 25 {
		t.Fatalf("expected limit 25, got %d", gotLimit)
	}
}

func TestSweepJobDefaultLimitAndError(t *testing.T) {
	var gotLimit int
	job, err := NewSweepJob(SweepJobParams{
		Name:   "auto-cancel",
		Logger: logger.Nop(),
		Sweep: func(_ context.Context, limit int) (int, error) {
			gotLimit = limit
			return 0, errors.New("db down")
		},
	})
	if err != nil {
		t.Fatalf("NewSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error")
	}
	if gotLimit != defaultSweepLimit {
		t.Fatalf("expected default limit %d, got %d", defaultSweepLimit, gotLimit)
	}
}

func TestNewSweepJobValidates(t *testing.T) {
	noop := func(context.Context, int) (int, error) { return 0, nil }
	cases := []SweepJobParams{
		{Logger: logger.Nop(), Sweep: noop},
		{Name: "x", Sweep: noop},
		{Name: "x", Logger: logger.Nop()},
	}
	for i, params := range cases {
		if _, err := NewSweepJob(params); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
