package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 30 * time.Minute

// Lock guards a cycle so only one worker instance runs it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// RedisLock is a SETNX lease tagged with a per-acquire token. The TTL bounds
// how long a crashed holder blocks the other replicas, so keep it above one
// cycle and close to the loop interval.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

// NewRedisLock builds the lease named name, e.g. "cron-worker:prod:dispatch-sweeper".
func NewRedisLock(store leaseStore, name string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case name == "":
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Release drops the lease only if it still carries this instance's token.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""
	if _, err := l.store.DeleteIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
