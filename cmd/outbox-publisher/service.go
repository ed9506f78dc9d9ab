package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	// PublisherFactory overrides how a topic publisher is obtained; tests
	// inject fakes here.
	PublisherFactory func(topic string) publisher
}

// Service relays outbox rows to Pub/Sub. A row either gets published, gets
// one more attempt recorded, or is parked at the attempt ceiling for the
// retention job to purge.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	pubsub      pubSubClient
	registry    registryResolver
	topics      *topicPublishers
	batchSize   int
	maxAttempts int
	poll        time.Duration
	rnd         *rand.Rand
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	open := params.PublisherFactory
	if open == nil {
		open = func(topic string) publisher {
			if p := params.PubSub.Publisher(topic); p != nil {
				return gcpPublisher{p}
			}
			return nil
		}
	}

	cfg := params.Config.Outbox
	svc := &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		registry:    params.Registry,
		topics:      &topicPublishers{open: open, byTopic: map[string]publisher{}},
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:        defaultPollInterval,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.PollIntervalMS > 0 {
		svc.poll = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return svc, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch is followed by the next one
// right away; failing batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := s.poll
	for ctx.Err() == nil {
		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, s.poll, maxBackoff)
		case busy:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	d += time.Duration(s.rnd.Int63n(int64(jitterWindow)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

// topicPublishers opens one publisher per topic on first use. Only the
// polling goroutine touches it.
type topicPublishers struct {
	open    func(topic string) publisher
	byTopic map[string]publisher
}

func (t *topicPublishers) get(topic string) publisher {
	if p, ok := t.byTopic[topic]; ok {
		return p
	}
	p := t.open(topic)
	if p != nil {
		t.byTopic[topic] = p
	}
	return p
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
