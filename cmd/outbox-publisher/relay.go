package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

// delivery is what happened to one row during a batch.
type delivery struct {
	event  models.OutboxEvent
	topic  string
	result outcome
	reason string
	err    error
}

// processBatch locks up to batchSize rows, relays each one and writes its
// bookkeeping in the same transaction. It reports whether any row was seen.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	seen := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		seen = len(events) > 0
		for _, event := range events {
			if err := s.record(ctx, tx, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.result, d.reason, d.err = outcomeParked, "unresolvable", err
		return d
	}
	d.topic = resolved.Descriptor.Topic

	err = s.publish(ctx, event, resolved)
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		d.result = outcomePublished
	case errors.As(err, &nonRetry):
		d.result, d.reason, d.err = outcomeParked, "non_retryable", err
	default:
		d.event.AttemptCount++
		d.result, d.err = outcomeRetry, err
		if d.event.Parked(s.maxAttempts) {
			d.result, d.reason = outcomeParked, "max_attempts"
			d.err = fmt.Errorf("max publish attempts reached: %w", err)
		}
	}
	return d
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, d delivery) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
		"topic":          d.topic,
	})

	switch d.result {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.logg.Debug(logCtx, "outbox event published")
	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
	case outcomeParked:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"park_reason": d.reason,
			"error":       d.err.Error(),
		}), "outbox event parked")
		if err := s.repo.MarkTerminalTx(tx, d.event.ID, d.err, s.maxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", d.event.ID, err)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.topics.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, message(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// message carries the stored envelope as-is; attributes let subscribers
// filter without decoding it.
func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"correlation_id": resolved.Envelope.CorrelationID,
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
