package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

// DomainEvent is what dispatch, deliveries, incentives and milestones hand to
// Emit. Data is marshalled into the envelope as is.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Source        *Source
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	case e.AggregateType == "":
		return fmt.Errorf("%s: aggregate type required", e.EventType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s: aggregate id required", e.EventType)
	}
	return nil
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Service writes events into outbox_events on the caller's transaction.
type Service struct {
	repo inserter
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}
}

// Emit queues event inside tx. The publisher only sees the row once tx
// commits, so a rolled back state change never announces itself.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	envelope, err := newEnvelope(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("insert %s: %w", event.EventType, err)
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
