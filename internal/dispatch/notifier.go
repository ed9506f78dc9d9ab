package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
)

// Notification is a message for one agent.
type Notification struct {
	Type        enums.OutboxEventType
	OrderID     uuid.UUID
	BatchOrders []uuid.UUID
	Method      enums.AllocationMethod
	DistanceKm  float64
	ExpiresAt   *time.Time
	Reason      string
}

// Notifier delivers agent notifications. Delivery is fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, agentID uuid.UUID, n Notification) error
}

// EventEmitter queues domain events inside a transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxNotifier queues notifications as outbox rows; the outbox publisher
// forwards them to the notification topic.
type OutboxNotifier struct {
	db      txRunner
	emitter EventEmitter
}

func NewOutboxNotifier(db txRunner, emitter EventEmitter) *OutboxNotifier {
	return &OutboxNotifier{db: db, emitter: emitter}
}

func (n *OutboxNotifier) Send(ctx context.Context, agentID uuid.UUID, note Notification) error {
	event := outbox.DomainEvent{
		EventType:     note.Type,
		AggregateType: enums.AggregateAgent,
		AggregateID:   agentID,
		Source:        &outbox.Source{Service: "dispatch"},
	}
	switch note.Type {
	case enums.EventOfferCreated:
		payload := payloads.OfferCreatedEvent{
			AgentID:     agentID,
			OrderID:     note.OrderID,
			BatchOrders: note.BatchOrders,
			Method:      note.Method,
			DistanceKm:  note.DistanceKm,
		}
		if note.ExpiresAt != nil {
			payload.ExpiresAt = *note.ExpiresAt
		}
		event.Data = payload
	default:
		event.Data = payloads.OfferWithdrawnEvent{
			AgentID: agentID,
			OrderID: note.OrderID,
			Reason:  note.Reason,
		}
	}
	return n.db.WithTx(ctx, func(tx *gorm.DB) error {
		return n.emitter.Emit(ctx, tx, event)
	})
}
