// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
)

type audience int

const (
	// agents receive offers, assignments and milestone completions as pushes.
	agents audience = iota
	// downstream services consume the rest.
	downstream
)

type route struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	to        audience
	payload   func() any
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

var routes = []route{
	{enums.EventOfferCreated, enums.AggregateAgent, agents, payloadOf[payloads.OfferCreatedEvent]()},
	{enums.EventOfferWithdrawn, enums.AggregateAgent, agents, payloadOf[payloads.OfferWithdrawnEvent]()},
	{enums.EventOrderAssigned, enums.AggregateOrder, agents, payloadOf[payloads.OrderAssignedEvent]()},
	{enums.EventMilestoneCompleted, enums.AggregateMilestone, agents, payloadOf[payloads.MilestoneEvent]()},
	{enums.EventOrderAllocationFailed, enums.AggregateOrder, downstream, payloadOf[payloads.OrderAllocationFailedEvent]()},
	{enums.EventOrderAutoCanceled, enums.AggregateOrder, downstream, payloadOf[payloads.OrderAutoCanceledEvent]()},
	{enums.EventOrderDelivered, enums.AggregateOrder, downstream, payloadOf[payloads.OrderDeliveredEvent]()},
	{enums.EventMilestoneRewardClaimed, enums.AggregateMilestone, downstream, payloadOf[payloads.MilestoneEvent]()},
	{enums.EventIncentiveComputed, enums.AggregateIncentive, downstream, payloadOf[payloads.IncentiveComputedEvent]()},
}

// EventDescriptor is the resolved route of one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewEventRegistry binds every route to its configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[audience]string{
		agents:     cfg.NotificationTopic,
		downstream: cfg.DomainTopic,
	}
	switch {
	case topics[agents] == "":
		return nil, errors.New("notification topic is required")
	case topics[downstream] == "":
		return nil, errors.New("domain topic is required")
	}

	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, r := range routes {
		reg.byType[r.event] = EventDescriptor{
			EventType:     r.event,
			AggregateType: r.aggregate,
			Topic:         topics[r.to],
			newPayload:    r.payload,
		}
	}
	return reg, nil
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is non-retryable: the row's bytes will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.describe(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) describe(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return desc, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return desc, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return desc, errors.New("missing aggregate_id")
	}
	return desc, nil
}
