package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
)

var testTopics = config.PubSubConfig{
	NotificationTopic: "agent-pushes",
	DomainTopic:       "domain-events",
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       envelope,
	}
}

func TestResolveDecodesOfferPayload(t *testing.T) {
	reg, err := NewEventRegistry(testTopics)
	require.NoError(t, err)

	agentID, orderID := uuid.New(), uuid.New()
	resolved, err := reg.Resolve(row(t, enums.EventOfferCreated, enums.AggregateAgent, agentID, payloads.OfferCreatedEvent{
		AgentID:    agentID,
		OrderID:    orderID,
		Method:     enums.AllocationOneByOne,
		DistanceKm: 1.4,
		ExpiresAt:  time.Now().UTC().Add(30 * time.Second),
	}))
	require.NoError(t, err)

	assert.Equal(t, "agent-pushes", resolved.Descriptor.Topic)
	offer, ok := resolved.Payload.(*payloads.OfferCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, offer.OrderID)
	assert.Equal(t, 1.4, offer.DistanceKm)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestEveryRouteReachesItsAudienceTopic(t *testing.T) {
	reg, err := NewEventRegistry(testTopics)
	require.NoError(t, err)

	for _, r := range routes {
		resolved, err := reg.Resolve(row(t, r.event, r.aggregate, uuid.New(), map[string]any{}))
		require.NoError(t, err, r.event)

		want := testTopics.DomainTopic
		if r.to == agents {
			want = testTopics.NotificationTopic
		}
		assert.Equal(t, want, resolved.Descriptor.Topic, r.event)
		assert.True(t, r.event.IsValid(), r.event)
	}
}

func TestResolveRejectsBadRowsWithoutRetry(t *testing.T) {
	reg, err := NewEventRegistry(testTopics)
	require.NoError(t, err)

	nullData := row(t, enums.EventOrderDelivered, enums.AggregateOrder, uuid.New(), nil)
	cases := map[string]models.OutboxEvent{
		"unknown type":       row(t, enums.OutboxEventType("agent_teleported"), enums.AggregateAgent, uuid.New(), map[string]any{}),
		"aggregate mismatch": row(t, enums.EventOrderAssigned, enums.AggregateMilestone, uuid.New(), map[string]any{}),
		"missing aggregate":  row(t, enums.EventOrderDelivered, enums.AggregateOrder, uuid.Nil, map[string]any{}),
		"null data":          nullData,
		"garbage payload":    {EventType: enums.EventOrderDelivered, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte("{")},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			assert.True(t, errors.As(err, &nonRetry), "got %v", err)
		})
	}
}

func TestNewEventRegistryRequiresBothTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "n"})
	assert.EqualError(t, err, "domain topic is required")
	_, err = NewEventRegistry(config.PubSubConfig{DomainTopic: "d"})
	assert.EqualError(t, err, "notification topic is required")
}

func TestNonRetryableErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewNonRetryableError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "non-retryable error", NonRetryableError{}.Error())
}
