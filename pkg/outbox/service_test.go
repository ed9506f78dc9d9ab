package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/courier-dispatch/pkg/db/dbtest"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

type deliveredData struct {
	OrderID uuid.UUID `json:"orderId"`
	OnTime  bool      `json:"onTime"`
}

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	orderID := uuid.New()
	at := time.Date(2026, 3, 4, 15, 0, 0, 0, time.FixedZone("IST", 19800))

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderDelivered,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Source:        &Source{Service: "deliveries"},
		Data:          deliveredData{OrderID: orderID, OnTime: true},
		OccurredAt:    at,
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "aggregate_id = ?", orderID).Error)
	assert.Nil(t, row.PublishedAt)
	assert.Zero(t, row.AttemptCount)

	env, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, envelopeVersion, env.Version)
	assert.Equal(t, orderID.String(), env.CorrelationID)
	assert.True(t, env.OccurredAt.Equal(at))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"orderId":"`+orderID.String()+`","onTime":true}`, string(env.Data))
	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
}

func TestEmitRejectsUnknownTypeAndMissingTx(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderDelivered}))
	assert.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "order_teleported"}))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelopeRejectsNullData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","data":null}`))
	assert.True(t, errors.Is(err, errEmptyPayload))

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1"}`))
	assert.True(t, errors.Is(err, errEmptyPayload))

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, errEmptyPayload))
}
