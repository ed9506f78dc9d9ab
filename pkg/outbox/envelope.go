package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// envelopeVersion is bumped when the envelope itself changes shape; payload
// versions travel in DomainEvent.Version.
const envelopeVersion = 1

// Source names the component that emitted an event, e.g. dispatch or
// deliveries, plus an optional acting agent or operator.
type Source struct {
	Service string `json:"service"`
	Actor   string `json:"actor,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds. Subscribers dedupe on
// EventID; CorrelationID repeats the aggregate id (order, agent, plan or
// milestone) so consumers can group without decoding data.
type PayloadEnvelope struct {
	Version       int             `json:"version"`
	EventID       string          `json:"eventId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Source        *Source         `json:"source,omitempty"`
	Data          json.RawMessage `json:"data"`
}

var errEmptyPayload = errors.New("envelope data is empty")

func newEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	version := event.Version
	if version <= 0 {
		version = envelopeVersion
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	env := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Source:     event.Source,
		Data:       data,
	}
	if event.AggregateID != uuid.Nil {
		env.CorrelationID = event.AggregateID.String()
	}
	return env, nil
}

// DecodeEnvelope parses a stored payload and rejects envelopes whose data is
// missing or JSON null.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return env, errEmptyPayload
	}
	return env, nil
}
