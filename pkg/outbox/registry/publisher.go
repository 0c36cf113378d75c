// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads before publishing.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/saakshy/saakshy-backend/pkg/config"
	"github.com/saakshy/saakshy-backend/pkg/db/models"
	"github.com/saakshy/saakshy-backend/pkg/enums"
	"github.com/saakshy/saakshy-backend/pkg/outbox"
	"github.com/saakshy/saakshy-backend/pkg/outbox/payloads"
)

// EventDescriptor is the route for one outbox event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

func route[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: enums.AggregateRecord,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			return payload, json.Unmarshal(raw, payload)
		},
	}
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError { return NonRetryableError{Err: err} }

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes appended events to the ledger topic and integrity
// failures to the integrity topic, which defaults to the ledger topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LedgerTopic == "" {
		return nil, errors.New("ledger topic is required")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		route[payloads.RecordEventAppendedEvent](enums.EventRecordEventAppended, cfg.LedgerTopic),
		route[payloads.RecordIntegrityFailedEvent](enums.EventRecordIntegrityFailed, cfg.IntegrityTopicOrDefault()),
	} {
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Topics lists the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for _, d := range r.routes {
		topics = append(topics, d.Topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// Resolve checks row against its route and decodes the payload. Every error
// it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", row.EventType)
	case d.AggregateType != row.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", d.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	if bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, nonRetryable("payload missing for %s", row.EventType)
	}
	payload, err := d.decode(env.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: env, Payload: payload}, nil
}
