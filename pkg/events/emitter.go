package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/buildmart/storefront/pkg/logger"
	"github.com/buildmart/storefront/pkg/pubsub"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultPublishTimeout = 5 * time.Second

// Emitter delivers domain events to downstream consumers.
type Emitter interface {
	Emit(ctx context.Context, event DomainEvent) error
}

// Seal wraps event data into an Envelope.
func Seal(event DomainEvent) (Envelope, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event.Type, err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	return Envelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		EventType:  event.Type,
		SessionID:  event.SessionID,
		OccurredAt: event.OccurredAt.UTC(),
		Data:       payload,
	}, nil
}

// LogEmitter writes events to the structured log only.
type LogEmitter struct {
	logg *logger.Logger
}

func NewLogEmitter(logg *logger.Logger) *LogEmitter {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogEmitter{logg: logg}
}

func (e *LogEmitter) Emit(ctx context.Context, event DomainEvent) error {
	envelope, err := Seal(event)
	if err != nil {
		return err
	}
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": string(envelope.EventType),
		"payload":    string(envelope.Data),
	}), "domain event")
	return nil
}

// PubSubEmitter publishes events to per-type topics.
type PubSubEmitter struct {
	topics  map[Type]pubsub.Publisher
	timeout time.Duration
}

// NewPubSubEmitter routes each event type to its publisher. Types without a
// publisher are dropped silently.
func NewPubSubEmitter(topics map[Type]pubsub.Publisher) *PubSubEmitter {
	routed := make(map[Type]pubsub.Publisher, len(topics))
	for t, pub := range topics {
		if pub != nil {
			routed[t] = pub
		}
	}
	return &PubSubEmitter{topics: routed, timeout: defaultPublishTimeout}
}

func (e *PubSubEmitter) Emit(ctx context.Context, event DomainEvent) error {
	pub, ok := e.topics[event.Type]
	if !ok {
		return nil
	}
	envelope, err := Seal(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_id":    envelope.EventID,
			"event_type":  string(envelope.EventType),
			"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}
	if envelope.SessionID != "" {
		msg.Attributes["session_id"] = envelope.SessionID
		msg.OrderingKey = envelope.SessionID
	}

	publishCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil for %s", event.Type)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Fanout emits to every emitter and joins their errors.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event DomainEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}
