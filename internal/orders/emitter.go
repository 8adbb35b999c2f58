package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Sink is a transport for encoded envelopes (kafka, rabbitmq).
type Sink interface {
	Send(ctx context.Context, topic string, key, value []byte, eventType string) error
}

// Emitter wraps payloads in a v1 Envelope and hands them to Sink.
type Emitter struct {
	Sink     Sink
	Producer string
	Now      func() time.Time
}

func (e *Emitter) emit(ctx context.Context, topic, eventType, orderID, traceID string, payload any) error {
	if e == nil || e.Sink == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      e.Producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       body,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.Sink.Send(ctx, topic, PartitionKey(orderID), value, eventType)
}

func (e *Emitter) OrderPlaced(ctx context.Context, p OrderPlacedPayload, traceID string) error {
	return e.emit(ctx, TopicOrderPlaced, EventOrderPlaced, p.OrderID, traceID, p)
}

func (e *Emitter) OrderStatusChanged(ctx context.Context, p OrderStatusChangedPayload, traceID string) error {
	return e.emit(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, p.OrderID, traceID, p)
}
