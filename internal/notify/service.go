// Package notify sends order emails in response to order events. Delivery
// happens outside the checkout request; a failed send never affects the order.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type Service struct {
	Mailer      Mailer
	Redis       redis.Cmdable // optional; without it redelivered events send twice
	Log         *logging.Logger
	ServiceName string
	ClientURL   string
}

// HandleKafka adapts Handle to the kafka consumer.
func (s *Service) HandleKafka(ctx context.Context, m kafkago.Message) error {
	return s.Handle(ctx, m.Value)
}

// Handle processes one encoded envelope. A nil return means the event is
// done with (sent, duplicate or not ours) and may be acknowledged.
func (s *Service) Handle(ctx context.Context, body []byte) error {
	var env orders.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// poison message: retrying will not fix it
		s.Log.Log(logging.Fields{Step: "decode_envelope", Status: "dropped", Error: err.Error()})
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		s.Log.Log(logging.Fields{EventID: env.EventID, Step: "decode_payload", Status: "dropped", Error: err.Error()})
		return nil
	}
	if p.Email == "" {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		first, err := redisx.FirstSeen(ctx, s.Redis, dkey, redisx.TTLDedup)
		if err != nil {
			return fmt.Errorf("dedup: %w", err)
		}
		if !first {
			return nil
		}
	}

	start := time.Now()
	if err := s.send(ctx, p); err != nil {
		// let the broker redeliver it
		if s.Redis != nil {
			_ = s.Redis.Del(context.WithoutCancel(ctx), dkey).Err()
		}
		s.Log.Log(logging.Fields{EventID: env.EventID, OrderID: p.OrderID, UserID: p.UserID, Step: "send_confirmation", Status: "error", Error: err.Error()})
		return err
	}
	s.Log.Log(logging.Fields{EventID: env.EventID, OrderID: p.OrderID, UserID: p.UserID, Step: "send_confirmation", Status: "sent",
		DurationMS: time.Since(start).Milliseconds()})
	return nil
}

func (s *Service) send(ctx context.Context, p orders.OrderPlacedPayload) error {
	e, err := OrderConfirmation(p, s.ClientURL)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, e)
}
