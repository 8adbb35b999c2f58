package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange           = "shop.orders"
	OrderPlacedQueue   = "notifier.order.placed"
	OrderPlacedRouting = "order.placed"
)

// Client publishes order events on a topic exchange. Routing key = topic name.
type Client struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	mu       sync.Mutex
	exchange string
}

// Dial connects with a few retries; broker containers often start after the API.
func Dial(url, exchange string) (*Client, error) {
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		wait := time.Duration(i*i)*time.Second + time.Second
		log.Printf("rabbitmq dial failed, retrying in %v: %v", wait, err)
		time.Sleep(wait)
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Client{conn: conn, ch: ch, exchange: exchange}, nil
}

func (c *Client) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) Send(ctx context.Context, topic string, key, value []byte, eventType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ch.PublishWithContext(ctx, c.exchange, topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Type:          eventType,
		CorrelationId: string(key),
		Headers:       amqp.Table{"x-event-version": "1"},
		Body:          value,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", topic, c.exchange, err)
	}
	return nil
}

// Consume declares a durable queue bound to routingKey and hands each body to h.
// Deliveries h fails are requeued. It blocks until ctx is done or the channel closes.
func (c *Client) Consume(ctx context.Context, queue, routingKey string, prefetch int, h func(ctx context.Context, body []byte) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, routingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := h(ctx, msg.Body); err != nil {
				log.Printf("rabbitmq handle %s: %v", msg.RoutingKey, err)
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
