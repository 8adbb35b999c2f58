package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// fetcher is the part of *kafka.Reader the consumer drives.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       fetcher
	workers int

	// Backoff is the first retry delay for a failing message. It doubles up
	// to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, Backoff: 200 * time.Millisecond, MaxBackoff: 30 * time.Second}
}

// Start fetches until ctx is done. Each partition maps to one worker, so its
// messages are handled and committed in offset order. A failing message is
// retried until it succeeds or ctx ends; it is never committed past.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	workers := max(c.workers, 1)
	lanes := make([]chan kafka.Message, workers)
	var wg sync.WaitGroup

	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if !c.process(ctx, id, h, m) {
					// ctx is done: leave the rest uncommitted for the next owner
					for range jobs {
					}
					return
				}
			}
		}(i, lanes[i])
	}
	defer wg.Wait()
	closeLanes := func() {
		for _, l := range lanes {
			close(l)
		}
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			closeLanes()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%workers] <- m:
		case <-ctx.Done():
			closeLanes()
			return nil
		}
	}
}

// process runs h until it succeeds, then commits m. It reports false when ctx
// ended first.
func (c *Consumer) process(ctx context.Context, id int, h Handler, m kafka.Message) bool {
	delay, limit := c.Backoff, c.MaxBackoff
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	if limit < delay {
		limit = delay
	}
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		log.Printf("worker %d: topic=%s partition=%d offset=%d attempt=%d: %v", id, m.Topic, m.Partition, m.Offset, attempt, err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, limit)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		log.Printf("worker %d: commit partition=%d offset=%d: %v", id, m.Partition, m.Offset, err)
	}
	return true
}
