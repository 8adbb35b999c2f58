package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/notify"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/rabbitmq"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.SMTPAddr != "" {
		mailer = &notify.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom, User: cfg.SMTPUser, Password: cfg.SMTPPassword}
	}

	svc := &notify.Service{
		Mailer:      mailer,
		Redis:       rdb,
		Log:         logging.New(cfg.NotifierGroup, os.Stdout),
		ServiceName: cfg.NotifierGroup,
		ClientURL:   cfg.ClientURL,
	}

	switch cfg.EventsBackend {
	case "rabbitmq":
		mq, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.Exchange)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer mq.Close()
		go func() {
			log.Printf("notifier consuming queue=%s", rabbitmq.OrderPlacedQueue)
			if err := mq.Consume(ctx, rabbitmq.OrderPlacedQueue, rabbitmq.OrderPlacedRouting, cfg.NotifierWorkers, svc.Handle); err != nil {
				log.Printf("consumer exit: %v", err)
				cancel()
			}
		}()
	case "kafka":
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderPlaced, cfg.NotifierWorkers)
		go func() {
			log.Printf("notifier consumer started: group=%s topic=%s workers=%d", cfg.NotifierGroup, orders.TopicOrderPlaced, cfg.NotifierWorkers)
			if err := cons.Start(ctx, svc.HandleKafka); err != nil {
				log.Printf("consumer exit: %v", err)
				cancel()
			}
		}()
	default:
		log.Fatalf("notifier needs EVENTS_BACKEND=kafka or rabbitmq, got %q", cfg.EventsBackend)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down notifier...")
	cancel()
}
