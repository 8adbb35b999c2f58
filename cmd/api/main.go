package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/config"
	"github.com/ariefcatur/go-shop-checkout/internal/httpx"
	"github.com/ariefcatur/go-shop-checkout/internal/idempotency"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/promotions"
	"github.com/ariefcatur/go-shop-checkout/internal/rabbitmq"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/reports"
	"github.com/ariefcatur/go-shop-checkout/internal/users"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("%v", err)
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var idem idempotency.Store
	switch cfg.IdempotencyBackend {
	case "memory":
		mem := idempotency.NewMemoryStore()
		go mem.RunJanitor(ctx, time.Hour)
		idem = mem
		log.Printf("idempotency store is process-local; run a single API instance")
	default:
		idem = &idempotency.RedisStore{Redis: rdb}
	}

	// Events
	emitter := &orders.Emitter{Producer: cfg.ServiceName}
	var prod *kafkax.Producer
	switch cfg.EventsBackend {
	case "kafka":
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024)
		prod.Start(ctx)
		emitter.Sink = prod
	case "rabbitmq":
		mq, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.Exchange)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer mq.Close()
		emitter.Sink = mq
	default:
		log.Printf("events disabled (EVENTS_BACKEND=%s)", cfg.EventsBackend)
	}

	logger := logging.New(cfg.ServiceName, os.Stdout)
	m := metrics.NewServerMetrics("api")

	orderRepo := &orders.Repo{DB: db}
	cartRepo := &cart.Repo{DB: db}
	promoRepo := &promotions.Repo{DB: db}

	svc := &checkout.Service{
		Orders:      orderRepo,
		Carts:       cartRepo,
		Profiles:    &users.Repo{DB: db},
		Promotions:  promoRepo,
		Idempotency: idem,
		Events:      emitter,
		Log:         logger,
		Metrics:     m,
		RecordTTL:   cfg.IdempotencyTTL,
		LockTTL:     cfg.IdempotencyLockTTL,
	}

	router := httpx.NewRouter(m)
	api := &httpx.API{
		JWTSecret: cfg.JWTSecret,
		Checkout:  &httpx.CheckoutHandler{Service: svc},
		Orders:    &httpx.OrdersHandler{Repo: orderRepo, Redis: rdb, Events: emitter, Log: logger},
		Cart:      &httpx.CartHandler{Repo: cartRepo},
		Catalog:   &httpx.CatalogHandler{Promotions: promoRepo},
		Reports:   &httpx.ReportsHandler{Repo: &reports.Repo{DB: db}, Log: logger},
	}
	api.Mount(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	// outlast the request timeout so in-flight checkouts publish before the producer closes
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if prod != nil {
		prod.Close() // close inbox -> flush & close writer; late Sends get ErrProducerClosed
		prod.WaitClosed()
	}
	cancel()
}
