package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"attestor/internal/adapter"
	adapterMetrics "attestor/internal/adapter/metrics"
	circuithandler "attestor/internal/circuit/handler"
	circuitservice "attestor/internal/circuit/service"
	circuitstore "attestor/internal/circuit/store"
	itemhandler "attestor/internal/item/handler"
	itemmetrics "attestor/internal/item/metrics"
	itemservice "attestor/internal/item/service"
	itemstore "attestor/internal/item/store"
	"attestor/internal/platform/config"
	"attestor/internal/platform/httpserver"
	"attestor/internal/platform/kafka"
	"attestor/internal/platform/kafka/consumer"
	"attestor/internal/platform/kafka/publisher"
	"attestor/internal/platform/logger"
	platformMetrics "attestor/internal/platform/metrics"
	"attestor/internal/platform/middleware"
	"attestor/internal/platform/postgres"
	platformRedis "attestor/internal/platform/redis"
	provstore "attestor/internal/provenance/store"
	"attestor/internal/push"
	pushhandler "attestor/internal/push/handler"
	pushmetrics "attestor/internal/push/metrics"
	"attestor/internal/storage"
	storagemetrics "attestor/internal/storage/metrics"
	"attestor/pkg/platform/circuit"
)

// main wires the storage core, domain services, Kafka consumers, and the
// HTTP surface. Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Storage core: one replicator drains every entity's durable writes.
	repl := storage.NewReplicator(
		cfg.Storage.Shards, cfg.Storage.QueueDepth, cfg.Storage.MaxRetries,
		log, storage.WithMetrics(storagemetrics.New()),
	)
	replCtx, stopRepl := context.WithCancel(context.Background())
	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		repl.Run(replCtx)
	}()

	itemDurable := itemstore.NewPostgres(db)
	items := itemstore.NewWriteThrough(itemstore.NewInMemory(cfg.Storage.Shards), itemDurable, repl, cfg.Storage.LazyHydration)
	locals := itemstore.NewLocalWriteThrough(itemstore.NewLocalInMemory(), itemDurable, repl, cfg.Storage.LazyHydration)
	circuits := circuitstore.NewWriteThrough(circuitstore.NewInMemory(cfg.Storage.Shards), circuitstore.NewPostgres(db), repl, cfg.Storage.LazyHydration)
	history := provstore.NewWriteThrough(provstore.NewInMemory(), provstore.NewPostgres(db), repl, cfg.Storage.LazyHydration)

	hydrateCtx, cancelHydrate := context.WithTimeout(ctx, 2*time.Minute)
	defer cancelHydrate()
	g, gctx := errgroup.WithContext(hydrateCtx)
	g.Go(func() error { return items.Hydrate(gctx) })
	g.Go(func() error { return locals.Hydrate(gctx) })
	g.Go(func() error { return circuits.Hydrate(gctx) })
	g.Go(func() error { return history.Hydrate(gctx) })
	if err := g.Wait(); err != nil {
		log.Error("hydration failed", "error", err)
		os.Exit(1)
	}

	resolver := itemservice.NewService(items, locals,
		itemservice.WithMetrics(itemmetrics.New()),
		itemservice.WithLogger(log),
	)
	registry := circuitservice.NewService(circuits, log)

	contentStore, err := buildContentStore(cfg.Adapter, redisClient)
	if err != nil {
		log.Error("content store setup failed", "error", err)
		os.Exit(1)
	}
	ledger := buildLedgerClient(cfg.Adapter)
	gateway := adapter.NewGateway(contentStore, ledger, cfg.Adapter.CommitTimeout,
		adapter.WithMetrics(adapterMetrics.New()),
		adapter.WithLogger(log),
		adapter.WithLedgerBreaker(circuit.New("ledger", circuit.WithFailureThreshold(5))),
	)

	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.ConfirmationsTopic, cfg.Kafka.HistoryTopic); err != nil {
		log.Warn("kafka topic bootstrap failed", "error", err)
	}
	historyPub, err := publisher.New(cfg.Kafka.Brokers)
	if err != nil {
		log.Error("kafka publisher setup failed", "error", err)
		os.Exit(1)
	}
	defer historyPub.Close()

	pushes := push.NewService(resolver, registry, circuits, history, gateway,
		adapter.DefaultRegistry(cfg.Adapter.LedgerNetwork),
		push.WithMetrics(pushmetrics.New()),
		push.WithLogger(log),
		push.WithHistoryPublisher(push.NewKafkaHistoryPublisher(historyPub, cfg.Kafka.HistoryTopic)),
	)

	confirmations, err := consumer.New(
		cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup,
		[]string{cfg.Kafka.ConfirmationsTopic},
		push.NewConfirmationHandler(pushes), log,
	)
	if err != nil {
		log.Error("kafka consumer setup failed", "error", err)
		os.Exit(1)
	}
	defer confirmations.Close()
	go func() {
		if err := confirmations.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("confirmation consumer stopped", "error", err)
		}
	}()

	jwtValidator := middleware.NewJWTValidator(cfg.Server.JWTSigningKey)
	httpMetrics := platformMetrics.New()

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.Latency(httpMetrics))

	itemhandler.New(resolver, log, jwtValidator).Register(router)
	circuithandler.New(registry, log, jwtValidator).Register(router)
	pushhandler.New(pushes, log, jwtValidator).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	log.Info("starting attestor", "addr", cfg.Server.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Stop the replicator last so queued durable writes drain.
	stopRepl()
	select {
	case <-replDone:
	case <-time.After(15 * time.Second):
		log.Warn("replicator drain timed out")
	}
}

func buildContentStore(cfg config.Adapter, redisClient *platformRedis.Client) (adapter.ContentStore, error) {
	switch cfg.ContentBackend {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis content backend selected but REDIS_URL is not set")
		}
		return adapter.NewRedisContentStore(redisClient.Client), nil
	case "http":
		if cfg.ContentBaseURL == "" {
			return nil, errors.New("http content backend selected but ADAPTER_CONTENT_BASE_URL is not set")
		}
		return adapter.NewHTTPContentStore(cfg.ContentBaseURL, cfg.CommitTimeout), nil
	case "memory", "":
		return adapter.NewMemoryContentStore(), nil
	default:
		return nil, errors.New("unknown content backend " + cfg.ContentBackend)
	}
}

func buildLedgerClient(cfg config.Adapter) adapter.LedgerClient {
	if cfg.LedgerBaseURL == "" {
		return adapter.NewMemoryLedger()
	}
	return adapter.NewHTTPLedgerClient(cfg.LedgerBaseURL, cfg.CommitTimeout)
}
