package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"enrollgate/internal/documents"
	"enrollgate/internal/enrollment"
	"enrollgate/internal/notification"
	pendingHandler "enrollgate/internal/pending/handler"
	"enrollgate/internal/pending/lock"
	pendingMetrics "enrollgate/internal/pending/metrics"
	pendingService "enrollgate/internal/pending/service"
	pendingStore "enrollgate/internal/pending/store"
	"enrollgate/internal/pending/workers/sweep"
	"enrollgate/internal/platform/config"
	"enrollgate/internal/platform/database"
	"enrollgate/internal/platform/health"
	"enrollgate/internal/platform/kafka/producer"
	redisClient "enrollgate/internal/platform/redis"
	"enrollgate/internal/requirements"
	"enrollgate/pkg/platform/circuit"
	"enrollgate/pkg/platform/middleware/request"
)

// dispatcher is what both notification backends provide.
type dispatcher interface {
	pendingService.Notifier
	sweep.Notifier
}

type app struct {
	router  http.Handler
	sweep   *sweep.Scheduler
	redis   *redisClient.Client
	db      *database.Pool
	closers []func() error
	log     *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close dependency", "error", err)
		}
	}
}

// build selects each backend from configuration. Every external system has an
// in-process fallback so the service runs standalone in development.
func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := health.New(cfg.Environment)

	store, err := buildStore(ctx, cfg, log, reg, checks, a)
	if err != nil {
		return nil, err
	}
	locker, err := buildLocker(ctx, cfg, log, reg, checks, a)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(ctx, cfg, log, reg, checks, a)
	if err != nil {
		return nil, err
	}
	docs, err := buildDocuments(ctx, cfg, log, checks)
	if err != nil {
		return nil, err
	}

	var finalizer pendingService.Finalizer
	if cfg.Enrollment.URL != "" {
		breaker := circuit.New("enrollment_store",
			circuit.WithStateChange(func(name string, from, to circuit.State) {
				log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}),
		)
		finalizer = enrollment.NewRESTClient(cfg.Enrollment.URL, cfg.Enrollment.Timeout, log, enrollment.WithBreaker(breaker))
		log.Info("enrollment store configured", "url", cfg.Enrollment.URL)
	} else {
		finalizer = enrollment.NewMemoryStore()
		log.Warn("ENROLLMENT_STORE_URL not set, finalizing into memory")
	}

	m := pendingMetrics.New(reg)
	svc, err := pendingService.New(store, requirements.NewResolver(), log,
		pendingService.WithLocker(locker),
		pendingService.WithFinalizer(finalizer),
		pendingService.WithNotifier(notifier),
		pendingService.WithMetrics(m),
		pendingService.WithTTL(cfg.Pending.TTL),
		pendingService.WithStoreTimeout(cfg.Pending.StoreTimeout),
		pendingService.WithMaxExtensionDays(cfg.Pending.MaxExtensionDays),
	)
	if err != nil {
		return nil, fmt.Errorf("create pending service: %w", err)
	}

	a.sweep, err = sweep.New(svc,
		sweep.WithInterval(cfg.Pending.SweepInterval),
		sweep.WithNotifier(notifier),
		sweep.WithMetrics(m),
		sweep.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep scheduler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.Operator)
	r.Use(request.BodyLimit(cfg.MaxUploadBytes + 1<<20))
	r.Use(request.Logger(log))
	r.Use(request.Latency(request.NewMetrics(reg)))

	checks.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	h := pendingHandler.New(svc, docs, log, pendingHandler.WithMaxUploadBytes(cfg.MaxUploadBytes))
	h.Register(r)
	h.RegisterAdmin(r)

	a.router = r
	return a, nil
}

func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, checks *health.Handler, a *app) (pendingService.Store, error) {
	pool, err := database.New(ctx, cfg.Database, database.NewPoolMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if pool == nil {
		log.Warn("DATABASE_URL not set, pending registrations are kept in memory")
		return pendingStore.NewInMemory(), nil
	}
	a.db = pool
	a.closers = append(a.closers, pool.Close)
	if err := pool.Migrate(ctx); err != nil {
		return nil, err
	}
	checks.RegisterCheck("database", pool.Health)
	log.Info("pending store configured", "backend", "postgres")
	return pendingStore.NewPostgres(pool.DB()), nil
}

func buildLocker(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, checks *health.Handler, a *app) (lock.Locker, error) {
	client, err := redisClient.New(ctx, cfg.Redis, redisClient.NewPoolMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		log.Info("REDIS_URL not set, national ID locks are process local")
		return lock.NewLocal(0), nil
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	checks.RegisterCheck("redis", client.Health)
	return lock.NewRedis(client, lock.WithLogger(log)), nil
}

func buildNotifier(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, checks *health.Handler, a *app) (dispatcher, error) {
	if len(cfg.Kafka.KafkaBrokers()) == 0 {
		log.Info("KAFKA_BROKERS not set, notifications are logged only")
		return notification.NewLogDispatcher(log), nil
	}
	prod, err := producer.New(cfg.Kafka, log, producer.WithMetrics(producer.NewMetrics(reg)))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, prod.Close)
	if err := prod.EnsureTopics(ctx, int32(cfg.Kafka.TopicPartitions), int16(cfg.Kafka.TopicReplication),
		cfg.Kafka.NotificationTopic, cfg.Kafka.EventTopic); err != nil {
		return nil, fmt.Errorf("prepare kafka topics: %w", err)
	}
	checks.RegisterOptionalCheck("kafka", prod.Health)
	return notification.NewKafkaDispatcher(prod,
		notification.WithTopics(cfg.Kafka.NotificationTopic, cfg.Kafka.EventTopic),
		notification.WithLogger(log),
	), nil
}

func buildDocuments(ctx context.Context, cfg config.Server, log *slog.Logger, checks *health.Handler) (documents.Store, error) {
	if cfg.Minio.Endpoint == "" {
		log.Warn("MINIO_ENDPOINT not set, uploaded documents are kept in memory")
		return documents.NewMemoryStore(), nil
	}
	store, err := documents.NewMinio(cfg.Minio)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("prepare document bucket: %w", err)
	}
	checks.RegisterOptionalCheck("minio", store.Health)
	return store, nil
}
