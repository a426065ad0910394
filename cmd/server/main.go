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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"aidpool/internal/aid/handler"
	"aidpool/internal/aid/metrics"
	"aidpool/internal/aid/ports"
	"aidpool/internal/aid/service"
	"aidpool/internal/aid/store"
	donationstore "aidpool/internal/aid/store/donation"
	"aidpool/internal/aid/store/idempotency"
	requeststore "aidpool/internal/aid/store/request"
	"aidpool/internal/aid/sweeper"
	"aidpool/internal/platform/config"
	"aidpool/internal/platform/httpserver"
	"aidpool/internal/platform/logger"
	"aidpool/internal/platform/middleware"
	"aidpool/internal/platform/postgres"
	platformredis "aidpool/internal/platform/redis"
	"aidpool/pkg/platform/audit"
	auditkafka "aidpool/pkg/platform/audit/kafka"
	auditmemory "aidpool/pkg/platform/audit/store/memory"
	auditworker "aidpool/pkg/platform/audit/worker"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		return err
	}

	var (
		requests  ports.RequestStore
		donations ports.DonationStore
	)
	var serviceOpts []service.Option
	if db != nil {
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err)
			return err
		}
		requests = requeststore.NewPostgres(db)
		donations = donationstore.NewPostgres(db)
		serviceOpts = append(serviceOpts, service.WithDB(db))
		log.Info("using postgres stores")
	} else {
		requests = requeststore.NewMemory()
		donations = donationstore.NewMemory()
		log.Info("using in-memory stores")
	}

	var idem ports.IdempotencyStore = idempotency.NewMemory()
	redisClient, err := platformredis.New(config.DefaultRedisConfig(cfg.RedisURL))
	if err != nil {
		log.Error("redis connection failed", "error", err)
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		idem = idempotency.NewRedis(redisClient.Client)
		log.Info("using redis idempotency store")
	}
	serviceOpts = append(serviceOpts, service.WithIdempotencyStore(idem))

	group, ctx := errgroup.WithContext(ctx)

	// Ledger events go to Kafka when brokers are configured; otherwise an
	// in-process worker drains them into a memory store so emission still
	// has a sink.
	var publisher ports.AuditPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := auditkafka.New(ctx, cfg.KafkaBrokers, auditkafka.WithLogger(log))
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = kafkaPublisher.Close(flushCtx)
		}()
		publisher = kafkaPublisher
		log.Info("publishing ledger events to kafka", "brokers", cfg.KafkaBrokers)
	} else {
		channelPublisher := audit.NewChannelPublisher(256)
		worker := auditworker.NewWorker(auditmemory.New(), channelPublisher.Events())
		group.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		publisher = channelPublisher
	}
	serviceOpts = append(serviceOpts,
		service.WithAuditPublisher(publisher),
		service.WithMetrics(metrics.New()),
		service.WithLogger(log),
	)

	svc, err := service.New(requests, donations, serviceOpts...)
	if err != nil {
		log.Error("service construction failed", "error", err)
		return err
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Tracing)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	auth := middleware.NewAuthenticator(cfg.JWTSigningKey)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		handler.New(svc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("starting aidpool server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		err := sweeper.New(svc, cfg.RecheckInterval, log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
