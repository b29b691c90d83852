package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"satvault/internal/allocator"
	"satvault/internal/events"
	eventspg "satvault/internal/events/store/postgres"
	"satvault/internal/events/worker"
	jwttoken "satvault/internal/jwt_token"
	"satvault/internal/ledger"
	ledgerhandler "satvault/internal/ledger/handler"
	ledgermetrics "satvault/internal/ledger/metrics"
	ledgerpg "satvault/internal/ledger/store/postgres"
	"satvault/internal/platform/config"
	"satvault/internal/platform/httpserver"
	"satvault/internal/platform/kafka"
	"satvault/internal/platform/logger"
	"satvault/internal/platform/metrics"
	"satvault/internal/platform/middleware"
	platformpg "satvault/internal/platform/postgres"
	platformredis "satvault/internal/platform/redis"
	"satvault/internal/queue"
	queuehandler "satvault/internal/queue/handler"
	queuemetrics "satvault/internal/queue/metrics"
	queuepg "satvault/internal/queue/store/postgres"
	"satvault/internal/reimburse"
	poolhandler "satvault/internal/reimburse/handler"
	poolpg "satvault/internal/reimburse/store/postgres"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		log.Error("SATVAULT_DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	if err := platformpg.Migrate(ctx, db, cfg); err != nil {
		log.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// The queue store rides pgx for native transaction control; everything
	// else shares the database/sql pool.
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open pgx pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	cache := platformredis.NewCache(redisClient, config.StatsCacheTTL)
	if cache == nil {
		log.Info("redis not configured, response caching disabled")
	}

	sink := events.NewPublisher(eventspg.New(db))

	var gateway allocator.Gateway
	if cfg.AllocatorURL != "" {
		gateway = allocator.NewRemote(cfg.AllocatorURL)
	} else {
		log.Warn("no allocator configured, vault runs on local reserve only")
	}

	var bridge queue.Bridge
	if cfg.BridgeURL != "" {
		bridge = queue.NewRemoteBridge(cfg.BridgeURL)
	} else {
		log.Warn("no bridge configured, settlements dispatch to an in-process stub")
		bridge = queue.NewFakeBridge()
	}

	ledgerOpts := []ledger.Option{
		ledger.WithDB(db),
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New()),
	}
	if gateway != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithGateway(gateway))
	}
	vault, err := ledger.New(ledgerpg.New(db), sink, ledgerOpts...)
	if err != nil {
		log.Error("build ledger service", "error", err)
		os.Exit(1)
	}

	queueSvc, err := queue.New(queuepg.New(pgPool), vault.QueuePort(), bridge, sink,
		queue.WithLogger(log),
		queue.WithMetrics(queuemetrics.New()),
	)
	if err != nil {
		log.Error("build queue service", "error", err)
		os.Exit(1)
	}

	poolSvc, err := reimburse.New(poolpg.New(db), vault.QueuePort(), sink,
		reimburse.WithLogger(log),
	)
	if err != nil {
		log.Error("build reimbursement service", "error", err)
		os.Exit(1)
	}

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "satvault", "satvault")

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(metrics.New()))
	router.Use(middleware.NewRateLimiter(300, time.Minute).Handler)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)

	ledgerhandler.New(vault, log, tokens, cache).Register(router)
	queuehandler.New(queueSvc, log, tokens, cache).Register(router)
	poolhandler.New(poolSvc, log, tokens).Register(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting satvault", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	producer, err := kafka.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Error("connect kafka", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
		outbox := worker.New(db, producer, log)
		g.Go(func() error {
			err := outbox.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		log.Warn("no kafka brokers configured, events stay in the outbox")
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
