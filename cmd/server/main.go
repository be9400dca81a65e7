package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/playperu/tasting/internal/broadcast"
	"github.com/playperu/tasting/internal/config"
	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/database"
	"github.com/playperu/tasting/internal/handler/health"
	"github.com/playperu/tasting/internal/identity"
	"github.com/playperu/tasting/internal/migrations"
	"github.com/playperu/tasting/internal/server"
	"github.com/playperu/tasting/internal/store"
	"github.com/playperu/tasting/internal/tasting"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.RunContext(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)
	docs := store.New(db)

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	broadcastMetrics := broadcast.NewMetrics(reg)
	broker := broadcast.NewBroker(logger, broadcastMetrics)

	checks := map[string]health.Checker{"sqlite": docs}
	var publisher coordinator.Publisher = broker
	var relay *broadcast.Relay

	// --- Redis ---
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		redisPub := broadcast.NewRedisPublisher(rdb, broker, logger)
		publisher = redisPub
		relay = broadcast.NewRelay(rdb, broker, logger, broadcastMetrics)
		checks["redis"] = redisPub
	}

	// --- Coordinator ---
	coord := coordinator.New(docs, publisher, logger, cfg.Coordinator(),
		coordinator.WithMetrics(coordinator.NewMetrics(reg)))
	defer coord.Close()

	active, err := docs.SessionIDs(ctx, tasting.StatusActive)
	if err != nil {
		return fmt.Errorf("listing active sessions: %w", err)
	}
	if err := coord.Warm(ctx, active...); err != nil {
		return fmt.Errorf("restoring active sessions: %w", err)
	}
	logger.Info("restored active sessions", "count", len(active))

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Coordinator: coord,
		Broker:      broker,
		Issuer:      identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Checks:      checks,
		Gatherer:    reg,
		WSRate:      rate.Limit(cfg.WSMessagesPerSecond),
		WSBurst:     cfg.WSBurst,
		JoinRate:    rate.Limit(cfg.JoinPerSecond),
		JoinBurst:   cfg.JoinBurst,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		// Closing subscriptions first ends the streaming handlers so
		// Shutdown does not wait on them.
		broker.Close()
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
