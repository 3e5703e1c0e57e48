// Package main runs the subscription server: websocket rooms serving
// token metadata, merged mainnet+subnet balances and delta-suppressed
// prices, with an HTTP query fallback and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/metadata"
	"github.com/r0zar/charisma-sub000/internal/observability"
	"github.com/r0zar/charisma-sub000/internal/room"
	"github.com/r0zar/charisma-sub000/internal/stacks"
	"github.com/r0zar/charisma-sub000/internal/storage"
	chstore "github.com/r0zar/charisma-sub000/internal/storage/clickhouse"
	"github.com/r0zar/charisma-sub000/internal/storage/migrations"
	pgstore "github.com/r0zar/charisma-sub000/internal/storage/postgres"
)

func main() {
	// .env values never override the real environment
	_ = godotenv.Load()

	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "Room server listen address")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics listen address")
	chainAPIURL := flag.String("chain-api-url", envOr("CHAIN_API_URL", "https://api.hiro.so"), "Chain API base URL (balances, read-only calls)")
	aggregatorURL := flag.String("aggregator-url", envOr("AGGREGATOR_URL", ""), "Token metadata/price aggregator base URL (required)")
	fallbackURL := flag.String("fallback-url", envOr("FALLBACK_URL", ""), "Basic metadata fallback base URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (durable alarms)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (broadcast history)")
	mode := flag.String("scheduling-mode", envOr("SCHEDULING_MODE", "interval"), "Refresh scheduling: interval or durable")
	refreshInterval := flag.Duration("refresh-interval", envDurationOr("REFRESH_INTERVAL", 60*time.Second), "Refresh cycle interval")
	initTimeout := flag.Duration("init-timeout", envDurationOr("INIT_TIMEOUT", 30*time.Second), "Room initialization timeout")
	localDev := flag.Bool("local-dev", envBoolOr("LOCAL_DEV", false), "Mark rooms as local-dev in SERVER_INFO")
	flag.Parse()

	logger, err := buildLogger(*localDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *aggregatorURL == "" {
		logger.Fatal("--aggregator-url is required")
	}
	schedMode := room.SchedulingMode(*mode)
	if schedMode != room.ModeInterval && schedMode != room.ModeDurable {
		logger.Fatal("invalid scheduling mode", zap.String("mode", *mode))
	}
	if schedMode == room.ModeDurable && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required for durable scheduling")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upstreams
	chain := stacks.NewClient(*chainAPIURL)
	primary := stacks.NewAggregatorClient(*aggregatorURL)
	var fallback metadata.Source
	if *fallbackURL != "" {
		fallback = stacks.NewBasicMetadataClient(*fallbackURL)
	}
	meta := metadata.New(primary, fallback, logger)

	// Optional stores
	var alarms storage.AlarmStore
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatal("postgres migrations failed", zap.Error(err))
		}
		alarms = pgstore.NewAlarmStore(pool)
		logger.Info("durable alarm store enabled")
	}

	var history storage.HistorySink
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatal("clickhouse migrations failed", zap.Error(err))
		}
		defer conn.Close()
		history = chstore.NewHistoryStore(conn)
		logger.Info("broadcast history sink enabled")
	}

	metrics := observability.NewMetrics("")

	manager := room.NewManager(room.Config{
		Mode:            schedMode,
		RefreshInterval: *refreshInterval,
		InitTimeout:     *initTimeout,
		IsLocalDev:      *localDev,
	}, room.Deps{
		Chain:    chain,
		Metadata: meta,
		Alarms:   alarms,
		History:  history,
		Logger:   logger,
		Metrics:  metrics,
	})

	// Metrics and health on their own listener
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", observability.Handler())
		logger.Info("metrics server listening", zap.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	srv := &http.Server{Addr: *listenAddr, Handler: manager}
	go func() {
		logger.Info("room server listening",
			zap.String("addr", *listenAddr),
			zap.String("mode", string(schedMode)),
			zap.Duration("refresh_interval", *refreshInterval))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("room server error", zap.Error(err))
		}
	}()

	// First signal drains gracefully, second forces exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	go func() {
		sig := <-sigCh
		logger.Warn("forcing immediate shutdown", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	manager.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func buildLogger(localDev bool) (*zap.Logger, error) {
	if localDev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
