package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-kasir/internal/app"
	"github.com/noah-isme/toko-kasir/internal/cache"
	"github.com/noah-isme/toko-kasir/internal/config"
	"github.com/noah-isme/toko-kasir/internal/events"
	"github.com/noah-isme/toko-kasir/internal/health"
	"github.com/noah-isme/toko-kasir/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, "kasir-worker")
	cancel()
	if err != nil {
		panic(err)
	}
	defer deps.Close(context.Background())
	logger := deps.Logger

	worker := &events.Worker{
		Ledger:   cache.NewLedger(deps.Redis, cfg.LedgerCacheTTL),
		Location: cfg.Location,
		Logger:   logger,
		OnConflict: func(evt events.StockConflict) {
			obs.ObserveValidation("commit_conflict", evt.Reason)
		},
	}
	mux := asynq.NewServeMux()
	worker.Register(mux)

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task server")
	}
	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Error().Err(err).Str("task", task.Type()).Int("retried", retried).Msg("task_failed")
		}),
	})

	probeMux := http.NewServeMux()
	healthHandler := health.Handler{Checker: health.Probes{DB: deps.DB, Redis: deps.Redis}}
	probeMux.HandleFunc("/health/live", healthHandler.Live)
	probeMux.HandleFunc("/health/ready", healthHandler.Ready)
	if cfg.Obs.MetricsEnabled {
		probeMux.Handle("/metrics", promhttp.Handler())
	}
	var probes http.Handler = probeMux
	if cfg.Obs.TracingEnabled {
		probes = otelhttp.NewHandler(probeMux, "kasir-worker")
	}
	probeSrv := &http.Server{Addr: cfg.WorkerAddr(), Handler: probes, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := probeSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("probe server stopped")
		}
	}()

	logger.Info().Str("probe_addr", probeSrv.Addr).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()

	health.SetReady(false)
	srv.Shutdown()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := probeSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("probe server shutdown")
	}
	logger.Info().Msg("worker shutdown complete")
}
