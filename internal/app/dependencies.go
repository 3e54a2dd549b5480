// Package app opens the shared dependencies of the api and worker binaries.
package app

import (
	"context"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/toko-kasir/internal/config"
	"github.com/noah-isme/toko-kasir/internal/obs"
	"github.com/noah-isme/toko-kasir/internal/repo"
	"github.com/noah-isme/toko-kasir/internal/resilience"
)

// Dependencies enumerates the services shared by every binary.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Breakers map[string]*resilience.Breaker

	// MeterProvider backs the Redis client metrics.
	MeterProvider metric.MeterProvider

	tracingShutdown func(context.Context) error
}

// Open connects Postgres and Redis, installs tracing and registers metrics.
// service names the binary in logs, traces and the Postgres application_name.
func Open(ctx context.Context, cfg *config.Config, service string) (*Dependencies, error) {
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", service).
		Logger()
	d := &Dependencies{
		Config:        cfg,
		Logger:        logger,
		Breakers:      map[string]*resilience.Breaker{},
		MeterProvider: otel.GetMeterProvider(),
	}

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}
	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   service,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			cfg.Obs.TracingEnabled = false
		} else {
			d.tracingShutdown = shutdown
		}
	}

	if cfg.MigrateOnStart {
		m, err := repo.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		err = RunMigrations(m)
		_, _ = m.Close()
		if err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = service
	d.DB, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := d.DB.Ping(ctx); err != nil {
		d.DB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		d.DB.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	d.Redis = redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(d.Redis); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(d.Redis, redisotel.WithMeterProvider(d.MeterProvider)); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := d.Redis.Ping(ctx).Err(); err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return d, nil
}

// Retrier returns a retrier guarded by the breaker for target, creating the
// breaker on first use.
func (d *Dependencies) Retrier(target string) resilience.Retrier {
	b, ok := d.Breakers[target]
	if !ok {
		cfg := d.Config
		b = resilience.NewBreaker(resilience.BreakerConfig{
			Target:       target,
			MinRequests:  cfg.CircuitMinRequests,
			FailureRatio: cfg.CircuitFailureRatio,
			OpenFor:      cfg.CircuitOpenFor,
			Logger:       &d.Logger,
		})
		d.Breakers[target] = b
	}
	return resilience.Retrier{
		Breaker:     b,
		BaseBackoff: d.Config.RetryBase,
		MaxAttempts: d.Config.RetryMaxAttempts,
		Jitter:      d.Config.RetryJitterPercent,
		Timeout:     d.Config.OutboundTimeout,
	}
}

// Close releases connections and flushes traces.
func (d *Dependencies) Close(ctx context.Context) {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.tracingShutdown != nil {
		if err := d.tracingShutdown(ctx); err != nil {
			d.Logger.Error().Err(err).Msg("shutdown tracer")
		}
	}
}

// RunMigrations exposes migrate for startup routines.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
