package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-kasir/internal/app"
	"github.com/noah-isme/toko-kasir/internal/cache"
	"github.com/noah-isme/toko-kasir/internal/cart"
	"github.com/noah-isme/toko-kasir/internal/checkout"
	"github.com/noah-isme/toko-kasir/internal/common"
	"github.com/noah-isme/toko-kasir/internal/config"
	"github.com/noah-isme/toko-kasir/internal/events"
	"github.com/noah-isme/toko-kasir/internal/health"
	"github.com/noah-isme/toko-kasir/internal/lock"
	"github.com/noah-isme/toko-kasir/internal/obs"
	"github.com/noah-isme/toko-kasir/internal/ratelimit"
	"github.com/noah-isme/toko-kasir/internal/repo"
	"github.com/noah-isme/toko-kasir/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, "kasir-api")
	cancel()
	if err != nil {
		panic(err)
	}
	defer deps.Close(context.Background())
	logger := deps.Logger

	ledgerCache := cache.NewLedger(deps.Redis, cfg.LedgerCacheTTL)
	catalog := &repo.Catalog{DB: deps.DB, Cache: ledgerCache, Logger: logger}
	orders := &repo.Orders{DB: deps.DB}
	locker := lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetry}

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task client")
	}
	taskClient := asynq.NewClient(redisConn)
	bus := &events.Bus{
		Queue:     taskClient,
		MaxRetry:  cfg.QueueMaxRetry,
		Retention: time.Hour,
		Notifiers: []events.Notifier{events.LedgerNotifier{Ledger: ledgerCache, Location: cfg.Location}},
	}

	cartSvc := &cart.Service{
		Store:     cart.NewRedisStore(deps.Redis, cfg.CartTTL),
		Snapshots: catalog,
		Customers: &repo.Customers{DB: deps.DB},
		Orders:    orders,
		Retry:     deps.Retrier("catalog"),
		Locker:    locker,
		LockTTL:   cfg.CommitLockTTL,
		Policies:  cfg.CreditPolicies,
		Location:  cfg.Location,
		NewID:     uuid.NewString,
		Logger:    logger,
	}
	cartHandler := &cart.Handler{Svc: cartSvc}

	checkoutSvc := &checkout.Service{
		Carts:     cartSvc,
		Committer: orders,
		Retry:     deps.Retrier("commit"),
		Locker:    locker,
		LockTTL:   cfg.CommitLockTTL,
		Events:    bus,
		Logger:    logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	checkoutLimiter, err := ratelimit.NewRedis(deps.Redis, cfg.RateLimitCheckout, "kasir:ratelimit:checkout")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limit")
	}
	throttle := ratelimit.Handler{
		Limiter: checkoutLimiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.EnableHSTS}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", obs.CashierHeader},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{
		Checker:  health.Probes{DB: deps.DB, Redis: deps.Redis},
		Breakers: deps.Breakers,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/carts", func(c chi.Router) {
			c.Post("/", cartHandler.Create)
			c.Route("/{id}", func(one chi.Router) {
				one.Get("/", cartHandler.Get)
				one.Delete("/", cartHandler.Reset)
				one.Post("/lines", cartHandler.AddLine)
				one.Patch("/lines/{productId}", cartHandler.UpdateLine)
				one.Delete("/lines/{productId}", cartHandler.RemoveLine)
				one.Put("/discount", cartHandler.SetDiscount)
				one.Post("/discount/mode", cartHandler.SwitchDiscountMode)
				one.Put("/payment", cartHandler.SetPayment)
				one.Put("/customer", cartHandler.SetCustomer)
				one.With(throttle.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
			})
		})
		v.With(idem.Middleware).Post("/orders/{orderId}/edit", cartHandler.StartEdit)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
