package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/cache"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/catalog"
	"github.com/tournetwork/storefront/internal/checkout"
	"github.com/tournetwork/storefront/internal/common"
	"github.com/tournetwork/storefront/internal/config"
	"github.com/tournetwork/storefront/internal/events"
	"github.com/tournetwork/storefront/internal/health"
	"github.com/tournetwork/storefront/internal/ledger"
	"github.com/tournetwork/storefront/internal/lock"
	"github.com/tournetwork/storefront/internal/obs"
	"github.com/tournetwork/storefront/internal/ratelimit"
	"github.com/tournetwork/storefront/internal/resilience"
	"github.com/tournetwork/storefront/internal/schedule"
	"github.com/tournetwork/storefront/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
		WithTarget("booking_api").
		WithLogger(logger)
	bookingAPI := &backend.Client{
		BaseURL: cfg.BookingAPIBaseURL,
		APIKey:  cfg.BookingAPIKey,
		HTTP: resilience.HTTPClient{
			Client:      backend.NewTransportClient(cfg.OutboundTimeout),
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.OutboundTimeout,
			Target:      "booking_api",
			Logger:      logger,
		},
		Cache:  cache.NewJSON(redisClient, "storefront:backend:", cfg.BackendCacheTTL),
		Logger: logger.With().Str("component", "backend").Logger(),
	}

	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockTTL}
	carts := &cart.Store{
		Carts:     cart.RedisPersister{Cache: cache.NewJSON(redisClient, "storefront:", cfg.CartTTL)},
		Completed: cart.RedisPersister{Cache: cache.NewJSON(redisClient, "storefront:", cfg.CompletedBookingTTL)},
		Locker:    &locker,
		LockTTL:   cfg.LockTTL,
	}

	notifiers := []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}}
	if cfg.EventsEnabled() {
		amqpNotifier := events.NewAMQPNotifier(cfg.AMQPURL, logger)
		defer func() {
			if err := amqpNotifier.Close(); err != nil {
				logger.Error().Err(err).Msg("close amqp")
			}
		}()
		notifiers = append(notifiers, amqpNotifier)
	}
	bus := &events.Bus{Notifiers: notifiers}

	var bookingLedger checkout.Ledger
	if cfg.LedgerEnabled() {
		if err := ledger.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate ledger")
		}
		pool, err := ledger.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect ledger")
		}
		defer pool.Close()
		bookingLedger = &ledger.Store{DB: pool}
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{Backend: bookingAPI, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService, Logger: logger})

	scheduleSvc := &schedule.Service{
		Backend:         bookingAPI,
		Sessions:        cache.NewJSON(redisClient, "storefront:", cfg.SessionTTL),
		Locker:          locker,
		LockTTL:         cfg.LockTTL,
		Carts:           carts,
		DefaultTimezone: cfg.DefaultTimezone,
		Logger:          logger.With().Str("component", "schedule").Logger(),
	}
	scheduleHandler := &schedule.Handler{Svc: scheduleSvc, Logger: logger}

	cartHandler := &cart.Handler{Store: carts, Currency: cfg.CurrencyCode, Logger: logger}

	checkoutSvc := &checkout.Service{
		Backend:  bookingAPI,
		Carts:    carts,
		Events:   bus,
		Ledger:   bookingLedger,
		Currency: cfg.CurrencyCode,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Logger: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	promoLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "storefront:rl:promo:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientAndParam("id"),
			Window: cfg.PromoRateLimitWindow,
			Max:    cfg.PromoRateLimitMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("promo_rate_limit_unavailable") },
		OnReject: func(r *http.Request) {
			logger.Info().Str("session_id", chi.URLParam(r, "id")).Str("ip", ratelimit.ClientIP(r)).Msg("promo_rate_limited")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.Tracing)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.SecurityHeadersEnabled,
		EnableHSTS:            cfg.AppEnv == "production",
		HSTSMaxAge:            63072000,
		HSTSIncludeSubdomains: true,
		NoStore:               true,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:        readinessChecker{redis: redisClient, backend: bookingAPI},
		RedisTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		BackendTimeout: envDurationMillis("HEALTH_READY_BACKEND_TIMEOUT_MS", 2000),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/packages/{tenantId}/{packageId}", catalogHandler.Package)
		v.Post("/quotes", catalogHandler.Quote)

		v.Route("/schedules", func(s chi.Router) {
			s.Post("/", scheduleHandler.Start)
			s.Route("/{id}", func(one chi.Router) {
				one.Get("/", scheduleHandler.Get)
				one.Post("/date", scheduleHandler.SelectDate)
				one.Post("/month", scheduleHandler.NavigateMonth)
				one.Post("/slot", scheduleHandler.SelectSlot)
				one.Put("/lines/{index}", scheduleHandler.SetQuantity)
				one.Put("/group-size", scheduleHandler.SetGroupSize)
				one.Put("/addons/{fieldId}", scheduleHandler.SetAddOn)
				one.With(promoLimit.Middleware).Post("/promo", scheduleHandler.ApplyPromo)
				one.Delete("/promo", scheduleHandler.RemovePromo)
				one.With(idem.Middleware).Post("/cart", scheduleHandler.AddToCart)
			})
		})

		v.Route("/carts", func(c chi.Router) {
			c.Post("/", cartHandler.Create)
			c.Get("/{id}", cartHandler.Get)
			c.Delete("/{id}", cartHandler.Clear)
			c.Delete("/{id}/items/{itemId}", cartHandler.RemoveItem)
			c.Get("/{id}/customer", cartHandler.GetCustomer)
			c.Put("/{id}/customer", cartHandler.PutCustomer)
		})

		v.Route("/checkout", func(c chi.Router) {
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/payment-intent", checkoutHandler.StartPayment)
				g.Post("/confirm", checkoutHandler.Confirm)
			})
			c.Get("/confirmation/{cartId}", checkoutHandler.Confirmation)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	go func() {
		<-stop.Done()
		health.SetReady(false)
		logger.Info().Msg("server draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Bool("ledger", cfg.LedgerEnabled()).Bool("events", cfg.EventsEnabled()).Msg("server starting")
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

type readinessChecker struct {
	redis   *redis.Client
	backend *backend.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingBackend(ctx context.Context, timeout time.Duration) error {
	if c.backend == nil {
		return errors.New("booking api not configured")
	}
	return c.backend.Ping(ctx, timeout)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
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
