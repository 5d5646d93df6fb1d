package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/pos-checkout/internal/app"
	"github.com/noah-isme/pos-checkout/internal/common"
	"github.com/noah-isme/pos-checkout/internal/config"
	"github.com/noah-isme/pos-checkout/internal/health"
	"github.com/noah-isme/pos-checkout/internal/obs"
	"github.com/noah-isme/pos-checkout/internal/ratelimit"
	"github.com/noah-isme/pos-checkout/internal/security"
)

const (
	shutdownGrace   = 15 * time.Second
	maxRequestBytes = 1 << 20
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := cfg.Obs.MetricsEnabled
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pos-checkout",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
			Storefront:    cfg.StorefrontBaseURL,
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()
	if deps.Redis == nil {
		logger.Warn().Msg("REDIS_URL not set: catalog cache, idempotency and checkout rate limit disabled")
	}

	checkoutHandler := deps.CheckoutHandler()
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("checkout"),
			Window: cfg.RateLimit.Window,
			Max:    cfg.RateLimit.Max,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("checkout rate limiter unavailable") },
	}
	readBudget := ratelimit.Budget{
		Limiter: deps.ReadLimit,
		Key:     ratelimit.ByClientIP("reads"),
		OnError: func(err error) { logger.Warn().Err(err).Msg("read limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		user := os.Getenv("SECURE_PPROF_BASIC_AUTH_USER")
		pass := os.Getenv("SECURE_PPROF_BASIC_AUTH_PASS")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:           deps.Readiness(),
		StorefrontTimeout: cfg.Upstream.Timeout,
		RedisTimeout:      300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.Headers{Enable: true, NoStore: true}.Middleware)
		v.Use(security.BodyLimit{Max: maxRequestBytes}.Middleware)
		v.With(readBudget.Middleware).Get("/products", checkoutHandler.Products)
		v.Route("/checkout", func(c chi.Router) {
			c.With(readBudget.Middleware).Post("/evaluate", checkoutHandler.Evaluate)
			c.With(checkoutLimit.Middleware, idem.Middleware).Post("/", checkoutHandler.Checkout)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("storefront", cfg.StorefrontBaseURL).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
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
	mux.Handle("/allocs", pprof.Handler("allocs"))
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
