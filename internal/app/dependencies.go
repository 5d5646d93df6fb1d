package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/checkout"
	"github.com/noah-isme/pos-checkout/internal/config"
	"github.com/noah-isme/pos-checkout/internal/health"
	"github.com/noah-isme/pos-checkout/internal/lock"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/ratelimit"
	"github.com/noah-isme/pos-checkout/internal/resilience"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

const redisPingTimeout = 5 * time.Second

// Dependencies enumerates the collaborators shared by the HTTP routes.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Redis      *redis.Client
	Validator  *validator.Validate
	Breakers   *resilience.BreakerSet
	Storefront *storefront.Client
	Catalog    *catalog.Service
	Checkout   *checkout.Service
	ReadLimit  *limiter.Limiter
}

// New wires the checkout stack. Redis is optional: without it the catalog
// cache, idempotency keys and the checkout limiter are off and the read
// budget counts in memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	rdb, err := NewRedis(ctx, cfg.RedisURL, cfg.Obs.MetricsEnabled, logger)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Redis:     rdb,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
	}

	deps.Breakers = resilience.NewBreakerSet("storefront", resilience.BreakerConfig{
		MinRequests:  cfg.Upstream.BreakerMinRequests,
		FailureRatio: cfg.Upstream.BreakerFailureRatio,
		OpenFor:      cfg.Upstream.BreakerOpenFor,
	}, logger)
	sfLogger := logger.With().Str("component", "storefront").Logger()
	deps.Storefront, err = storefront.New(storefront.Config{
		BaseURL: cfg.StorefrontBaseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			BaseBackoff: cfg.Upstream.BaseBackoff,
			MaxAttempts: cfg.Upstream.MaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.Upstream.Timeout,
		},
		Breakers: deps.Breakers,
		Logger:   &sfLogger,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("initialise storefront client: %w", err)
	}

	catalogLogger := logger.With().Str("component", "catalog").Logger()
	var refreshLock catalog.Locker
	if rdb != nil {
		refreshLock = lock.Locker{R: rdb}
	}
	deps.Catalog, err = catalog.NewService(catalog.ServiceConfig{
		Fetcher: deps.Storefront,
		Cache:   catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Locker:  refreshLock,
		Logger:  &catalogLogger,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("initialise catalog service: %w", err)
	}

	deps.Checkout = &checkout.Service{
		Catalog:    deps.Catalog,
		Orders:     deps.Storefront,
		Membership: pricing.Membership{RateBps: cfg.Membership.RateBps, MaxDiscount: cfg.Membership.MaxDiscount},
		Logger:     logger.With().Str("component", "checkout").Logger(),
	}

	store, err := ratelimit.NewBudgetStore(rdb)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("initialise limiter store: %w", err)
	}
	deps.ReadLimit = ratelimit.NewBudget(store, cfg.RateLimit.EvaluatePerMinute)
	return deps, nil
}

// CheckoutHandler returns the HTTP handler sharing the container's validator.
func (d *Dependencies) CheckoutHandler() *checkout.Handler {
	return &checkout.Handler{Svc: d.Checkout, Validate: d.Validator}
}

// Readiness checks the storefront and, when configured, Redis. Any open
// storefront breaker fails the storefront check.
func (d *Dependencies) Readiness() health.Checker {
	return readiness{storefront: d.Storefront, breakers: d.Breakers, redis: d.Redis}
}

// Close releases the Redis connection pool.
func (d *Dependencies) Close() {
	if d == nil || d.Redis == nil {
		return
	}
	if err := d.Redis.Close(); err != nil {
		d.Logger.Error().Err(err).Msg("close redis")
	}
}

// NewRedis connects to rawURL with tracing (and optionally metrics)
// instrumentation. An empty URL returns a nil client.
func NewRedis(ctx context.Context, rawURL string, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type readiness struct {
	storefront *storefront.Client
	breakers   *resilience.BreakerSet
	redis      *redis.Client
}

func (c readiness) PingStorefront(ctx context.Context, timeout time.Duration) error {
	if c.storefront == nil {
		return errors.New("storefront not configured")
	}
	if c.breakers != nil {
		if open := c.breakers.OpenOperations(); len(open) > 0 {
			return fmt.Errorf("breaker open: %s", strings.Join(open, ","))
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.storefront.Ping(ctx)
}

func (c readiness) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return health.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
