package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-checkout/internal/obs"
)

const (
	snapshotCacheKey = "catalog:products:snapshot"
	refreshLockKey   = "catalog:refresh"
	refreshLockTTL   = 10 * time.Second
	refreshLockWait  = 2 * time.Second
)

// Fetcher loads the product list from the upstream storefront.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]Product, error)
}

// Locker serialises cache refreshes across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service provides catalog snapshots, preferring the cache over the upstream.
type Service struct {
	fetcher Fetcher
	cache   *Cache
	locker  Locker
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies. Locker is optional and only
// used together with Cache.
type ServiceConfig struct {
	Fetcher Fetcher
	Cache   *Cache
	Locker  Locker
	Logger  *zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("catalog: fetcher is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{fetcher: cfg.Fetcher, cache: cfg.Cache, locker: cfg.Locker, logger: logger}, nil
}

// Snapshot returns the current catalog index. An unavailable upstream yields an
// empty index rather than an error so callers never hold partial state.
func (s *Service) Snapshot(ctx context.Context) *Index {
	if products, ok := s.cached(ctx); ok {
		observeSnapshot("cache")
		return NewIndex(products)
	}
	products, source, err := s.refresh(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("catalog unavailable")
		observeSnapshot("unavailable")
		return NewIndex(nil)
	}
	observeSnapshot(source)
	return NewIndex(products)
}

// Invalidate drops the cached snapshot, typically after a confirmed order changed stock.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, snapshotCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
}

func (s *Service) cached(ctx context.Context) ([]Product, bool) {
	if s.cache == nil {
		return nil, false
	}
	var products []Product
	ok, err := s.cache.GetJSON(ctx, snapshotCacheKey, &products)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache read failed")
		return nil, false
	}
	return products, ok
}

// refresh fetches under the refresh lock so a cold cache costs one upstream
// call across replicas. Waiters re-read the cache once they hold the lock. If
// the lock cannot be had in time the fetch goes ahead without it.
func (s *Service) refresh(ctx context.Context) ([]Product, string, error) {
	if s.locker == nil || s.cache == nil {
		return s.fetchAndStore(ctx)
	}
	lockCtx, cancel := context.WithTimeout(ctx, refreshLockWait)
	defer cancel()

	var (
		products []Product
		source   string
		ran      bool
	)
	err := s.locker.WithLock(lockCtx, refreshLockKey, refreshLockTTL, func(context.Context) error {
		ran = true
		if cached, ok := s.cached(ctx); ok {
			products, source = cached, "cache"
			return nil
		}
		var err error
		products, source, err = s.fetchAndStore(ctx)
		return err
	})
	if ran {
		return products, source, err
	}
	s.logger.Warn().Err(err).Msg("catalog refresh lock unavailable")
	return s.fetchAndStore(ctx)
}

func (s *Service) fetchAndStore(ctx context.Context) ([]Product, string, error) {
	products, err := s.fetcher.FetchProducts(ctx)
	if err != nil {
		return nil, "", err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, snapshotCacheKey, products); err != nil {
			s.logger.Warn().Err(err).Msg("catalog cache write failed")
		}
	}
	return products, "upstream", nil
}

func observeSnapshot(source string) {
	obs.IncCounter(obs.CatalogSnapshotTotal, source)
}
