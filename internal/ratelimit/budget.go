package ratelimit

import (
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const budgetPrefix = "limiter:reads"

// NewBudgetStore returns a Redis-backed counter store, or an in-process one
// when no Redis client is configured.
func NewBudgetStore(rdb *redis.Client) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: budgetPrefix, CleanUpInterval: time.Minute}
	if rdb == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, opts)
}

// NewBudget builds a fixed-window limiter allowing perMinute requests per key.
// A non-positive budget disables limiting.
func NewBudget(store limiter.Store, perMinute int) *limiter.Limiter {
	if store == nil || perMinute <= 0 {
		return nil
	}
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: int64(perMinute)})
}

// Budget guards cheap read endpoints with a fixed per-minute allowance. Store
// failures let the request through.
type Budget struct {
	Limiter *limiter.Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
func (b Budget) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Limiter == nil || b.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		lctx, err := b.Limiter.Get(r.Context(), b.Key(r))
		if err != nil {
			report(b.OnError, err)
			next.ServeHTTP(w, r)
			return
		}

		reset := time.Unix(lctx.Reset, 0)
		setWindowHeaders(w, lctx.Limit, lctx.Remaining, reset)
		if lctx.Reached {
			refuse(w, r, reset, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
