package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/pos-checkout/internal/common"
	"github.com/noah-isme/pos-checkout/internal/obs"
)

// OutcomeRateLimited is the request outcome recorded for a refused request.
const OutcomeRateLimited = "rate_limited"

// Config sizes the sliding window: at most Max attempts per Key in Window.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ByClientIP keys the limit on the caller address, scoped by route prefix.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Handler guards checkout submission with the sliding window. A till that
// cannot reach Redis keeps selling: the request goes through and OnError is
// told.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil || h.Config.Max <= 0 || h.Config.Window <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			report(h.OnError, err)
			next.ServeHTTP(w, r)
			return
		}
		setWindowHeaders(w, int64(h.Config.Max), int64(remaining), reset)
		if !allowed {
			refuse(w, r, reset, "too many checkout attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func report(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}

func setWindowHeaders(w http.ResponseWriter, limit, remaining int64, reset time.Time) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(max(limit, 0), 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(remaining, 0), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

// refuse answers 429 with Retry-After rounded up to whole seconds.
func refuse(w http.ResponseWriter, r *http.Request, reset time.Time, message string) {
	wait := time.Until(reset)
	seconds := int((wait + time.Second - 1) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	obs.Annotate(r.Context(), OutcomeRateLimited, 0)
	common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", message, map[string]any{"retryAfterSeconds": seconds})
}
