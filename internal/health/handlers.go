package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/pos-checkout/internal/common"
)

// ErrNotConfigured marks an optional dependency that is switched off. It is
// reported as "disabled" and does not fail readiness.
var ErrNotConfigured = errors.New("not configured")

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness, typically to drain traffic during shutdown.
func SetReady(v bool) {
	ready.Store(v)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingStorefront(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker           Checker
	StorefrontTimeout time.Duration
	RedisTimeout      time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dependencies unavailable", nil)
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"storefront": probeStatus(h.Checker.PingStorefront(ctx, withDefault(h.StorefrontTimeout, time.Second))),
		"redis":      probeStatus(h.Checker.PingRedis(ctx, withDefault(h.RedisTimeout, 300*time.Millisecond))),
	}
	code := http.StatusOK
	for _, v := range status {
		if v != "ok" && v != "disabled" {
			code = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, status)
}

func probeStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "disabled"
	default:
		return err.Error()
	}
}

func withDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
