package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// IdempotencyHeader is the request header carrying the client-chosen key.
const IdempotencyHeader = "Idempotency-Key"

// Idem provides an Idempotency-Key middleware backed by Redis. A key is held
// for TTL once the wrapped handler succeeds; any non-2xx outcome releases it so
// the shopper can retry the same checkout.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(route, key string) string {
	sum := sha256.Sum256([]byte(route + "|" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware claims the Idempotency-Key for the route until TTL. A second
// request with a claimed key gets 409 without reaching next; responses are
// not stored. The claim is dropped when next does not answer 2xx.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		ctx := r.Context()
		key := hashKey(r.URL.Path, header)
		ok, err := i.R.SetNX(ctx, key, "locked", ttl).Result()
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("idempotency store unavailable")
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			if completed && rec.status < http.StatusMultipleChoices {
				return
			}
			if err := i.R.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("release idempotency key")
			}
		}()
		next.ServeHTTP(rec, r)
		completed = true
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}
