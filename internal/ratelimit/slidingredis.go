package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript trims the window, then records the attempt only when there is
// room for it. Rejected checkout attempts never extend a caller's lockout.
// Returns {admitted, count, oldest score}.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  admitted = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
  first = tonumber(oldest[2])
end
return {admitted, count, first}
`)

// Limiter is a sliding window limiter over Redis sorted sets, scored in
// milliseconds.
type Limiter struct {
	Client *redis.Client
	Prefix string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Allow admits one attempt for key when fewer than max attempts landed in the
// trailing window. reset is when the oldest admitted attempt leaves the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	member := fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.NewString())
	res, err := admitScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), window.Milliseconds(), max, member).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %s: unexpected reply %v", key, res)
	}

	remaining = max - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	reset = time.UnixMilli(res[2]).Add(window)
	return res[0] == 1, remaining, reset, nil
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
