package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// maxRetryAfter bounds how long an upstream Retry-After may hold a retry.
// Longer hints are ignored in favour of the normal backoff.
const maxRetryAfter = 2 * time.Second

// HTTPClient sends storefront calls with a per-attempt timeout, retries on
// transport errors and 5xx, and an optional breaker guarding every attempt.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// Fallback, when set, answers instead of the last error.
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do sends req until it gets a non-5xx answer or runs out of attempts. The
// body is replayed on each attempt. A 5xx on the last attempt is returned as
// a response so the caller can read the upstream message. A refusing breaker
// ends the loop with ErrOpenCircuit.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	httpClient := cl.client()
	attempts := max(cl.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := send(ctx, httpClient, req, body)
		healthy := err == nil && resp.StatusCode < http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, healthy)
		}
		if healthy {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else if attempt == attempts {
			return resp, nil
		} else {
			lastErr = errors.New(resp.Status)
		}
		if attempt == attempts {
			break
		}

		wait := cl.retryDelay(resp, attempt)
		drain(resp)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

// retryDelay honours a short Retry-After from the storefront, otherwise
// backs off exponentially.
func (cl HTTPClient) retryDelay(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			if d := time.Duration(secs) * time.Second; d <= maxRetryAfter {
				return d
			}
		}
	}
	return Backoff(cl.BaseBackoff, attempt, cl.Jitter)
}

// Backoff doubles base per attempt. jitterPct spreads the result by up to
// that fraction either way (0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

// client applies Timeout as the per-attempt limit. The limit is set on the
// http.Client rather than a request context so it also covers reading the body.
func (cl HTTPClient) client() *http.Client {
	if cl.Timeout <= 0 || cl.Client.Timeout > 0 {
		return cl.Client
	}
	copied := *cl.Client
	copied.Timeout = cl.Timeout
	return &copied
}

// rewindable returns a body factory for req, buffering the body once when
// the request cannot produce it again by itself.
func rewindable(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return req.GetBody, nil
}

func send(ctx context.Context, c *http.Client, req *http.Request, body func() (io.ReadCloser, error)) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if body != nil {
		rc, err := body()
		if err != nil {
			return nil, err
		}
		attempt.Body = rc
	}
	return c.Do(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
