package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker state. The numeric value is exported as the state gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes when a breaker opens and how long it stays open.
type BreakerConfig struct {
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MinRequests <= 0 {
		c.MinRequests = 1
	}
	switch {
	case c.FailureRatio <= 0:
		c.FailureRatio = 0.5
	case c.FailureRatio > 1:
		c.FailureRatio = 1
	}
	if c.OpenFor <= 0 {
		c.OpenFor = 30 * time.Second
	}
	return c
}

type tally struct {
	ok     int
	failed int
}

func (t tally) total() int { return t.ok + t.failed }

// halve keeps the ratio while bounding the counters.
func (t tally) halve() tally {
	return tally{ok: (t.ok + 1) / 2, failed: (t.failed + 1) / 2}
}

// Breaker opens once the failure ratio over at least MinRequests outcomes
// reaches FailureRatio. After OpenFor a single trial request is let through; its
// outcome closes or reopens the breaker.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	window   tally
	openedAt time.Time
	probing  bool
	target   string
	logger   zerolog.Logger
}

// NewBreaker builds a breaker with the given thresholds.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	return newBreaker(BreakerConfig{MinRequests: minRequests, FailureRatio: failureRatio, OpenFor: openFor}, "", zerolog.Nop())
}

func newBreaker(cfg BreakerConfig, target string, logger zerolog.Logger) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults(), target: strings.TrimSpace(target), logger: logger}
	if b.target != "" {
		b.publishState()
	}
	return b
}

// Allow reports whether a request may go out now.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.moveTo(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of a request admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
		return
	}

	if success {
		b.window.ok++
	} else {
		b.window.failed++
	}
	total := b.window.total()
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.window.failed)/float64(total) >= b.cfg.FailureRatio {
		b.moveTo(ctx, Open)
		return
	}
	if total > 2*b.cfg.MinRequests {
		b.window = b.window.halve()
	}
}

// State returns the current state. An open breaker past its cool-off still
// reports Open until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Target is the label used for logs and metrics, "default" when unset.
func (b *Breaker) Target() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

// WithTarget names the upstream the breaker guards.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishState()
	return b
}

// WithLogger sets the logger used for transitions outside a request context.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.window = tally{}
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishState()
	if prev != next {
		b.announce(ctx, prev, next)
	}
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.Target()).Set(float64(b.state))
	}
}

func (b *Breaker) announce(ctx context.Context, from, to State) {
	target := b.Target()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}

	logger := b.logger
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
		logger = *ctxLogger
	}
	evt := logger.Info().Str("target", target).Str("from_state", from.String()).Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("upstream breaker transition")
}
