package resilience

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// BreakerSet keeps one breaker per operation against a single upstream, so a
// failing order endpoint does not cut off catalog reads. Breakers are labelled
// "<upstream>.<operation>".
type BreakerSet struct {
	upstream string
	cfg      BreakerConfig
	logger   zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet builds an empty set for upstream.
func NewBreakerSet(upstream string, cfg BreakerConfig, logger zerolog.Logger) *BreakerSet {
	return &BreakerSet{
		upstream: strings.TrimSpace(upstream),
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for operation, creating it on first use.
func (s *BreakerSet) For(operation string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[operation]; ok {
		return b
	}
	target := operation
	if s.upstream != "" {
		target = s.upstream + "." + operation
	}
	b := newBreaker(s.cfg, target, s.logger)
	s.breakers[operation] = b
	return b
}

// OpenOperations lists the operations whose breaker is currently open, sorted.
func (s *BreakerSet) OpenOperations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for op, b := range s.breakers {
		if b.State() == Open {
			out = append(out, op)
		}
	}
	sort.Strings(out)
	return out
}
