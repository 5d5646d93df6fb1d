package obs

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Checkout is what a handler learned about the request it served: the
// checkout outcome and the cart size. The request middleware report it in the
// access log, the request counter and the server span.
type Checkout struct {
	mu      sync.Mutex
	outcome string
	lines   int
}

type checkoutKey struct{}

// Annotate records the checkout outcome on the request context. It is a no-op
// when no instrumenting middleware is installed.
func Annotate(ctx context.Context, outcome string, lines int) {
	c, _ := ctx.Value(checkoutKey{}).(*Checkout)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.outcome = outcome
	c.lines = lines
	c.mu.Unlock()
}

func (c *Checkout) read() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome, c.lines
}

// withCheckout returns r carrying a Checkout, reusing one set by an outer
// middleware so all layers see the same annotation.
func withCheckout(r *http.Request) (*http.Request, *Checkout) {
	if c, ok := r.Context().Value(checkoutKey{}).(*Checkout); ok {
		return r, c
	}
	c := &Checkout{}
	return r.WithContext(context.WithValue(r.Context(), checkoutKey{}, c)), c
}

// routeOf returns the matched chi pattern. Call it after the router ran: the
// pattern is only complete once every sub-router has matched.
func routeOf(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}
