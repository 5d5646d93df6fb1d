package checkout

import (
	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/pricing"
)

// Session is one shopper's in-memory checkout: a catalog snapshot, a ledger
// and the current options. Mutations that change the cart reset the advisory
// answers. A Session is not safe for concurrent use.
type Session struct {
	Catalog    *catalog.Index
	Ledger     cart.Ledger
	Options    Options
	Membership pricing.Membership
}

// NewSession starts an empty session over idx.
func NewSession(idx *catalog.Index, m pricing.Membership) *Session {
	return &Session{Catalog: idx, Ledger: cart.New(), Membership: m}
}

func (s *Session) apply(next cart.Ledger) bool {
	if next.Equal(s.Ledger) {
		return false
	}
	s.Ledger = next
	s.Options = s.Options.Reset()
	return true
}

// Add adds one unit of productID; false when the guard refused it.
func (s *Session) Add(productID string) bool {
	return s.apply(s.Ledger.Add(s.Catalog, productID))
}

// Increase adds one unit to an existing line.
func (s *Session) Increase(productID string) bool {
	return s.apply(s.Ledger.Increase(s.Catalog, productID))
}

// Decrease removes one unit.
func (s *Session) Decrease(productID string) bool {
	return s.apply(s.Ledger.Decrease(productID))
}

// Remove drops the line for productID.
func (s *Session) Remove(productID string) bool {
	return s.apply(s.Ledger.Remove(productID))
}

// SetMembership toggles the membership discount without touching other answers.
func (s *Session) SetMembership(apply bool) {
	s.Options.ApplyMembership = apply
}

// AnswerAddMore records the decision for one offer. The answers map is
// replaced, never written in place, so earlier Evaluations keep their options.
func (s *Session) AnswerAddMore(productID string, d Decision) {
	next := make(map[string]Decision, len(s.Options.AddMore)+1)
	for id, prev := range s.Options.AddMore {
		next[id] = prev
	}
	next[productID] = d
	s.Options.AddMore = next
}

// AnswerNonPromoPurchase records the decision for the shortfall.
func (s *Session) AnswerNonPromoPurchase(d Decision) {
	s.Options.NonPromoPurchase = d
}

// Evaluate prices the session as it stands.
func (s *Session) Evaluate() Evaluation {
	return Evaluate(s.Catalog, s.Ledger, s.Options, s.Membership)
}

// Complete empties the cart after a confirmed order.
func (s *Session) Complete() {
	s.Ledger = s.Ledger.Clear()
	s.Options = s.Options.Reset()
}
