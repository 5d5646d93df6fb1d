package cart

import "github.com/noah-isme/pos-checkout/internal/catalog"

// Reasons a product cannot be added.
const (
	ReasonUnknown = "unknown_product"
	ReasonSoldOut = "sold_out"
	ReasonLocked  = "locked"
)

// Availability describes whether a product can currently be added.
type Availability struct {
	Purchasable    bool   `json:"purchasable"`
	Reason         string `json:"reason,omitempty"`
	RemainingStock int    `json:"remainingStock"`
}

// RemainingStock returns product stock minus the quantity already in the cart.
func (l Ledger) RemainingStock(p catalog.Product) int {
	return p.Stock - l.Quantity(p.ID)
}

// Availability evaluates the stock guard and the promotional lock for productID.
func (l Ledger) Availability(idx *catalog.Index, productID string) Availability {
	product, ok := idx.ByID(productID)
	if !ok {
		return Availability{Reason: ReasonUnknown}
	}
	remaining := l.RemainingStock(product)
	if remaining < 0 {
		remaining = 0
	}
	if remaining <= 0 {
		return Availability{Reason: ReasonSoldOut, RemainingStock: remaining}
	}
	if l.Locked(idx, product) {
		return Availability{Reason: ReasonLocked, RemainingStock: remaining}
	}
	return Availability{Purchasable: true, RemainingStock: remaining}
}

// Locked reports whether a plain product must not be sold because its
// promotional same-name sibling still has stock left.
func (l Ledger) Locked(idx *catalog.Index, p catalog.Product) bool {
	if p.HasPromotion() {
		return false
	}
	sibling, ok := idx.PromotionalSibling(p)
	if !ok {
		return false
	}
	return l.RemainingStock(sibling) > 0
}
