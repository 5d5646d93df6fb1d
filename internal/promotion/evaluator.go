package promotion

import (
	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
)

// Offer is an upsell finding: adding ExtraQty units completes a promotion group.
type Offer struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	ExtraQty    int    `json:"extraQty"`
}

// Shortfall is a finding where promotional stock cannot cover a full group and
// NonPromoQty units will be charged at full price.
type Shortfall struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	NonPromoQty int    `json:"nonPromoQty"`
}

// FreeItem is a promotional giveaway line.
type FreeItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// FreeQuantity returns the number of free units earned by qty under rule.
func FreeQuantity(rule *catalog.PromotionRule, qty int) int {
	group := rule.GroupSize()
	if group == 0 || qty <= 0 {
		return 0
	}
	return (qty / group) * rule.FreeQuantity
}

// FindMissing returns every upsell offer, in cart order.
func FindMissing(items []cart.Item, idx *catalog.Index) []Offer {
	var offers []Offer
	for _, it := range items {
		product, ok := idx.ByID(it.ProductID)
		if !ok {
			continue
		}
		if offer, ok := missingFor(product, it.Quantity); ok {
			offers = append(offers, offer)
		}
	}
	return offers
}

// FindFirstMissing returns the first upsell offer in cart order.
func FindFirstMissing(items []cart.Item, idx *catalog.Index) (Offer, bool) {
	offers := FindMissing(items, idx)
	if len(offers) == 0 {
		return Offer{}, false
	}
	return offers[0], true
}

func missingFor(p catalog.Product, qty int) (Offer, bool) {
	rule := p.Promotion
	if !rule.Applicable() {
		return Offer{}, false
	}
	group := rule.GroupSize()
	remainder := qty % group
	if qty < rule.BuyQuantity || remainder == 0 {
		return Offer{}, false
	}
	needed := group - remainder
	if needed > rule.FreeQuantity {
		return Offer{}, false
	}
	if p.Stock-qty < needed {
		return Offer{}, false
	}
	return Offer{ProductID: p.ID, ProductName: p.Name, ExtraQty: needed}, true
}

// FindPartial returns the first shortfall in cart order.
func FindPartial(items []cart.Item, idx *catalog.Index) (Shortfall, bool) {
	for _, it := range items {
		product, ok := idx.ByID(it.ProductID)
		if !ok {
			continue
		}
		if s, ok := partialFor(product, it.Quantity); ok {
			return s, true
		}
	}
	return Shortfall{}, false
}

func partialFor(p catalog.Product, qty int) (Shortfall, bool) {
	rule := p.Promotion
	if !rule.Applicable() {
		return Shortfall{}, false
	}
	group := rule.GroupSize()
	remainder := qty % group
	if qty < rule.BuyQuantity || remainder == 0 {
		return Shortfall{}, false
	}
	required := qty + (group - remainder)
	if p.Stock >= required {
		return Shortfall{}, false
	}
	return Shortfall{ProductID: p.ID, ProductName: p.Name, NonPromoQty: remainder}, true
}

// FreeItems lists free units per line, skipping lines that earn none.
func FreeItems(items []cart.Item, idx *catalog.Index) []FreeItem {
	var out []FreeItem
	for _, it := range items {
		product, ok := idx.ByID(it.ProductID)
		if !ok {
			continue
		}
		free := FreeQuantity(product.Promotion, it.Quantity)
		if free <= 0 {
			continue
		}
		out = append(out, FreeItem{ProductID: it.ProductID, Name: it.Name, Quantity: free, UnitPrice: it.Price})
	}
	return out
}
