package pricing

import (
	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/promotion"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Line describes a line item used for pricing calculation.
type Line struct {
	Qty       int
	UnitPrice Money
	FreeQty   int
}

// Membership configures the membership discount. RateBps is expressed in basis
// points (3000 == 30%). MaxDiscount caps the discount when positive.
type Membership struct {
	Apply       bool
	RateBps     int
	MaxDiscount Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	TotalQuantity            int   `json:"totalQuantity"`
	OriginalTotalAmount      Money `json:"originalTotalAmount"`
	PromotionDiscountAmount  Money `json:"promotionDiscountAmount"`
	MembershipDiscountAmount Money `json:"membershipDiscountAmount"`
	FinalTotalAmount         Money `json:"finalTotalAmount"`
}

// Consistent reports whether the summary satisfies
// final = original - promotion - membership with every amount non-negative.
func (s Summary) Consistent() bool {
	if s.OriginalTotalAmount < 0 || s.PromotionDiscountAmount < 0 || s.MembershipDiscountAmount < 0 || s.FinalTotalAmount < 0 {
		return false
	}
	return s.OriginalTotalAmount-s.PromotionDiscountAmount-s.MembershipDiscountAmount == s.FinalTotalAmount
}

// Calculate prices the cart lines against the catalog's promotion rules.
func Calculate(items []cart.Item, idx *catalog.Index, membership Membership) Summary {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		line := Line{Qty: it.Quantity, UnitPrice: it.Price}
		if product, ok := idx.ByID(it.ProductID); ok {
			line.FreeQty = promotion.FreeQuantity(product.Promotion, it.Quantity)
		}
		lines = append(lines, line)
	}
	return Compute(lines, membership)
}

// Compute calculates totals for already-resolved lines.
func Compute(lines []Line, membership Membership) Summary {
	var (
		qty      int
		original Money
		promo    Money
		nonPromo Money
	)
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		free := l.FreeQty
		if free < 0 {
			free = 0
		}
		if free > l.Qty {
			free = l.Qty
		}
		unit := l.UnitPrice
		if unit < 0 {
			unit = 0
		}
		qty += l.Qty
		original += Money(l.Qty) * unit
		promo += Money(free) * unit
		nonPromo += Money(l.Qty-free) * unit
	}

	var member Money
	if membership.Apply {
		member = MembershipDiscount(nonPromo, membership)
	}
	final := original - promo - member
	if final < 0 {
		member += final
		if member < 0 {
			member = 0
		}
		final = 0
	}
	return Summary{
		TotalQuantity:            qty,
		OriginalTotalAmount:      original,
		PromotionDiscountAmount:  promo,
		MembershipDiscountAmount: member,
		FinalTotalAmount:         final,
	}
}

// MembershipDiscount applies the membership rate to eligible spend, truncating
// to whole minor units and honouring the cap.
func MembershipDiscount(eligible Money, m Membership) Money {
	if eligible <= 0 || m.RateBps <= 0 {
		return 0
	}
	discount := (eligible * Money(m.RateBps)) / 10000
	if m.MaxDiscount > 0 && discount > m.MaxDiscount {
		discount = m.MaxDiscount
	}
	if discount > eligible {
		discount = eligible
	}
	return discount
}
