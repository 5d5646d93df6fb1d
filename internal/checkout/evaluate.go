package checkout

import (
	"errors"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/promotion"
	"github.com/noah-isme/pos-checkout/internal/receipt"
)

var (
	// ErrResolutionRequired means a promotion shortfall has no answer yet.
	ErrResolutionRequired = errors.New("checkout: promotion shortfall requires a decision")
	// ErrDeclined means the shopper declined the shortfall; nothing is submitted.
	ErrDeclined = errors.New("checkout: shopper declined non-promotional purchase")
	// ErrEmptyCart is returned when finalizing a cart with no lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
)

// Evaluation is everything the shopper needs to see before paying.
type Evaluation struct {
	Items     []cart.Item          `json:"items"`
	Offers    []promotion.Offer    `json:"offers"`
	Shortfall *promotion.Shortfall `json:"shortfall"`
	FreeItems []promotion.FreeItem `json:"freeItems"`
	Summary   pricing.Summary      `json:"summary"`
	Receipt   receipt.Receipt      `json:"-"`
	Options   Options              `json:"options"`
}

// NeedsResolution reports whether finalizing would fail with ErrResolutionRequired.
func (e Evaluation) NeedsResolution() bool {
	return e.Shortfall != nil && e.Options.NonPromoPurchase == Unset
}

// Evaluate reports the promotion findings for ledger and prices the order it
// would become: add-more offers already accepted in opts are applied before the
// shortfall scan, free items and summary. Offers are always those of ledger as
// given, so accepted prompts stay visible.
func Evaluate(idx *catalog.Index, ledger cart.Ledger, opts Options, m pricing.Membership) Evaluation {
	offers := promotion.FindMissing(ledger.Items(), idx)
	items := applyOffers(idx, ledger, offers, opts).Items()
	m.Apply = opts.ApplyMembership
	ev := Evaluation{
		Items:     items,
		Offers:    offers,
		FreeItems: promotion.FreeItems(items, idx),
		Summary:   pricing.Calculate(items, idx, m),
		Options:   opts,
	}
	if s, ok := promotion.FindPartial(items, idx); ok {
		ev.Shortfall = &s
	}
	if ev.Offers == nil {
		ev.Offers = []promotion.Offer{}
	}
	if ev.FreeItems == nil {
		ev.FreeItems = []promotion.FreeItem{}
	}
	ev.Receipt = receipt.Build(items, ev.FreeItems, ev.Summary)
	return ev
}

// ApplyAcceptedOffers adds the extra units of every offer accepted in opts,
// subject to the usual stock and lock guards. Unanswered offers count as
// declined. The input ledger is never modified.
func ApplyAcceptedOffers(idx *catalog.Index, ledger cart.Ledger, opts Options) cart.Ledger {
	return applyOffers(idx, ledger, promotion.FindMissing(ledger.Items(), idx), opts)
}

func applyOffers(idx *catalog.Index, ledger cart.Ledger, offers []promotion.Offer, opts Options) cart.Ledger {
	out := ledger
	for _, offer := range offers {
		if opts.AddMoreFor(offer.ProductID) != Accepted {
			continue
		}
		for i := 0; i < offer.ExtraQty; i++ {
			out = out.Increase(idx, offer.ProductID)
		}
	}
	return out
}

// Resolve applies the shopper's advisory answers to ledger and returns the
// order that would be submitted. A shortfall with no answer yields
// ErrResolutionRequired; a declined one yields ErrDeclined.
func Resolve(idx *catalog.Index, ledger cart.Ledger, opts Options) (cart.Ledger, error) {
	if ledger.IsEmpty() {
		return ledger, ErrEmptyCart
	}
	resolved := ApplyAcceptedOffers(idx, ledger, opts)
	if _, ok := promotion.FindPartial(resolved.Items(), idx); ok {
		switch opts.NonPromoPurchase {
		case Unset:
			return ledger, ErrResolutionRequired
		case Declined:
			return ledger, ErrDeclined
		}
	}
	return resolved, nil
}
