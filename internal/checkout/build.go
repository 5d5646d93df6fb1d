package checkout

import (
	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
)

// Line is a requested product quantity.
type Line struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"min=1,max=999"`
}

// Rejection reports units the ledger refused to take.
type Rejection struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Accepted  int    `json:"accepted"`
	Reason    string `json:"reason"`
}

// BuildLedger replays requested lines through the ledger guards one unit at
// a time. Promotional lines are replayed first so a plain twin is judged
// against the promotional stock the same request already consumed. The
// returned ledger keeps the request order.
func BuildLedger(idx *catalog.Index, lines []Line) (cart.Ledger, []Rejection) {
	merged, order := mergeLines(lines)

	ledger := cart.New()
	accepted := make(map[string]int, len(order))
	refused := make(map[string]string)
	replay := func(promotional bool) {
		for _, id := range order {
			if product, _ := idx.ByID(id); product.HasPromotion() != promotional {
				continue
			}
			for i := 0; i < merged[id]; i++ {
				next := ledger.Add(idx, id)
				if next.Quantity(id) == ledger.Quantity(id) {
					refused[id] = ledger.Availability(idx, id).Reason
					break
				}
				ledger = next
			}
			accepted[id] = ledger.Quantity(id)
		}
	}
	replay(true)
	replay(false)

	items := make([]cart.Item, 0, len(order))
	var rejected []Rejection
	for _, id := range order {
		if it, ok := ledger.Item(id); ok {
			items = append(items, it)
		}
		if reason, ok := refused[id]; ok {
			rejected = append(rejected, Rejection{ProductID: id, Requested: merged[id], Accepted: accepted[id], Reason: reason})
		}
	}
	return cart.FromItems(items...), rejected
}

func mergeLines(lines []Line) (map[string]int, []string) {
	merged := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		if _, seen := merged[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		merged[l.ProductID] += l.Quantity
	}
	return merged, order
}
