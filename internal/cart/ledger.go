package cart

import (
	"github.com/noah-isme/pos-checkout/internal/catalog"
)

// Item is a cart line. Price is captured when the product is first added.
type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns price * quantity.
func (i Item) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// OrderLine is the product/quantity pair sent to order submission.
type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Ledger maps product ids to cart items. It is a value: every mutation returns
// a new Ledger and leaves the receiver untouched, so snapshots can be shared
// freely between readers.
//
// Insertion order is kept and drives every scan that reports a first match.
type Ledger struct {
	items map[string]Item
	order []string
}

// New returns an empty ledger.
func New() Ledger {
	return Ledger{}
}

// FromItems restores a ledger snapshot as-is, without stock checks. Items with
// a non-positive quantity are dropped and duplicate ids are merged.
func FromItems(items ...Item) Ledger {
	l := Ledger{items: make(map[string]Item, len(items))}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if existing, ok := l.items[it.ProductID]; ok {
			existing.Quantity += it.Quantity
			l.items[it.ProductID] = existing
			continue
		}
		l.items[it.ProductID] = it
		l.order = append(l.order, it.ProductID)
	}
	return l
}

// Quantity returns the cart quantity for productID, zero when absent.
func (l Ledger) Quantity(productID string) int {
	return l.items[productID].Quantity
}

// Item returns the line for productID.
func (l Ledger) Item(productID string) (Item, bool) {
	it, ok := l.items[productID]
	return it, ok
}

// Items returns the lines in insertion order.
func (l Ledger) Items() []Item {
	out := make([]Item, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.items[id])
	}
	return out
}

// Len returns the number of distinct products in the cart.
func (l Ledger) Len() int {
	return len(l.order)
}

// IsEmpty reports whether the cart has no lines.
func (l Ledger) IsEmpty() bool {
	return len(l.order) == 0
}

// TotalQuantity sums quantities across lines.
func (l Ledger) TotalQuantity() int {
	total := 0
	for _, it := range l.items {
		total += it.Quantity
	}
	return total
}

// Subtotal sums price * quantity across lines.
func (l Ledger) Subtotal() int64 {
	var total int64
	for _, it := range l.items {
		total += it.Subtotal()
	}
	return total
}

// OrderLines returns the submission payload in insertion order.
func (l Ledger) OrderLines() []OrderLine {
	out := make([]OrderLine, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, OrderLine{ProductID: id, Quantity: l.items[id].Quantity})
	}
	return out
}

// Add puts one unit of productID in the cart. Unknown, sold-out and locked
// products are refused and the ledger is returned unchanged.
func (l Ledger) Add(idx *catalog.Index, productID string) Ledger {
	product, ok := idx.ByID(productID)
	if !ok {
		return l
	}
	if !l.Availability(idx, productID).Purchasable {
		return l
	}
	next := l.clone()
	it, exists := next.items[productID]
	if !exists {
		it = Item{ProductID: product.ID, Name: product.Name, Price: product.Price}
		next.order = append(next.order, productID)
	}
	it.Quantity++
	next.items[productID] = it
	return next
}

// Increase adds one unit to an existing line under the same guards as Add.
func (l Ledger) Increase(idx *catalog.Index, productID string) Ledger {
	if _, ok := l.items[productID]; !ok {
		return l
	}
	return l.Add(idx, productID)
}

// Decrease removes one unit, dropping the line when it reaches zero.
func (l Ledger) Decrease(productID string) Ledger {
	it, ok := l.items[productID]
	if !ok {
		return l
	}
	if it.Quantity-1 <= 0 {
		return l.Remove(productID)
	}
	next := l.clone()
	it.Quantity--
	next.items[productID] = it
	return next
}

// Remove drops the line for productID.
func (l Ledger) Remove(productID string) Ledger {
	if _, ok := l.items[productID]; !ok {
		return l
	}
	next := Ledger{
		items: make(map[string]Item, len(l.items)),
		order: make([]string, 0, len(l.order)),
	}
	for _, id := range l.order {
		if id == productID {
			continue
		}
		next.items[id] = l.items[id]
		next.order = append(next.order, id)
	}
	return next
}

// Clear returns an empty ledger.
func (l Ledger) Clear() Ledger {
	return New()
}

func (l Ledger) clone() Ledger {
	next := Ledger{
		items: make(map[string]Item, len(l.items)+1),
		order: make([]string, len(l.order), len(l.order)+1),
	}
	for id, it := range l.items {
		next.items[id] = it
	}
	copy(next.order, l.order)
	return next
}

// Equal reports whether both ledgers hold the same lines in the same order.
func (l Ledger) Equal(other Ledger) bool {
	if len(l.order) != len(other.order) {
		return false
	}
	for i, id := range l.order {
		if other.order[i] != id || l.items[id] != other.items[id] {
			return false
		}
	}
	return true
}
