package catalog

// Default group parameters applied when the upstream omits them.
const (
	DefaultBuyQuantity  = 2
	DefaultFreeQuantity = 1
)

// PromotionRule describes a "buy N get M free" promotion attached to a product.
type PromotionRule struct {
	Name         string `json:"name"`
	BuyQuantity  int    `json:"buyQuantity"`
	FreeQuantity int    `json:"freeQuantity"`
}

// Applicable reports whether the rule carries usable group parameters.
// Inert rules are ignored by every promotion calculation.
func (r *PromotionRule) Applicable() bool {
	return r != nil && r.BuyQuantity > 0 && r.FreeQuantity > 0
}

// GroupSize returns buy + free, or zero for an inert rule.
func (r *PromotionRule) GroupSize() int {
	if !r.Applicable() {
		return 0
	}
	return r.BuyQuantity + r.FreeQuantity
}

// Product is an immutable catalog snapshot entry.
type Product struct {
	ID        string         `json:"productId"`
	Name      string         `json:"name"`
	Price     int64          `json:"price"`
	Stock     int            `json:"stock"`
	Promotion *PromotionRule `json:"promotion,omitempty"`
}

// HasPromotion reports whether the product carries an applicable promotion.
func (p Product) HasPromotion() bool {
	return p.Promotion.Applicable()
}

// Index provides lookups over a catalog snapshot. It is safe for concurrent reads.
type Index struct {
	products []Product
	byID     map[string]int
	byName   map[string][]int
}

// NewIndex builds an Index. Later duplicates of a product id are ignored.
func NewIndex(products []Product) *Index {
	idx := &Index{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
		byName:   make(map[string][]int),
	}
	for _, p := range products {
		if _, dup := idx.byID[p.ID]; dup {
			continue
		}
		pos := len(idx.products)
		idx.products = append(idx.products, p)
		idx.byID[p.ID] = pos
		idx.byName[p.Name] = append(idx.byName[p.Name], pos)
	}
	return idx
}

// ByID returns the product with the given id.
func (i *Index) ByID(id string) (Product, bool) {
	if i == nil {
		return Product{}, false
	}
	pos, ok := i.byID[id]
	if !ok {
		return Product{}, false
	}
	return i.products[pos], true
}

// ByName returns every variant sharing name, in catalog order.
func (i *Index) ByName(name string) []Product {
	if i == nil {
		return nil
	}
	positions := i.byName[name]
	out := make([]Product, 0, len(positions))
	for _, pos := range positions {
		out = append(out, i.products[pos])
	}
	return out
}

// PromotionalSibling returns the first same-name product with an applicable
// promotion, other than p itself.
func (i *Index) PromotionalSibling(p Product) (Product, bool) {
	for _, candidate := range i.ByName(p.Name) {
		if candidate.ID == p.ID {
			continue
		}
		if candidate.HasPromotion() {
			return candidate, true
		}
	}
	return Product{}, false
}

// Products returns a copy of the snapshot in catalog order.
func (i *Index) Products() []Product {
	if i == nil {
		return nil
	}
	return append([]Product(nil), i.products...)
}

// Len returns the number of indexed products.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.products)
}
