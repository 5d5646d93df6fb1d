package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Upstream payloads have used several names for the promotion quantities over time.
var (
	buyQuantityKeys  = []string{"buyQuantity", "buyQty", "buy", "requiredQuantity"}
	freeQuantityKeys = []string{"freeQuantity", "getQuantity", "freeQty", "get", "free"}
)

type envelope struct {
	Result json.RawMessage `json:"result"`
}

type pagedResult struct {
	Data []json.RawMessage `json:"data"`
}

type rawProduct struct {
	ProductID               json.RawMessage `json:"productId"`
	Name                    json.RawMessage `json:"name"`
	Price                   json.RawMessage `json:"price"`
	Stock                   json.RawMessage `json:"stock"`
	PromotionSearchResponse json.RawMessage `json:"promotionSearchResponse"`
	Promotion               json.RawMessage `json:"promotion"`
}

// Skipped is an upstream entry that could not be decoded as a product.
type Skipped struct {
	Index int
	Err   error
}

// Normalize decodes an upstream product list response into canonical products.
// Both {"result": [...]} and {"result": {"data": [...]}} envelopes are accepted;
// anything else yields an empty list. Undecodable entries are dropped.
func Normalize(raw []byte) ([]Product, error) {
	products, _, err := NormalizeReport(raw)
	return products, err
}

// NormalizeReport is Normalize that also reports the entries it dropped. Only a
// broken envelope is an error; a bad entry never discards the rest of the list.
func NormalizeReport(raw []byte) ([]Product, []Skipped, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []Product{}, nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("decode product envelope: %w", err)
	}
	items, err := resultItems(env.Result)
	if err != nil {
		return nil, nil, err
	}
	products := make([]Product, 0, len(items))
	var skipped []Skipped
	for i, item := range items {
		p, ok, err := normalizeProduct(item)
		if err != nil {
			skipped = append(skipped, Skipped{Index: i, Err: err})
			continue
		}
		if ok {
			products = append(products, p)
		}
	}
	return products, skipped, nil
}

func resultItems(result json.RawMessage) ([]json.RawMessage, error) {
	result = bytes.TrimSpace(result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, nil
	}
	switch result[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(result, &items); err != nil {
			return nil, fmt.Errorf("decode product list: %w", err)
		}
		return items, nil
	case '{':
		var paged pagedResult
		if err := json.Unmarshal(result, &paged); err != nil {
			return nil, fmt.Errorf("decode paged product list: %w", err)
		}
		return paged.Data, nil
	default:
		return nil, nil
	}
}

func normalizeProduct(raw json.RawMessage) (Product, bool, error) {
	var rp rawProduct
	if err := json.Unmarshal(raw, &rp); err != nil {
		return Product{}, false, fmt.Errorf("decode product: %w", err)
	}
	id := flexString(rp.ProductID)
	if id == "" {
		return Product{}, false, nil
	}
	p := Product{
		ID:    id,
		Name:  flexString(rp.Name),
		Price: nonNegative(numberValue(rp.Price)),
		Stock: int(nonNegative(numberValue(rp.Stock))),
	}
	promo := rp.PromotionSearchResponse
	if isEmptyJSON(promo) {
		promo = rp.Promotion
	}
	p.Promotion = normalizePromotion(promo)
	return p, true, nil
}

// normalizePromotion returns nil for anything that is not a usable rule object.
func normalizePromotion(raw json.RawMessage) *PromotionRule {
	if isEmptyJSON(raw) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	buy, ok := quantityField(fields, buyQuantityKeys, DefaultBuyQuantity)
	if !ok {
		return nil
	}
	free, ok := quantityField(fields, freeQuantityKeys, DefaultFreeQuantity)
	if !ok {
		return nil
	}
	return &PromotionRule{Name: promotionName(fields), BuyQuantity: buy, FreeQuantity: free}
}

func promotionName(fields map[string]json.RawMessage) string {
	for _, key := range []string{"name", "promotionName"} {
		if v, ok := fields[key]; ok {
			if name := flexString(v); name != "" {
				return name
			}
		}
	}
	return ""
}

// quantityField returns the first alias present. A present but non-positive or
// non-numeric value marks the rule inert.
func quantityField(fields map[string]json.RawMessage, keys []string, fallback int) (int, bool) {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || isEmptyJSON(v) {
			continue
		}
		n, ok := parseNumber(flexString(v))
		if !ok || n <= 0 {
			return 0, false
		}
		return int(n), true
	}
	return fallback, true
}

// flexString reads a string or a bare scalar. Objects and arrays read as "".
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isEmptyJSON(raw) || raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func numberValue(raw json.RawMessage) int64 {
	v, _ := parseNumber(flexString(raw))
	return v
}

func parseNumber(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n := json.Number(s)
	if v, err := n.Int64(); err == nil {
		return v, true
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
