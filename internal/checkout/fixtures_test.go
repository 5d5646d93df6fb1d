package checkout_test

import (
	"context"
	"sync"

	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

var membership = pricing.Membership{RateBps: 3000, MaxDiscount: 8000}

func fixtureIndex() *catalog.Index {
	return catalog.NewIndex([]catalog.Product{
		{ID: "cola-promo", Name: "콜라", Price: 1000, Stock: 4, Promotion: &catalog.PromotionRule{Name: "탄산2+1", BuyQuantity: 2, FreeQuantity: 1}},
		{ID: "cola", Name: "콜라", Price: 1000, Stock: 10},
		{ID: "water", Name: "물", Price: 500, Stock: 5},
		{ID: "chips-promo", Name: "감자칩", Price: 1500, Stock: 10, Promotion: &catalog.PromotionRule{Name: "1+1", BuyQuantity: 1, FreeQuantity: 1}},
	})
}

type fakeCatalog struct {
	idx         *catalog.Index
	invalidated int
}

func (f *fakeCatalog) Snapshot(context.Context) *catalog.Index { return f.idx }
func (f *fakeCatalog) Invalidate(context.Context)              { f.invalidated++ }

type fakeOrders struct {
	mu         sync.Mutex
	submitted  []storefront.OrderRequest
	keys       []string
	previewed  int
	previews   []storefront.OrderRequest
	submitErr  error
	result     storefront.OrderResult
	preview    *pricing.Summary
	previewErr error
}

func (f *fakeOrders) SubmitOrder(_ context.Context, req storefront.OrderRequest, key string) (storefront.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	f.keys = append(f.keys, key)
	if f.submitErr != nil {
		return storefront.OrderResult{}, f.submitErr
	}
	return f.result, nil
}

func (f *fakeOrders) PreviewOrder(_ context.Context, req storefront.OrderRequest) (pricing.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previewed++
	f.previews = append(f.previews, req)
	if f.previewErr != nil {
		return pricing.Summary{}, f.previewErr
	}
	if f.preview == nil {
		return pricing.Summary{}, storefront.ErrPreviewUnsupported
	}
	return *f.preview, nil
}
