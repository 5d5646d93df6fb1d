package checkout_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/checkout"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/promotion"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

func newService(orders *fakeOrders) (*checkout.Service, *fakeCatalog) {
	cat := &fakeCatalog{idx: fixtureIndex()}
	return &checkout.Service{Catalog: cat, Orders: orders, Membership: membership, Logger: zerolog.Nop()}, cat
}

func TestQuoteUsesLocalSummaryWithoutPreview(t *testing.T) {
	orders := &fakeOrders{}
	svc, _ := newService(orders)

	q, err := svc.Quote(context.Background(), []checkout.Line{{ProductID: "chips-promo", Quantity: 2}, {ProductID: "cola", Quantity: 1}}, checkout.Options{ApplyMembership: true})
	require.NoError(t, err)
	require.Equal(t, checkout.SourceLocal, q.SummarySource)
	require.Equal(t, []checkout.Rejection{{ProductID: "cola", Requested: 1, Accepted: 0, Reason: cart.ReasonLocked}}, q.Rejected)
	require.Equal(t, int64(3000), q.Summary.OriginalTotalAmount)
	require.Equal(t, int64(1500), q.Summary.PromotionDiscountAmount)
	require.Equal(t, int64(450), q.Summary.MembershipDiscountAmount)
	require.Equal(t, int64(1050), q.Summary.FinalTotalAmount)
	require.True(t, q.CanCheckout)
	require.Contains(t, q.ReceiptText, "=============증정===============")
	require.Equal(t, 1, orders.previewed)
}

func TestQuotePricesAcceptedOffersLikeFinalize(t *testing.T) {
	orders := &fakeOrders{result: storefront.OrderResult{OrderID: "ord-2"}}
	svc, _ := newService(orders)
	lines := []checkout.Line{{ProductID: "cola-promo", Quantity: 2}}
	opts := checkout.Options{AddMoreAll: checkout.Accepted}

	q, err := svc.Quote(context.Background(), lines, opts)
	require.NoError(t, err)
	require.Equal(t, []promotion.Offer{{ProductID: "cola-promo", ProductName: "콜라", ExtraQty: 1}}, q.Offers, "accepted offer still shown")
	require.Equal(t, pricing.Summary{TotalQuantity: 3, OriginalTotalAmount: 3000, PromotionDiscountAmount: 1000, FinalTotalAmount: 2000}, q.Summary)
	require.Equal(t, []promotion.FreeItem{{ProductID: "cola-promo", Name: "콜라", Quantity: 1, UnitPrice: 1000}}, q.FreeItems)
	require.Contains(t, q.ReceiptText, "=============증정===============")
	require.True(t, q.CanCheckout)

	out, err := svc.Finalize(context.Background(), lines, opts, "")
	require.NoError(t, err)
	require.Equal(t, q.Summary, out.Summary)
	require.Equal(t, q.ReceiptText, out.ReceiptText)

	require.Len(t, orders.previews, 1)
	require.Equal(t, orders.submitted[0], orders.previews[0], "preview and submission carry the same order")
}

func TestQuotePrefersPreviewSummary(t *testing.T) {
	preview := pricing.Summary{TotalQuantity: 1, OriginalTotalAmount: 500, MembershipDiscountAmount: 100, FinalTotalAmount: 400}
	svc, _ := newService(&fakeOrders{preview: &preview})

	q, err := svc.Quote(context.Background(), []checkout.Line{{ProductID: "water", Quantity: 1}}, checkout.Options{})
	require.NoError(t, err)
	require.Equal(t, checkout.SourcePreview, q.SummarySource)
	require.Equal(t, preview, q.Summary)
	require.Contains(t, q.ReceiptText, "결제금액                      400원")
}

func TestQuoteIgnoresFailingPreview(t *testing.T) {
	svc, _ := newService(&fakeOrders{previewErr: errors.New("boom")})
	q, err := svc.Quote(context.Background(), []checkout.Line{{ProductID: "water", Quantity: 1}}, checkout.Options{})
	require.NoError(t, err)
	require.Equal(t, checkout.SourceLocal, q.SummarySource)
	require.Equal(t, int64(500), q.Summary.FinalTotalAmount)
}

func TestFinalizeSubmitsResolvedOrder(t *testing.T) {
	orders := &fakeOrders{result: storefront.OrderResult{OrderID: "ord-1"}}
	svc, cat := newService(orders)

	out, err := svc.Finalize(context.Background(), []checkout.Line{{ProductID: "chips-promo", Quantity: 1}}, checkout.Options{
		ApplyMembership: true,
		AddMore:         map[string]checkout.Decision{"chips-promo": checkout.Accepted},
	}, "idem-1")
	require.NoError(t, err)
	require.Equal(t, checkout.StatusCompleted, out.Status)
	require.Equal(t, "ord-1", out.OrderID)
	require.Empty(t, out.Items)
	require.Equal(t, checkout.SourceLocal, out.SummarySource)
	require.Equal(t, int64(1050), out.Summary.FinalTotalAmount)
	require.Equal(t, 1, cat.invalidated)

	require.Len(t, orders.submitted, 1)
	req := orders.submitted[0]
	require.Equal(t, []cart.OrderLine{{ProductID: "chips-promo", Quantity: 2}}, req.Items)
	require.Equal(t, map[string]bool{"chips-promo": true}, req.AcceptAddMore)
	require.True(t, req.ApplyMembership)
	require.Nil(t, req.AcceptNonPromoPurchase)
	require.Equal(t, []string{"idem-1"}, orders.keys)
}

func TestFinalizePrefersAuthoritativeSummary(t *testing.T) {
	upstream := pricing.Summary{TotalQuantity: 2, OriginalTotalAmount: 1000, FinalTotalAmount: 1000}
	svc, _ := newService(&fakeOrders{result: storefront.OrderResult{Summary: &upstream}})

	out, err := svc.Finalize(context.Background(), []checkout.Line{{ProductID: "water", Quantity: 2}}, checkout.Options{}, "")
	require.NoError(t, err)
	require.Equal(t, checkout.SourceUpstream, out.SummarySource)
	require.Equal(t, upstream, out.Summary)
}

func TestFinalizeRequiresResolution(t *testing.T) {
	orders := &fakeOrders{}
	svc, _ := newService(orders)

	out, err := svc.Finalize(context.Background(), []checkout.Line{{ProductID: "cola-promo", Quantity: 4}}, checkout.Options{}, "")
	require.ErrorIs(t, err, checkout.ErrResolutionRequired)
	require.Equal(t, []cart.Item{{ProductID: "cola-promo", Name: "콜라", Price: 1000, Quantity: 4}}, out.Items)
	require.Empty(t, orders.submitted)
}

func TestFinalizeDeclinedAbortsWithoutSubmitting(t *testing.T) {
	orders := &fakeOrders{}
	svc, cat := newService(orders)

	out, err := svc.Finalize(context.Background(), []checkout.Line{{ProductID: "cola-promo", Quantity: 4}}, checkout.Options{NonPromoPurchase: checkout.Declined}, "")
	require.ErrorIs(t, err, checkout.ErrDeclined)
	require.Equal(t, checkout.StatusAborted, out.Status)
	require.Len(t, out.Items, 1)
	require.Empty(t, orders.submitted)
	require.Zero(t, cat.invalidated)
}

func TestFinalizeFailureKeepsCart(t *testing.T) {
	upstreamErr := &storefront.Error{Method: http.MethodPost, Path: "/api/orders", Status: http.StatusConflict, Message: "재고가 부족합니다"}
	orders := &fakeOrders{submitErr: upstreamErr}
	svc, cat := newService(orders)

	lines := []checkout.Line{{ProductID: "cola-promo", Quantity: 4}}
	out, err := svc.Finalize(context.Background(), lines, checkout.Options{NonPromoPurchase: checkout.Accepted}, "")
	var sfErr *storefront.Error
	require.ErrorAs(t, err, &sfErr)
	require.Equal(t, "재고가 부족합니다", sfErr.Message)
	require.Equal(t, []cart.Item{{ProductID: "cola-promo", Name: "콜라", Price: 1000, Quantity: 4}}, out.Items)
	require.Zero(t, cat.invalidated)

	accepted := true
	require.Equal(t, &accepted, orders.submitted[0].AcceptNonPromoPurchase)
}

func TestFinalizeEmptyAfterRejections(t *testing.T) {
	svc, _ := newService(&fakeOrders{})
	_, err := svc.Finalize(context.Background(), []checkout.Line{{ProductID: "cola", Quantity: 1}}, checkout.Options{}, "")
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
}
