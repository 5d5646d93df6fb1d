package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/obs"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/promotion"
	"github.com/noah-isme/pos-checkout/internal/receipt"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

// Finalize outcomes.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Request outcomes reported to logs, metrics and traces, next to the
// Finalize statuses above.
const (
	OutcomeReady              = "ready"
	OutcomeResolutionRequired = "resolution_required"
	OutcomeEmpty              = "empty"
	OutcomeUpstreamError      = "upstream_error"
	OutcomeFailed             = "failed"
)

// Summary sources reported with an evaluation.
const (
	SourceLocal    = "local"
	SourcePreview  = "preview"
	SourceUpstream = "upstream"
)

// CatalogProvider supplies catalog snapshots.
type CatalogProvider interface {
	Snapshot(ctx context.Context) *catalog.Index
	Invalidate(ctx context.Context)
}

// OrderGateway submits and previews orders.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, req storefront.OrderRequest, key string) (storefront.OrderResult, error)
	PreviewOrder(ctx context.Context, req storefront.OrderRequest) (pricing.Summary, error)
}

// Service orchestrates evaluation and order submission.
type Service struct {
	Catalog    CatalogProvider
	Orders     OrderGateway
	Membership pricing.Membership
	Logger     zerolog.Logger
}

// Quote is an evaluation together with how the request was replayed.
type Quote struct {
	Evaluation
	Rejected      []Rejection `json:"rejected"`
	SummarySource string      `json:"summarySource"`
	ReceiptText   string      `json:"receipt"`
	CanCheckout   bool        `json:"canCheckout"`
}

// Outcome is the result of Finalize. Items is the cart after the attempt:
// empty on completion, untouched otherwise.
type Outcome struct {
	Status        string          `json:"status"`
	OrderID       string          `json:"orderId,omitempty"`
	Summary       pricing.Summary `json:"summary"`
	SummarySource string          `json:"summarySource"`
	ReceiptText   string          `json:"receipt,omitempty"`
	Items         []cart.Item     `json:"items"`
}

// Quote evaluates requested lines against a fresh catalog snapshot, priced
// with the offers already accepted. When the storefront offers a preview its
// summary replaces the local one.
func (s *Service) Quote(ctx context.Context, lines []Line, opts Options) (Quote, error) {
	idx := s.Catalog.Snapshot(ctx)
	ledger, rejected := BuildLedger(idx, lines)
	ev := Evaluate(idx, ledger, opts, s.Membership)
	priced := ApplyAcceptedOffers(idx, ledger, opts)
	observeFindings(ev)
	obs.IncCounter(obs.CheckoutEvaluationsTotal, "evaluate")

	q := Quote{Evaluation: ev, Rejected: rejected, SummarySource: SourceLocal, CanCheckout: !ledger.IsEmpty() && !ev.NeedsResolution()}
	if q.Rejected == nil {
		q.Rejected = []Rejection{}
	}
	if s.Orders != nil && !ledger.IsEmpty() {
		summary, err := s.Orders.PreviewOrder(ctx, orderRequest(priced, opts, ev.Offers))
		switch {
		case err == nil && summary.Consistent():
			q.Summary = summary
			q.Receipt.Summary = summary
			q.SummarySource = SourcePreview
		case err == nil:
			s.Logger.Warn().Interface("summary", summary).Msg("inconsistent preview summary ignored")
		case !errors.Is(err, storefront.ErrPreviewUnsupported):
			s.Logger.Warn().Err(err).Msg("order preview failed, using local summary")
		}
	}
	q.ReceiptText = receipt.Render(q.Receipt)
	return q, nil
}

// Finalize resolves the shopper's answers and submits the order once. The
// returned error is ErrResolutionRequired, ErrDeclined, ErrEmptyCart or a
// submission failure; on ErrDeclined the outcome is an aborted checkout.
func (s *Service) Finalize(ctx context.Context, lines []Line, opts Options, key string) (Outcome, error) {
	idx := s.Catalog.Snapshot(ctx)
	ledger, _ := BuildLedger(idx, lines)
	obs.IncCounter(obs.CheckoutEvaluationsTotal, "finalize")
	unchanged := Outcome{Items: ledger.Items(), SummarySource: SourceLocal}

	resolved, err := Resolve(idx, ledger, opts)
	switch {
	case errors.Is(err, ErrDeclined):
		obs.IncCounter(obs.OrderSubmissionsTotal, StatusAborted)
		unchanged.Status = StatusAborted
		unchanged.Summary = pricing.Calculate(ledger.Items(), idx, s.membershipFor(opts))
		return unchanged, err
	case errors.Is(err, ErrResolutionRequired):
		obs.IncCounter(obs.OrderSubmissionsTotal, OutcomeResolutionRequired)
		return unchanged, err
	case err != nil:
		return unchanged, err
	}

	ev := Evaluate(idx, resolved, opts, s.Membership)
	if s.Orders == nil {
		return unchanged, errors.New("checkout: order gateway not configured")
	}
	res, err := s.Orders.SubmitOrder(ctx, orderRequest(resolved, opts, promotion.FindMissing(ledger.Items(), idx)), key)
	if err != nil {
		obs.IncCounter(obs.OrderSubmissionsTotal, OutcomeUpstreamError)
		s.Logger.Error().Err(err).Int("lines", resolved.Len()).Msg("order submission failed")
		return unchanged, fmt.Errorf("submit order: %w", err)
	}
	obs.IncCounter(obs.OrderSubmissionsTotal, StatusCompleted)
	s.Catalog.Invalidate(ctx)

	out := Outcome{
		Status:        StatusCompleted,
		OrderID:       res.OrderID,
		Summary:       ev.Summary,
		SummarySource: SourceLocal,
		Items:         []cart.Item{},
	}
	r := ev.Receipt
	if res.Summary != nil {
		out.Summary = *res.Summary
		out.SummarySource = SourceUpstream
		r.Summary = *res.Summary
	}
	out.ReceiptText = receipt.Render(r)
	return out, nil
}

func (s *Service) membershipFor(opts Options) pricing.Membership {
	m := s.Membership
	m.Apply = opts.ApplyMembership
	return m
}

func orderRequest(ledger cart.Ledger, opts Options, offers []promotion.Offer) storefront.OrderRequest {
	req := storefront.OrderRequest{
		Items:                  ledger.OrderLines(),
		ApplyMembership:        opts.ApplyMembership,
		AcceptNonPromoPurchase: opts.NonPromoPurchase.Ptr(),
	}
	if len(offers) > 0 {
		req.AcceptAddMore = make(map[string]bool, len(offers))
		for _, offer := range offers {
			req.AcceptAddMore[offer.ProductID] = opts.AddMoreFor(offer.ProductID) == Accepted
		}
	}
	return req
}

func observeFindings(ev Evaluation) {
	for range ev.Offers {
		obs.IncCounter(obs.PromotionFindingsTotal, "missing")
	}
	if ev.Shortfall != nil {
		obs.IncCounter(obs.PromotionFindingsTotal, "partial")
	}
}
